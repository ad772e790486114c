// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cgroupfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestReadCPUStat(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "cpu.stat", "usage_usec 4000000\nuser_usec 3000000\nsystem_usec 1000000\nnr_periods 0\nnr_throttled 0\nthrottled_usec 0\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	s, err := r.ReadCPUStat()
	require.NoError(t, err)
	require.NotNil(t, s.UsageUsec)
	assert.Equal(t, uint64(4000000), *s.UsageUsec)
	assert.Equal(t, uint64(3000000), *s.UserUsec)
	assert.Equal(t, uint64(1000000), *s.SystemUsec)
	assert.Equal(t, uint64(0), *s.NrPeriods)
}

func TestReadCPUMaxUnlimited(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "cpu.max", "max 100000\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	m, err := r.ReadCPUMax()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), m.Max)
	assert.Equal(t, uint64(100000), m.Period)
}

func TestReadCPUMaxBounded(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "cpu.max", "50000 100000\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	m, err := r.ReadCPUMax()
	require.NoError(t, err)
	assert.Equal(t, int64(50000), m.Max)
	assert.Equal(t, uint64(100000), m.Period)
}

func TestReadCPUMaxMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "cpu.max", "not-a-number 100000\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadCPUMax()
	require.Error(t, err)
	var unexpected *UnexpectedLineError
	assert.ErrorAs(t, err, &unexpected)
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cgroupfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReadCPUPressureSomeOnly covers spec §8's cpu.pressure worked example:
// older kernels only emit the "some" line for CPU pressure.
func TestReadCPUPressureSomeOnly(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "cpu.pressure", "some avg10=1.50 avg60=2.25 avg300=0.75 total=123456\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	p, err := r.ReadCPUPressure()
	require.NoError(t, err)
	assert.Equal(t, 1.50, p.Some.Avg10)
	assert.Equal(t, uint64(123456), p.Some.Total)
	assert.Nil(t, p.Full)
}

func TestReadCPUPressureBothLines(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "cpu.pressure",
		"some avg10=1.50 avg60=2.25 avg300=0.75 total=123456\n"+
			"full avg10=0.50 avg60=0.25 avg300=0.10 total=1000\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	p, err := r.ReadCPUPressure()
	require.NoError(t, err)
	require.NotNil(t, p.Full)
	assert.Equal(t, 0.50, p.Full.Avg10)
}

func TestReadIOPressureRequiresFull(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "io.pressure",
		"some avg10=0.00 avg60=0.00 avg300=0.00 total=0\n"+
			"full avg10=0.00 avg60=0.00 avg300=0.00 total=0\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	p, err := r.ReadIOPressure()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), p.Full.Total)
}

func TestReadPressureMissingDemotesToNil(t *testing.T) {
	dir := t.TempDir()
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	p, err := r.ReadPressure()
	require.NoError(t, err)
	assert.Nil(t, p)
}

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

func TestReadPids(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "pids.current", "42\n")
	writeFixture(t, dir, "pids.max", "max\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	p, err := r.ReadPids()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), *p.Current)
	assert.Equal(t, int64(-1), *p.Max)
}

func TestReadCpuset(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "cpuset.cpus", "0-3,7\n")
	writeFixture(t, dir, "cpuset.mems", "0\n")
	writeFixture(t, dir, "cpuset.cpus.effective", "0-3\n")
	writeFixture(t, dir, "cpuset.mems.effective", "0\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	c, err := r.ReadCpuset()
	require.NoError(t, err)
	assert.Equal(t, "0-3,7", c.Cpus)
	assert.Equal(t, "0-3", c.CpusEffective)
}

func TestReadControllers(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "cgroup.controllers", "cpu io memory pids\n")
	writeFixture(t, dir, "cgroup.subtree_control", "cpu memory\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	ctrls, err := r.ReadControllers()
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu", "io", "memory", "pids"}, ctrls)

	sub, err := r.ReadSubtreeControl()
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu", "memory"}, sub)
}

func TestReadCgroupStat(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "cgroup.stat", "nr_descendants 3\nnr_dying_descendants 0\n")
	r, err := newRootUnchecked(dir)
	require.NoError(t, err)
	defer r.Close()

	s, err := r.ReadCgroupStat()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), *s.NrDescendants)
}

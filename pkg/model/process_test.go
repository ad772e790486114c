// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/resourcemon/pkg/sample"
)

const userHZ = 100.0 // ticks/sec, matches the common Linux default
const usecPerTick = 1e6 / userHZ

func TestBuildOneProcessModelRSSAndCPU(t *testing.T) {
	prev := &sample.Process{
		PID:  42,
		Stat: &sample.ProcStat{UTime: 100, STime: 50},
	}
	curr := &sample.Process{
		PID:        42,
		CgroupPath: "/system.slice/foo.service",
		Cmdline:    []string{"foo", "--bar"},
		Stat:       &sample.ProcStat{Comm: "foo", State: 'R', UTime: 200, STime: 100},
	}
	// delta ticks = 150, usecPerTick=10000usec -> 1,500,000usec busy over 3s wall -> 50%
	m := buildOneProcessModel(curr, prev, 4096, usecPerTick, 3*time.Second)

	assert.Equal(t, int32(42), m.PID)
	assert.Equal(t, "foo", m.Comm)
	assert.Equal(t, byte('R'), m.State)
	assert.Equal(t, "/system.slice/foo.service", m.CgroupPath)
	assert.Equal(t, []string{"foo", "--bar"}, m.Cmdline)
	require.NotNil(t, m.CPUUsagePct)
	assert.InDelta(t, 50.0, *m.CPUUsagePct, 0.0001)
}

func TestBuildOneProcessModelRSSConvertedFromPages(t *testing.T) {
	curr := &sample.Process{PID: 1, Stat: &sample.ProcStat{RSS: 10}}
	m := buildOneProcessModel(curr, nil, 4096, usecPerTick, time.Second)
	require.NotNil(t, m.RSSBytes)
	assert.Equal(t, uint64(40960), *m.RSSBytes)
}

func TestBuildOneProcessModelNoCPUPctOnFirstSample(t *testing.T) {
	curr := &sample.Process{PID: 1, Stat: &sample.ProcStat{UTime: 10, STime: 5}}
	m := buildOneProcessModel(curr, nil, 4096, usecPerTick, time.Second)
	assert.Nil(t, m.CPUUsagePct)
}

func TestBuildOneProcessModelIORates(t *testing.T) {
	prev := &sample.Process{PID: 1, IO: &sample.ProcIO{ReadBytes: u64(1000), WriteBytes: u64(500)}}
	curr := &sample.Process{PID: 1, IO: &sample.ProcIO{ReadBytes: u64(3000), WriteBytes: u64(1500)}}
	m := buildOneProcessModel(curr, prev, 4096, usecPerTick, time.Second)
	require.NotNil(t, m.ReadBytesPerSec)
	assert.InDelta(t, 2000.0, *m.ReadBytesPerSec, 0.0001)
	assert.InDelta(t, 1000.0, *m.WriteBytesPerSec, 0.0001)
}

func TestBuildOneProcessModelIOToleratedError(t *testing.T) {
	curr := &sample.Process{PID: 1, IOReadError: true}
	m := buildOneProcessModel(curr, nil, 4096, usecPerTick, time.Second)
	assert.Nil(t, m.ReadBytesPerSec)
	assert.Nil(t, m.WriteBytesPerSec)
}

func TestBuildProcessModelsEmptyWhenNoProcesses(t *testing.T) {
	out := buildProcessModels(nil, nil, 4096, usecPerTick, time.Second)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestBuildProcessModelsPairsByPID(t *testing.T) {
	prev := map[int32]*sample.Process{7: {PID: 7, Stat: &sample.ProcStat{UTime: 0, STime: 0}}}
	curr := map[int32]*sample.Process{
		7: {PID: 7, Stat: &sample.ProcStat{UTime: 100, STime: 0}},
		8: {PID: 8, Stat: &sample.ProcStat{UTime: 10, STime: 0}}, // no prev: new pid
	}
	out := buildProcessModels(curr, prev, 4096, usecPerTick, time.Second)
	require.Contains(t, out, int32(7))
	require.Contains(t, out, int32(8))
	assert.NotNil(t, out[7].CPUUsagePct)
	assert.Nil(t, out[8].CPUUsagePct)
}

func TestCPUTicksPctCounterWentBackward(t *testing.T) {
	assert.Nil(t, cpuTicksPct(100, 50, usecPerTick, time.Second))
}

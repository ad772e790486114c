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

func TestBuildCPUModelUsagePct(t *testing.T) {
	prev := &sample.CPUStat2{UsageUsec: u64(0), UserUsec: u64(0), SystemUsec: u64(0)}
	curr := &sample.CPUStat2{UsageUsec: u64(500000), UserUsec: u64(300000), SystemUsec: u64(200000)}
	m := buildCPUModel(curr, prev, time.Second)
	require.NotNil(t, m.UsagePct)
	assert.InDelta(t, 50.0, *m.UsagePct, 0.0001)
	assert.InDelta(t, 30.0, *m.UserPct, 0.0001)
	assert.InDelta(t, 20.0, *m.SystemPct, 0.0001)
}

func TestBuildCPUModelNilOnFirstSample(t *testing.T) {
	curr := &sample.CPUStat2{UsageUsec: u64(500000)}
	m := buildCPUModel(curr, nil, time.Second)
	assert.Nil(t, m.UsagePct)
}

func TestBuildCPUModelNilCurr(t *testing.T) {
	assert.Nil(t, buildCPUModel(nil, nil, time.Second))
}

// TestBuildIOModelEmptyStatYieldsAllZeroTotal covers spec §4.3's requirement
// that an io.stat present but with no device rows still produces an
// all-zeros Total, never a nil one, so idle cgroups read differently from
// cgroups that never had IO data at all (IOModel itself being nil).
func TestBuildIOModelEmptyStatYieldsAllZeroTotal(t *testing.T) {
	curr := map[string]*sample.IOStat{}
	m := buildIOModel(curr, nil, time.Second)
	require.NotNil(t, m)
	require.NotNil(t, m.Total.RBytesPerSec)
	assert.Equal(t, 0.0, *m.Total.RBytesPerSec)
	assert.Empty(t, m.Devices)
}

func TestBuildIOModelNilWhenNoIOStatAtAll(t *testing.T) {
	assert.Nil(t, buildIOModel(nil, nil, time.Second))
}

func TestBuildIOModelAccumulatesAcrossDevices(t *testing.T) {
	prev := map[string]*sample.IOStat{
		"8:0":  {RBytes: u64(1000), WBytes: u64(500)},
		"8:16": {RBytes: u64(2000), WBytes: u64(0)},
	}
	curr := map[string]*sample.IOStat{
		"8:0":  {RBytes: u64(2000), WBytes: u64(1000)},
		"8:16": {RBytes: u64(3000), WBytes: u64(0)},
	}
	m := buildIOModel(curr, prev, time.Second)
	require.NotNil(t, m.Total.RBytesPerSec)
	assert.InDelta(t, 2000.0, *m.Total.RBytesPerSec, 0.0001) // 1000 + 1000
	assert.InDelta(t, 500.0, *m.Total.WBytesPerSec, 0.0001)
}

func TestBuildIOModelMissingDeviceOnOneSideContributesZero(t *testing.T) {
	prev := map[string]*sample.IOStat{}
	curr := map[string]*sample.IOStat{
		"8:0": {RBytes: u64(1000)},
	}
	m := buildIOModel(curr, prev, time.Second)
	require.Contains(t, m.Devices, "8:0")
	assert.Nil(t, m.Devices["8:0"].RBytesPerSec) // no prev row for this device
	assert.Equal(t, 0.0, *m.Total.RBytesPerSec)   // nil contributes zero, not NaN/panic
}

func TestBuildMemoryModel(t *testing.T) {
	prev := &sample.MemoryBlock{
		Current: u64(1000),
		Stat: &sample.MemoryStat{
			ActiveAnon: u64(100), InactiveAnon: u64(50),
			ActiveFile: u64(200), InactiveFile: u64(0),
			Pgfault: u64(10), Pgmajfault: u64(1), Pgscan: u64(0), Pgsteal: u64(0),
		},
	}
	curr := &sample.MemoryBlock{
		Current: u64(2000),
		Stat: &sample.MemoryStat{
			ActiveAnon: u64(150), InactiveAnon: u64(50),
			ActiveFile: u64(300), InactiveFile: u64(0),
			Pgfault: u64(30), Pgmajfault: u64(1), Pgscan: u64(5), Pgsteal: u64(5),
		},
		Events: &sample.MemoryEvents{OOM: u64(0)},
	}
	m := buildMemoryModel(curr, prev, time.Second)
	require.NotNil(t, m)
	assert.Equal(t, uint64(2000), *m.Total)
	assert.Equal(t, uint64(200), *m.Anon) // 150+50
	assert.Equal(t, uint64(300), *m.File) // 300+0
	require.NotNil(t, m.PgfaultPerSec)
	assert.InDelta(t, 20.0, *m.PgfaultPerSec, 0.0001)
	assert.InDelta(t, 0.0, *m.PgmajfaultPerSec, 0.0001)
	assert.Same(t, curr.Events, m.Events)
}

func TestBuildMemoryModelNilCurr(t *testing.T) {
	assert.Nil(t, buildMemoryModel(nil, nil, time.Second))
}

// TestBuildPressureModelCarriesAvg10Directly locks in spec §4.3's explicit
// rule: pressure avg10 is read straight off the current sample, never
// recomputed from a Total-usec delta (which read-to-timestamp skew could
// push past 100%).
func TestBuildPressureModelCarriesAvg10Directly(t *testing.T) {
	p := &sample.Pressure{
		CPU: sample.CPUPressure{
			Some: sample.PressureMetrics{Avg10: 12.5, Total: 999999},
			Full: &sample.PressureMetrics{Avg10: 3.1},
		},
		IO: sample.IOPressure{
			Some: sample.PressureMetrics{Avg10: 1.0},
			Full: sample.PressureMetrics{Avg10: 0.5},
		},
		Memory: sample.MemoryPressure{
			Some: sample.PressureMetrics{Avg10: 7.0},
			Full: sample.PressureMetrics{Avg10: 6.0},
		},
	}
	m := buildPressureModel(p)
	require.NotNil(t, m)
	assert.Equal(t, 12.5, m.CPUSomeAvg10)
	require.NotNil(t, m.CPUFullAvg10)
	assert.Equal(t, 3.1, *m.CPUFullAvg10)
	assert.Equal(t, 1.0, m.IOSomeAvg10)
	assert.Equal(t, 0.5, m.IOFullAvg10)
	assert.Equal(t, 7.0, m.MemorySomeAvg10)
	assert.Equal(t, 6.0, m.MemoryFullAvg10)
}

func TestBuildPressureModelCPUFullAbsentWhenKernelOmitsIt(t *testing.T) {
	p := &sample.Pressure{}
	m := buildPressureModel(p)
	assert.Nil(t, m.CPUFullAvg10)
}

func TestBuildPressureModelNil(t *testing.T) {
	assert.Nil(t, buildPressureModel(nil))
}

func TestBuildCgroupModelRecursesAndPairsByName(t *testing.T) {
	curr := &sample.CgroupNode{
		Name: "",
		Children: map[string]*sample.CgroupNode{
			"system.slice": {
				Name: "system.slice",
				CPU:  &sample.CPUStat2{UsageUsec: u64(2000)},
			},
		},
	}
	prev := &sample.CgroupNode{
		Name: "",
		Children: map[string]*sample.CgroupNode{
			"system.slice": {
				Name: "system.slice",
				CPU:  &sample.CPUStat2{UsageUsec: u64(1000)},
			},
		},
	}
	m := buildCgroupModel(curr, prev, time.Second)
	require.NotNil(t, m)
	require.Contains(t, m.Children, "system.slice")
	child := m.Children["system.slice"]
	require.NotNil(t, child.CPU)
	require.NotNil(t, child.CPU.UsagePct)
	assert.InDelta(t, 0.1, *child.CPU.UsagePct, 0.0001)
}

func TestBuildCgroupModelNewChildHasNilRates(t *testing.T) {
	curr := &sample.CgroupNode{
		Name: "",
		Children: map[string]*sample.CgroupNode{
			"fresh.slice": {Name: "fresh.slice", CPU: &sample.CPUStat2{UsageUsec: u64(500)}},
		},
	}
	m := buildCgroupModel(curr, nil, time.Second)
	require.Contains(t, m.Children, "fresh.slice")
	assert.Nil(t, m.Children["fresh.slice"].CPU.UsagePct)
}

func TestBuildCgroupModelNilCurr(t *testing.T) {
	assert.Nil(t, buildCgroupModel(nil, nil, time.Second))
}

// TestRollupTopLevelSumsChildCPUWhenRootCPUMissing locks in the top-level
// rollup described in the cgroup package: a direct child of root with no
// cpu.stat of its own gets its CPU model recomputed as the sum of ITS
// children's CPU models.
func TestRollupTopLevelSumsChildCPUWhenRootCPUMissing(t *testing.T) {
	leafA := &CgroupModel{Name: "a", CPU: &CPUModel{UsagePct: ptrF(10), UserPct: ptrF(5), SystemPct: ptrF(5)}}
	leafB := &CgroupModel{Name: "b", CPU: &CPUModel{UsagePct: ptrF(20), UserPct: ptrF(15), SystemPct: ptrF(5)}}
	mid := &CgroupModel{
		Name:     "mid.slice",
		CPU:      nil,
		Children: map[string]*CgroupModel{"a": leafA, "b": leafB},
	}
	root := &CgroupModel{Name: "", Children: map[string]*CgroupModel{"mid.slice": mid}}

	rollupTopLevel(root)

	require.NotNil(t, mid.CPU)
	assert.InDelta(t, 30.0, *mid.CPU.UsagePct, 0.0001)
	assert.InDelta(t, 20.0, *mid.CPU.UserPct, 0.0001)
	assert.InDelta(t, 10.0, *mid.CPU.SystemPct, 0.0001)
}

func TestRollupTopLevelLeavesExistingCPUAlone(t *testing.T) {
	mid := &CgroupModel{Name: "mid.slice", CPU: &CPUModel{UsagePct: ptrF(42)}}
	root := &CgroupModel{Name: "", Children: map[string]*CgroupModel{"mid.slice": mid}}
	rollupTopLevel(root)
	assert.InDelta(t, 42.0, *mid.CPU.UsagePct, 0.0001)
}

func TestRollupTopLevelNilRoot(t *testing.T) {
	rollupTopLevel(nil) // must not panic
}

func ptrF(v float64) *float64 { return &v }

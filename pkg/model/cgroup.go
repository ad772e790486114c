// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package model

import (
	"time"

	"github.com/antimetal/resourcemon/pkg/sample"
)

// CgroupModel is the derived view of one sample.CgroupNode, paired against
// its predecessor (if any) to compute rates.
type CgroupModel struct {
	Name     string
	Children map[string]*CgroupModel

	CPU      *CPUModel
	IO       *IOModel
	Memory   *MemoryModel
	Pressure *PressureModel

	Pids        *sample.Pids
	Cpuset      *sample.Cpuset
	Controllers []string
	Stat        *sample.CgroupStat
}

// CPUModel is cpu.stat's derived view (spec §4.3's per-cgroup CPU model).
type CPUModel struct {
	UsagePct         *float64
	UserPct          *float64
	SystemPct        *float64
	NrPeriodsPerSec  *float64
	NrThrottledPerSec *float64
	ThrottledPct     *float64
}

// IOModel is io.stat's derived view, per-device plus an element-wise total.
type IOModel struct {
	Devices map[string]*IOCounterRates
	Total   IOCounterRates
}

// IOCounterRates is one device's (or the aggregate's) six io.stat counters
// turned into per-second rates.
type IOCounterRates struct {
	RBytesPerSec *float64
	WBytesPerSec *float64
	DBytesPerSec *float64
	RIOsPerSec   *float64
	WIOsPerSec   *float64
	DIOsPerSec   *float64
}

// MemoryModel is memory.{current,stat,events}'s derived view.
type MemoryModel struct {
	Total *uint64 // memory.current, gauge
	Anon  *uint64 // active_anon + inactive_anon, gauge
	File  *uint64 // active_file + inactive_file, gauge

	PgfaultPerSec    *float64
	PgmajfaultPerSec *float64
	PgscanPerSec     *float64
	PgstealPerSec    *float64

	Events *sample.MemoryEvents // absolute gauges, current sample only
}

// PressureModel carries avg10 directly from the current sample: spec §4.3
// is explicit that this does NOT get recomputed from Total deltas, since
// read-to-timestamp skew can push a delta-based recomputation over 100%.
type PressureModel struct {
	CPUSomeAvg10    float64
	CPUFullAvg10    *float64 // nil when the kernel doesn't report "full" for CPU
	IOSomeAvg10     float64
	IOFullAvg10     float64
	MemorySomeAvg10 float64
	MemoryFullAvg10 float64
}

// buildCgroupModel recursively derives a CgroupModel from curr, pairing
// each node against the same-named child of prev when one exists. A node
// present in curr but absent from prev (recently created cgroup) still
// builds a model; every rate field within it is simply nil.
func buildCgroupModel(curr, prev *sample.CgroupNode, delta time.Duration) *CgroupModel {
	if curr == nil {
		return nil
	}
	m := &CgroupModel{
		Name:        curr.Name,
		Pids:        curr.Pids,
		Cpuset:      curr.Cpuset,
		Controllers: curr.Controllers,
		Stat:        curr.Stat,
	}

	var prevCPU *sample.CPUStat2
	var prevIO map[string]*sample.IOStat
	var prevMem *sample.MemoryBlock
	if prev != nil {
		prevCPU = prev.CPU
		prevIO = prev.IO
		prevMem = prev.Memory
	}

	m.CPU = buildCPUModel(curr.CPU, prevCPU, delta)
	m.IO = buildIOModel(curr.IO, prevIO, delta)
	m.Memory = buildMemoryModel(curr.Memory, prevMem, delta)
	m.Pressure = buildPressureModel(curr.Pressure)

	if len(curr.Children) > 0 {
		m.Children = make(map[string]*CgroupModel, len(curr.Children))
		for name, child := range curr.Children {
			var prevChild *sample.CgroupNode
			if prev != nil && prev.Children != nil {
				prevChild = prev.Children[name]
			}
			m.Children[name] = buildCgroupModel(child, prevChild, delta)
		}
	}

	return m
}

func buildCPUModel(curr, prev *sample.CPUStat2, delta time.Duration) *CPUModel {
	if curr == nil {
		return nil
	}
	m := &CPUModel{}
	if prev != nil {
		m.UsagePct = usecPct(prev.UsageUsec, curr.UsageUsec, delta)
		m.UserPct = usecPct(prev.UserUsec, curr.UserUsec, delta)
		m.SystemPct = usecPct(prev.SystemUsec, curr.SystemUsec, delta)
		m.NrPeriodsPerSec = perSec(prev.NrPeriods, curr.NrPeriods, delta)
		m.NrThrottledPerSec = perSec(prev.NrThrottled, curr.NrThrottled, delta)
		m.ThrottledPct = usecPct(prev.ThrottledUsec, curr.ThrottledUsec, delta)
	}
	return m
}

// buildIOModel derives per-device and total rates. Per spec §4.3: "when
// io.stat is present but empty, io_total defaults to all-zeros (not None)
// so that idle cgroups are visually distinct from cgroups without IO data."
func buildIOModel(curr, prev map[string]*sample.IOStat, delta time.Duration) *IOModel {
	if curr == nil {
		return nil
	}
	m := &IOModel{Devices: make(map[string]*IOCounterRates, len(curr)), Total: IOCounterRates{}}

	m.Total = IOCounterRates{RBytesPerSec: new(float64), WBytesPerSec: new(float64), DBytesPerSec: new(float64),
		RIOsPerSec: new(float64), WIOsPerSec: new(float64), DIOsPerSec: new(float64)}

	for dev, c := range curr {
		p := prev[dev]
		rates := &IOCounterRates{}
		if p != nil {
			rates.RBytesPerSec = perSec(p.RBytes, c.RBytes, delta)
			rates.WBytesPerSec = perSec(p.WBytes, c.WBytes, delta)
			rates.DBytesPerSec = perSec(p.DBytes, c.DBytes, delta)
			rates.RIOsPerSec = perSec(p.RIOs, c.RIOs, delta)
			rates.WIOsPerSec = perSec(p.WIOs, c.WIOs, delta)
			rates.DIOsPerSec = perSec(p.DIOs, c.DIOs, delta)
		}
		m.Devices[dev] = rates
		addRate(m.Total.RBytesPerSec, rates.RBytesPerSec)
		addRate(m.Total.WBytesPerSec, rates.WBytesPerSec)
		addRate(m.Total.DBytesPerSec, rates.DBytesPerSec)
		addRate(m.Total.RIOsPerSec, rates.RIOsPerSec)
		addRate(m.Total.WIOsPerSec, rates.WIOsPerSec)
		addRate(m.Total.DIOsPerSec, rates.DIOsPerSec)
	}
	return m
}

// addRate accumulates src into *dst in place, treating a nil src as zero
// contribution (the element-wise sum across devices described in spec
// §4.3, which must not collapse to None just because one device's rate
// is unknown this tick).
func addRate(dst, src *float64) {
	if src == nil {
		return
	}
	*dst += *src
}

func buildMemoryModel(curr, prev *sample.MemoryBlock, delta time.Duration) *MemoryModel {
	if curr == nil {
		return nil
	}
	m := &MemoryModel{Total: curr.Current}

	if curr.Stat != nil {
		m.Anon = sumU64(curr.Stat.ActiveAnon, curr.Stat.InactiveAnon)
		m.File = sumU64(curr.Stat.ActiveFile, curr.Stat.InactiveFile)
		m.Events = curr.Events

		if prev != nil && prev.Stat != nil {
			m.PgfaultPerSec = perSec(prev.Stat.Pgfault, curr.Stat.Pgfault, delta)
			m.PgmajfaultPerSec = perSec(prev.Stat.Pgmajfault, curr.Stat.Pgmajfault, delta)
			m.PgscanPerSec = perSec(prev.Stat.Pgscan, curr.Stat.Pgscan, delta)
			m.PgstealPerSec = perSec(prev.Stat.Pgsteal, curr.Stat.Pgsteal, delta)
		}
	}
	return m
}

func sumU64(a, b *uint64) *uint64 {
	if a == nil || b == nil {
		return nil
	}
	v := *a + *b
	return &v
}

func buildPressureModel(p *sample.Pressure) *PressureModel {
	if p == nil {
		return nil
	}
	m := &PressureModel{
		CPUSomeAvg10:    p.CPU.Some.Avg10,
		IOSomeAvg10:     p.IO.Some.Avg10,
		IOFullAvg10:     p.IO.Full.Avg10,
		MemorySomeAvg10: p.Memory.Some.Avg10,
		MemoryFullAvg10: p.Memory.Full.Avg10,
	}
	if p.CPU.Full != nil {
		v := p.CPU.Full.Avg10
		m.CPUFullAvg10 = &v
	}
	return m
}

// rollupTopLevel recomputes total_cpu for every direct child of the root
// as sum(child.cpu) when the root's own counters are unreliable, per spec
// §4.3's "the source repo exposes this as aggr_top_level_val". Applied
// only to the root's immediate children, matching the original's top-level
// (not whole-tree) scope.
func rollupTopLevel(root *CgroupModel) {
	if root == nil {
		return
	}
	for _, child := range root.Children {
		if child.CPU != nil {
			continue
		}
		child.CPU = sumChildCPU(child)
	}
}

func sumChildCPU(node *CgroupModel) *CPUModel {
	if len(node.Children) == 0 {
		return nil
	}
	sum := &CPUModel{}
	any := false
	for _, c := range node.Children {
		if c.CPU == nil {
			continue
		}
		any = true
		addRate(orZero(&sum.UsagePct), c.CPU.UsagePct)
		addRate(orZero(&sum.UserPct), c.CPU.UserPct)
		addRate(orZero(&sum.SystemPct), c.CPU.SystemPct)
	}
	if !any {
		return nil
	}
	return sum
}

// orZero lazily initializes *p to 0 if nil and returns it, so addRate can
// accumulate into a field that started as nil.
func orZero(p **float64) *float64 {
	if *p == nil {
		z := 0.0
		*p = &z
	}
	return *p
}

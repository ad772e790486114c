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

// SystemModel is the derived view of sample.System.
type SystemModel struct {
	Hostname      string
	KernelRelease string

	CPUs         map[int32]*CPUCoreModel // key -1 is the aggregate
	ContextSwitchesPerSec *float64
	ProcsRunning *uint32
	ProcsBlocked *uint32

	MemTotal     *uint64
	MemFree      *uint64
	MemAvailable *uint64

	Disks map[string]*DiskModel
	Slabs []SlabModel
}

// CPUCoreModel is one cpuN (or the -1 aggregate) line's derived view.
// Percentages are each bucket's share of this tick's total accounted CPU
// time (idle + busy + iowait), not a share of wall-clock delta: per spec
// §8's worked example, a sample covering an actual 10s of accounted ticks
// read 5s apart still yields the percentages implied by that 10s, since
// the tick counters are the ground truth and delta is only a measurement
// of how often the sampler happened to run.
type CPUCoreModel struct {
	UsagePct     *float64 // busy = user+nice+system+irq+softirq+stolen
	UserPct      *float64
	NicePct      *float64
	SystemPct    *float64
	IdlePct      *float64
	IOWaitPct    *float64
	IRQPct       *float64
	SoftIRQPct   *float64
	StealPct     *float64
	GuestPct     *float64
	GuestNicePct *float64
}

// DiskModel is one block device's derived view, per spec §4.3:
// "read_bytes_per_sec = read_sectors_per_sec * 512" — already converted
// to bytes at procfs read time (pkg/procfs.ReadDiskStats), so here it's a
// plain rate over the byte counters.
type DiskModel struct {
	ReadBytesPerSec    *float64
	WriteBytesPerSec   *float64
	DiscardBytesPerSec *float64
	TotalBytesPerSec   *float64
}

// SlabModel is one row of /proc/slabinfo, rate-free (slabinfo is a gauge
// table, not a set of cumulative counters).
type SlabModel struct {
	Name        string
	ActiveObjs  uint64
	NumObjs     uint64
	NumSlabs    uint64
	ActiveCaches uint64
	NumCaches   uint64
	ActiveSize  uint64
	TotalSize   uint64
}

func buildSystemModel(curr, prev *sample.System, delta time.Duration) SystemModel {
	m := SystemModel{
		Hostname:      curr.Hostname,
		KernelRelease: curr.KernelRelease,
	}

	if curr.MemInfo != nil {
		m.MemTotal = curr.MemInfo.MemTotal
		m.MemFree = curr.MemInfo.MemFree
		m.MemAvailable = curr.MemInfo.MemAvailable
	}

	if curr.Stat != nil {
		var prevStat *sample.Stat
		if prev != nil {
			prevStat = prev.Stat
		}
		m.CPUs = buildCPUCores(curr.Stat.CPUs, cpuMapOf(prevStat))
		m.ProcsRunning = curr.Stat.ProcsRunning
		m.ProcsBlocked = curr.Stat.ProcsBlocked
		if prevStat != nil {
			m.ContextSwitchesPerSec = perSec(prevStat.ContextSwitches, curr.Stat.ContextSwitches, delta)
		}
	}

	var prevDisks map[string]*sample.DiskStat
	if prev != nil {
		prevDisks = prev.Disks
	}
	m.Disks = buildDiskModels(curr.Disks, prevDisks, delta)
	m.Slabs = buildSlabModels(curr.Slabs)

	return m
}

func cpuMapOf(s *sample.Stat) map[int32]*sample.CPUStat {
	if s == nil {
		return nil
	}
	return s.CPUs
}

// buildCPUCores zips curr and prev per-CPU maps per spec §4.3: "if per-CPU
// arrays exist in both samples they are zipped and each core computed
// independently... missing-on-one-side yields defaults for missing cores;
// missing-on-both yields an empty map."
func buildCPUCores(curr, prev map[int32]*sample.CPUStat) map[int32]*CPUCoreModel {
	if len(curr) == 0 {
		return map[int32]*CPUCoreModel{}
	}
	out := make(map[int32]*CPUCoreModel, len(curr))
	for idx, c := range curr {
		var p *sample.CPUStat
		if prev != nil {
			p = prev[idx]
		}
		out[idx] = buildOneCPUCore(c, p)
	}
	return out
}

func buildOneCPUCore(curr, prev *sample.CPUStat) *CPUCoreModel {
	m := &CPUCoreModel{}
	if curr == nil || prev == nil {
		return m
	}

	user := deltaSince(prev.UserUsec, curr.UserUsec)
	nice := deltaSince(prev.NiceUsec, curr.NiceUsec)
	system := deltaSince(prev.SystemUsec, curr.SystemUsec)
	idle := deltaSince(prev.IdleUsec, curr.IdleUsec)
	iowait := deltaSince(prev.IOWaitUsec, curr.IOWaitUsec)
	irq := deltaSince(prev.IRQUsec, curr.IRQUsec)
	softirq := deltaSince(prev.SoftIRQUsec, curr.SoftIRQUsec)
	steal := deltaSince(prev.StealUsec, curr.StealUsec)
	guest := deltaSince(prev.GuestUsec, curr.GuestUsec)
	guestNice := deltaSince(prev.GuestNiceUsec, curr.GuestNiceUsec)
	if user == nil || nice == nil || system == nil || idle == nil || iowait == nil ||
		irq == nil || softirq == nil || steal == nil || guest == nil || guestNice == nil {
		return m
	}

	busy := *user + *system + *nice + *irq + *softirq + *steal
	total := *idle + busy + *iowait
	if total == 0 {
		return m
	}
	pctOf := func(v uint64) *float64 {
		p := float64(v) * 100 / float64(total)
		return &p
	}
	m.UsagePct = pctOf(busy)
	m.UserPct = pctOf(*user)
	m.NicePct = pctOf(*nice)
	m.SystemPct = pctOf(*system)
	m.IdlePct = pctOf(*idle)
	m.IOWaitPct = pctOf(*iowait)
	m.IRQPct = pctOf(*irq)
	m.SoftIRQPct = pctOf(*softirq)
	m.StealPct = pctOf(*steal)
	m.GuestPct = pctOf(*guest)
	m.GuestNicePct = pctOf(*guestNice)
	return m
}

func buildDiskModels(curr, prev map[string]*sample.DiskStat, delta time.Duration) map[string]*DiskModel {
	if len(curr) == 0 {
		return nil
	}
	out := make(map[string]*DiskModel, len(curr))
	for dev, c := range curr {
		var p *sample.DiskStat
		if prev != nil {
			p = prev[dev]
		}
		dm := &DiskModel{}
		if p != nil {
			dm.ReadBytesPerSec = perSec(p.SectorsRead, c.SectorsRead, delta)
			dm.WriteBytesPerSec = perSec(p.SectorsWritten, c.SectorsWritten, delta)
			dm.DiscardBytesPerSec = perSec(p.SectorsDiscarded, c.SectorsDiscarded, delta)
			dm.TotalBytesPerSec = sumFloat(dm.ReadBytesPerSec, dm.WriteBytesPerSec)
		}
		out[dev] = dm
	}
	return out
}

func sumFloat(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	v := *a + *b
	return &v
}

// buildSlabModels inserts the aggregation "TOTAL" row at index 0 per spec
// §4.3: active_caches counts a source row as 1 iff its active_objs > 0;
// num_caches always counts 1 per source row.
func buildSlabModels(slabs []sample.SlabInfo) []SlabModel {
	if len(slabs) == 0 {
		return nil
	}
	out := make([]SlabModel, 0, len(slabs)+1)
	total := SlabModel{Name: "TOTAL"}

	for _, s := range slabs {
		row := SlabModel{
			Name:       s.Name,
			ActiveObjs: s.ActiveObjs,
			NumObjs:    s.NumObjs,
			NumSlabs:   s.NumSlabs,
			NumCaches:  1,
		}
		if row.ActiveObjs > 0 {
			row.ActiveCaches = 1
		}
		row.ActiveSize = row.ActiveObjs * s.ObjSize
		row.TotalSize = row.NumObjs * s.ObjSize

		total.ActiveObjs += row.ActiveObjs
		total.NumObjs += row.NumObjs
		total.NumSlabs += row.NumSlabs
		total.ActiveCaches += row.ActiveCaches
		total.NumCaches += row.NumCaches
		total.ActiveSize += row.ActiveSize
		total.TotalSize += row.TotalSize

		out = append(out, row)
	}

	return append([]SlabModel{total}, out...)
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sample

// CgroupNode is one node of the cgroup v2 tree, rooted at the cgroup2
// mount. The root node has an empty Name. Each child is reachable only
// through its parent's map: there are no back-pointers (see SPEC_FULL §9
// design note on tree ownership).
type CgroupNode struct {
	Name     string
	Children map[string]*CgroupNode

	InodeNumber *uint64

	CPU         *CPUStat2
	IO          map[string]*IOStat // keyed by "MAJ:MIN"
	Memory      *MemoryBlock
	Pressure    *Pressure
	Pids        *Pids
	Cpuset      *Cpuset
	CPUWeight   *uint64
	CPUMax      *CPUMax
	Controllers []string
	SubtreeControl []string
	Stat        *CgroupStat
}

// CPUStat2 mirrors cpu.stat (named distinctly from the system-wide CPUStat
// in types.go, which tracks /proc/stat rather than a cgroup).
type CPUStat2 struct {
	UsageUsec     *uint64
	UserUsec      *uint64
	SystemUsec    *uint64
	NrPeriods     *uint64
	NrThrottled   *uint64
	ThrottledUsec *uint64
}

// IOStat mirrors one device row of io.stat.
type IOStat struct {
	RBytes *uint64
	WBytes *uint64
	RIOs   *uint64
	WIOs   *uint64
	DBytes *uint64
	DIOs   *uint64
}

// MemoryBlock groups every memory.* file read for one cgroup.
type MemoryBlock struct {
	Current *uint64
	Stat    *MemoryStat
	Events  *MemoryEvents
	High    *int64 // -1 means "max"
	Max     *int64
	Low     *uint64
	Min     *uint64
}

// MemoryStat mirrors memory.stat.
type MemoryStat struct {
	Anon                 *uint64
	File                 *uint64
	KernelStack          *uint64
	Slab                 *uint64
	Sock                 *uint64
	Shmem                *uint64
	FileMapped           *uint64
	FileDirty            *uint64
	FileWriteback        *uint64
	AnonThp              *uint64
	InactiveAnon         *uint64
	ActiveAnon           *uint64
	InactiveFile         *uint64
	ActiveFile           *uint64
	Unevictable          *uint64
	SlabReclaimable      *uint64
	SlabUnreclaimable    *uint64
	Pgfault              *uint64
	Pgmajfault           *uint64
	WorkingsetRefault    *uint64
	WorkingsetActivate   *uint64
	WorkingsetNodereclaim *uint64
	Pgrefill             *uint64
	Pgscan               *uint64
	Pgsteal              *uint64
	Pgactivate           *uint64
	Pgdeactivate         *uint64
	Pglazyfree           *uint64
	Pglazyfreed          *uint64
	ThpFaultAlloc        *uint64
	ThpCollapseAlloc     *uint64
}

// MemoryEvents mirrors memory.events.
type MemoryEvents struct {
	Low     *uint64
	High    *uint64
	Max     *uint64
	OOM     *uint64
	OOMKill *uint64
}

// PressureMetrics is one "some" or "full" line of a *.pressure file.
type PressureMetrics struct {
	Avg10  float64
	Avg60  float64
	Avg300 float64
	Total  uint64 // microseconds
}

// Pressure groups the three resources' PSI blocks. Per spec §3: "some" is
// always present for all three resources; "full" is only ever present for
// io/memory pressure, and optional (kernel-dependent) for cpu pressure.
type Pressure struct {
	CPU    CPUPressure
	IO     IOPressure
	Memory MemoryPressure
}

type CPUPressure struct {
	Some PressureMetrics
	Full *PressureMetrics
}

type IOPressure struct {
	Some PressureMetrics
	Full PressureMetrics
}

type MemoryPressure struct {
	Some PressureMetrics
	Full PressureMetrics
}

// Pids mirrors pids.current/pids.max.
type Pids struct {
	Current *uint64
	Max     *int64 // -1 means "max"
}

// Cpuset mirrors cpuset.cpus/.mems and their *.effective variants. Values
// are kept as the raw list-format strings (e.g. "0-3,7"); expansion into
// concrete CPU/node sets is left to callers that need it.
type Cpuset struct {
	Cpus             string
	Mems             string
	CpusEffective    string
	MemsEffective    string
}

// CPUMax mirrors cpu.max: "$MAX $PERIOD" or "max $PERIOD".
type CPUMax struct {
	Max    int64 // -1 means "max" (unlimited)
	Period uint64
}

// CgroupStat mirrors cgroup.stat.
type CgroupStat struct {
	NrDescendants      *uint64
	NrDyingDescendants *uint64
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package query

import (
	"sort"
	"strconv"

	"github.com/antimetal/resourcemon/pkg/model"
)

// Static field tables for pkg/model's types, built once here instead of at
// a derive-macro's compile time: each FieldSpec.Get is ordinary Go code
// performing one type assertion and one struct field read, so resolving a
// FieldID never touches the reflect package. Raw sample passthrough
// blocks (Pids, Cpuset, Controllers, Stat, Events) are intentionally
// omitted from these tables — the query surface only covers model's own
// derived/gauge fields, the Go equivalent of #[queriable(ignore)].

// stringSlice lets a []string field (e.g. ProcessModel.Cmdline) compose as
// a ContainerVec whose single scalar leaf is named "value".
type stringSlice []string

func (s stringSlice) Len() int { return len(s) }
func (s stringSlice) At(i int) (any, bool) {
	if i < 0 || i >= len(s) {
		return nil, false
	}
	return s[i], true
}

var stringElemSchema = &Schema{Fields: []FieldSpec{
	{Name: "value", Container: ContainerScalar, Get: func(p any) any { return p.(string) }},
}}

// int32Map/stringMap adapt the model package's concrete map types to
// MapAccessor without reflection.

type int32Map[V any] map[int32]V

func (m int32Map[V]) Keys() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, strconv.FormatInt(int64(k), 10))
	}
	sort.Strings(out)
	return out
}
func (m int32Map[V]) Get(key string) (any, bool) {
	idx, err := strconv.ParseInt(key, 10, 32)
	if err != nil {
		return nil, false
	}
	v, ok := m[int32(idx)]
	return v, ok
}

type stringMap[V any] map[string]V

func (m stringMap[V]) Keys() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
func (m stringMap[V]) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

var ioCounterRatesSchema = &Schema{Fields: []FieldSpec{
	{Name: "rbytes_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.IOCounterRates).RBytesPerSec }},
	{Name: "wbytes_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.IOCounterRates).WBytesPerSec }},
	{Name: "dbytes_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.IOCounterRates).DBytesPerSec }},
	{Name: "rios_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.IOCounterRates).RIOsPerSec }},
	{Name: "wios_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.IOCounterRates).WIOsPerSec }},
	{Name: "dios_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.IOCounterRates).DIOsPerSec }},
}}

var ioModelSchema = &Schema{Fields: []FieldSpec{
	{Name: "devices", Container: ContainerMap, Sub: ioCounterRatesSchema, Get: func(p any) any {
		io := p.(*model.IOModel)
		out := make(stringMap[*model.IOCounterRates], len(io.Devices))
		for k, v := range io.Devices {
			out[k] = v
		}
		return out
	}},
	{Name: "total", Container: ContainerStruct, Sub: ioCounterRatesSchema, Get: func(p any) any {
		return &p.(*model.IOModel).Total
	}},
}}

var cpuModelSchema = &Schema{Fields: []FieldSpec{
	{Name: "usage_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUModel).UsagePct }},
	{Name: "user_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUModel).UserPct }},
	{Name: "system_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUModel).SystemPct }},
	{Name: "nr_periods_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUModel).NrPeriodsPerSec }},
	{Name: "nr_throttled_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUModel).NrThrottledPerSec }},
	{Name: "throttled_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUModel).ThrottledPct }},
}}

var memoryModelSchema = &Schema{Fields: []FieldSpec{
	{Name: "total", Container: ContainerScalar, Get: func(p any) any { return p.(*model.MemoryModel).Total }},
	{Name: "anon", Container: ContainerScalar, Get: func(p any) any { return p.(*model.MemoryModel).Anon }},
	{Name: "file", Container: ContainerScalar, Get: func(p any) any { return p.(*model.MemoryModel).File }},
	{Name: "pgfault_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.MemoryModel).PgfaultPerSec }},
	{Name: "pgmajfault_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.MemoryModel).PgmajfaultPerSec }},
	{Name: "pgscan_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.MemoryModel).PgscanPerSec }},
	{Name: "pgsteal_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.MemoryModel).PgstealPerSec }},
}}

var pressureModelSchema = &Schema{Fields: []FieldSpec{
	{Name: "cpu_some_avg10", Container: ContainerScalar, Get: func(p any) any { v := p.(*model.PressureModel).CPUSomeAvg10; return v }},
	{Name: "cpu_full_avg10", Container: ContainerScalar, Get: func(p any) any { return p.(*model.PressureModel).CPUFullAvg10 }},
	{Name: "io_some_avg10", Container: ContainerScalar, Get: func(p any) any { v := p.(*model.PressureModel).IOSomeAvg10; return v }},
	{Name: "io_full_avg10", Container: ContainerScalar, Get: func(p any) any { v := p.(*model.PressureModel).IOFullAvg10; return v }},
	{Name: "memory_some_avg10", Container: ContainerScalar, Get: func(p any) any { v := p.(*model.PressureModel).MemorySomeAvg10; return v }},
	{Name: "memory_full_avg10", Container: ContainerScalar, Get: func(p any) any { v := p.(*model.PressureModel).MemoryFullAvg10; return v }},
}}

// CgroupModelSchema is self-referential (Children recurses into the same
// schema), so it's built as a two-step: allocate the pointer, then
// populate Fields in a package-level init referencing that same pointer.
var CgroupModelSchema = &Schema{}

func init() {
	CgroupModelSchema.Fields = []FieldSpec{
		{Name: "name", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CgroupModel).Name }},
		{Name: "children", Container: ContainerMap, Sub: CgroupModelSchema, Get: func(p any) any {
			c := p.(*model.CgroupModel)
			out := make(stringMap[*model.CgroupModel], len(c.Children))
			for k, v := range c.Children {
				out[k] = v
			}
			return out
		}},
		{Name: "cpu", Container: ContainerStruct, Sub: cpuModelSchema, Get: func(p any) any {
			c := p.(*model.CgroupModel)
			if c.CPU == nil {
				return nil
			}
			return c.CPU
		}},
		{Name: "io", Container: ContainerStruct, Sub: ioModelSchema, Get: func(p any) any {
			c := p.(*model.CgroupModel)
			if c.IO == nil {
				return nil
			}
			return c.IO
		}},
		{Name: "memory", Container: ContainerStruct, Sub: memoryModelSchema, Get: func(p any) any {
			c := p.(*model.CgroupModel)
			if c.Memory == nil {
				return nil
			}
			return c.Memory
		}},
		{Name: "pressure", Container: ContainerStruct, Sub: pressureModelSchema, Get: func(p any) any {
			c := p.(*model.CgroupModel)
			if c.Pressure == nil {
				return nil
			}
			return c.Pressure
		}},
	}
}

var cpuCoreModelSchema = &Schema{Fields: []FieldSpec{
	{Name: "usage_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).UsagePct }},
	{Name: "user_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).UserPct }},
	{Name: "nice_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).NicePct }},
	{Name: "system_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).SystemPct }},
	{Name: "idle_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).IdlePct }},
	{Name: "iowait_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).IOWaitPct }},
	{Name: "irq_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).IRQPct }},
	{Name: "softirq_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).SoftIRQPct }},
	{Name: "steal_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).StealPct }},
	{Name: "guest_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).GuestPct }},
	{Name: "guest_nice_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.CPUCoreModel).GuestNicePct }},
}}

var diskModelSchema = &Schema{Fields: []FieldSpec{
	{Name: "read_bytes_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.DiskModel).ReadBytesPerSec }},
	{Name: "write_bytes_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.DiskModel).WriteBytesPerSec }},
	{Name: "discard_bytes_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.DiskModel).DiscardBytesPerSec }},
	{Name: "total_bytes_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.DiskModel).TotalBytesPerSec }},
}}

var slabModelSchema = &Schema{Fields: []FieldSpec{
	{Name: "name", Container: ContainerScalar, Get: func(p any) any { return p.(model.SlabModel).Name }},
	{Name: "active_objs", Container: ContainerScalar, Get: func(p any) any { return p.(model.SlabModel).ActiveObjs }},
	{Name: "num_objs", Container: ContainerScalar, Get: func(p any) any { return p.(model.SlabModel).NumObjs }},
	{Name: "num_slabs", Container: ContainerScalar, Get: func(p any) any { return p.(model.SlabModel).NumSlabs }},
	{Name: "active_caches", Container: ContainerScalar, Get: func(p any) any { return p.(model.SlabModel).ActiveCaches }},
	{Name: "num_caches", Container: ContainerScalar, Get: func(p any) any { return p.(model.SlabModel).NumCaches }},
	{Name: "active_size", Container: ContainerScalar, Get: func(p any) any { return p.(model.SlabModel).ActiveSize }},
	{Name: "total_size", Container: ContainerScalar, Get: func(p any) any { return p.(model.SlabModel).TotalSize }},
}}

type slabSlice []model.SlabModel

func (s slabSlice) Len() int { return len(s) }
func (s slabSlice) At(i int) (any, bool) {
	if i < 0 || i >= len(s) {
		return nil, false
	}
	return s[i], true
}

// SystemModelSchema is the query surface for model.SystemModel.
var SystemModelSchema = &Schema{Fields: []FieldSpec{
	{Name: "hostname", Container: ContainerScalar, Get: func(p any) any { return p.(*model.SystemModel).Hostname }},
	{Name: "kernel_release", Container: ContainerScalar, Get: func(p any) any { return p.(*model.SystemModel).KernelRelease }},
	{Name: "cpus", Container: ContainerMap, Sub: cpuCoreModelSchema, Get: func(p any) any {
		sys := p.(*model.SystemModel)
		out := make(int32Map[*model.CPUCoreModel], len(sys.CPUs))
		for k, v := range sys.CPUs {
			out[k] = v
		}
		return out
	}},
	{Name: "context_switches_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.SystemModel).ContextSwitchesPerSec }},
	{Name: "procs_running", Container: ContainerScalar, Get: func(p any) any { return p.(*model.SystemModel).ProcsRunning }},
	{Name: "procs_blocked", Container: ContainerScalar, Get: func(p any) any { return p.(*model.SystemModel).ProcsBlocked }},
	{Name: "mem_total", Container: ContainerScalar, Get: func(p any) any { return p.(*model.SystemModel).MemTotal }},
	{Name: "mem_free", Container: ContainerScalar, Get: func(p any) any { return p.(*model.SystemModel).MemFree }},
	{Name: "mem_available", Container: ContainerScalar, Get: func(p any) any { return p.(*model.SystemModel).MemAvailable }},
	{Name: "disks", Container: ContainerMap, Sub: diskModelSchema, Get: func(p any) any {
		sys := p.(*model.SystemModel)
		out := make(stringMap[*model.DiskModel], len(sys.Disks))
		for k, v := range sys.Disks {
			out[k] = v
		}
		return out
	}},
	{Name: "slabs", Container: ContainerVec, Sub: slabModelSchema, Get: func(p any) any {
		return slabSlice(p.(*model.SystemModel).Slabs)
	}},
}}

// ProcessModelSchema is the query surface for model.ProcessModel. The
// preferred-name override example spec §4.4 gives ("total_cpu serializes
// as cpu") has no direct analogue among this repo's fields; cpu_usage_pct
// below is named to match the rest of this schema's _pct convention
// instead of the bare struct field name, which is the same kind of
// override in spirit.
var ProcessModelSchema = &Schema{Fields: []FieldSpec{
	{Name: "pid", Container: ContainerScalar, Get: func(p any) any { return p.(*model.ProcessModel).PID }},
	{Name: "comm", Container: ContainerScalar, Get: func(p any) any { return p.(*model.ProcessModel).Comm }},
	{Name: "state", Container: ContainerScalar, Get: func(p any) any { return p.(*model.ProcessModel).State }},
	{Name: "cgroup_path", Container: ContainerScalar, Get: func(p any) any { return p.(*model.ProcessModel).CgroupPath }},
	{Name: "cmdline", Container: ContainerVec, Sub: stringElemSchema, Get: func(p any) any {
		return stringSlice(p.(*model.ProcessModel).Cmdline)
	}},
	{Name: "cpu_usage_pct", Container: ContainerScalar, Get: func(p any) any { return p.(*model.ProcessModel).CPUUsagePct }},
	{Name: "rss_bytes", Container: ContainerScalar, Get: func(p any) any { return p.(*model.ProcessModel).RSSBytes }},
	{Name: "read_bytes_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.ProcessModel).ReadBytesPerSec }},
	{Name: "write_bytes_per_sec", Container: ContainerScalar, Get: func(p any) any { return p.(*model.ProcessModel).WriteBytesPerSec }},
}}

// ModelSchema is the top-level query surface for model.Model.
var ModelSchema = &Schema{Fields: []FieldSpec{
	{Name: "system", Container: ContainerStruct, Sub: SystemModelSchema, Get: func(p any) any { return &p.(*model.Model).System }},
	{Name: "cgroup", Container: ContainerStruct, Sub: CgroupModelSchema, Get: func(p any) any {
		m := p.(*model.Model)
		if m.Cgroup == nil {
			return nil
		}
		return m.Cgroup
	}},
	{Name: "processes", Container: ContainerMap, Sub: ProcessModelSchema, Get: func(p any) any {
		m := p.(*model.Model)
		out := make(int32Map[*model.ProcessModel], len(m.Processes))
		for k, v := range m.Processes {
			out[k] = v
		}
		return out
	}},
}}

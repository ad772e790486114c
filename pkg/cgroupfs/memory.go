// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cgroupfs

import (
	"errors"

	"github.com/antimetal/resourcemon/pkg/sample"
)

// ReadMemoryCurrent reads memory.current.
func (r *Reader) ReadMemoryCurrent() (uint64, error) {
	return r.readSingleLineUint("memory.current")
}

// readMemoryMaxLike reads a memory.{high,max,low,min}-shaped file, mapping
// NotFound to (nil, nil) per spec §4.2 wrap rules for optional cgroup
// files.
func (r *Reader) readMemoryMaxLike(file string) (*int64, error) {
	v, err := r.readSingleLineMaxOrInt(file)
	if err != nil {
		var ioErr *IoError
		if errors.As(err, &ioErr) && ioErr.Kind == IoErrorNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *Reader) ReadMemoryHigh() (*int64, error) { return r.readMemoryMaxLike("memory.high") }
func (r *Reader) ReadMemoryMax() (*int64, error)  { return r.readMemoryMaxLike("memory.max") }

func (r *Reader) readMemoryUintLike(file string) (*uint64, error) {
	v, err := r.readSingleLineUint(file)
	if err != nil {
		var ioErr *IoError
		if errors.As(err, &ioErr) && ioErr.Kind == IoErrorNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *Reader) ReadMemoryLow() (*uint64, error) { return r.readMemoryUintLike("memory.low") }
func (r *Reader) ReadMemoryMin() (*uint64, error) { return r.readMemoryUintLike("memory.min") }

// ReadMemoryStat reads memory.stat.
func (r *Reader) ReadMemoryStat() (*sample.MemoryStat, error) {
	s := &sample.MemoryStat{}
	type slot struct {
		key string
		dst **uint64
	}
	slots := []slot{
		{"anon", &s.Anon}, {"file", &s.File}, {"kernel_stack", &s.KernelStack},
		{"slab", &s.Slab}, {"sock", &s.Sock}, {"shmem", &s.Shmem},
		{"file_mapped", &s.FileMapped}, {"file_dirty", &s.FileDirty},
		{"file_writeback", &s.FileWriteback}, {"anon_thp", &s.AnonThp},
		{"inactive_anon", &s.InactiveAnon}, {"active_anon", &s.ActiveAnon},
		{"inactive_file", &s.InactiveFile}, {"active_file", &s.ActiveFile},
		{"unevictable", &s.Unevictable}, {"slab_reclaimable", &s.SlabReclaimable},
		{"slab_unreclaimable", &s.SlabUnreclaimable}, {"pgfault", &s.Pgfault},
		{"pgmajfault", &s.Pgmajfault}, {"workingset_refault", &s.WorkingsetRefault},
		{"workingset_activate", &s.WorkingsetActivate},
		{"workingset_nodereclaim", &s.WorkingsetNodereclaim},
		{"pgrefill", &s.Pgrefill}, {"pgscan", &s.Pgscan}, {"pgsteal", &s.Pgsteal},
		{"pgactivate", &s.Pgactivate}, {"pgdeactivate", &s.Pgdeactivate},
		{"pglazyfree", &s.Pglazyfree}, {"pglazyfreed", &s.Pglazyfreed},
		{"thp_fault_alloc", &s.ThpFaultAlloc}, {"thp_collapse_alloc", &s.ThpCollapseAlloc},
	}
	byKey := make(map[string]*slot, len(slots))
	for i := range slots {
		byKey[slots[i].key] = &slots[i]
	}

	found := false
	err := r.scanFlatLines("memory.stat", func(key, val string) error {
		sl, ok := byKey[key]
		if !ok {
			return nil
		}
		v, perr := parseUintValue(val)
		if perr != nil {
			return perr
		}
		*sl.dst = &v
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &InvalidFileFormatError{Path: r.path("memory.stat")}
	}
	return s, nil
}

// ReadMemoryEvents reads memory.events.
func (r *Reader) ReadMemoryEvents() (*sample.MemoryEvents, error) {
	e := &sample.MemoryEvents{}
	found := false
	err := r.scanFlatLines("memory.events", func(key, val string) error {
		v, perr := parseUintValue(val)
		if perr != nil {
			return perr
		}
		switch key {
		case "low":
			e.Low = &v
		case "high":
			e.High = &v
		case "max":
			e.Max = &v
		case "oom":
			e.OOM = &v
		case "oom_kill":
			e.OOMKill = &v
		default:
			return nil
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &InvalidFileFormatError{Path: r.path("memory.events")}
	}
	return e, nil
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cgroupfs

import (
	"errors"
	"regexp"

	"github.com/antimetal/resourcemon/pkg/sample"
)

// BuildOptions controls a tree walk.
type BuildOptions struct {
	// NameFilter, if set, prunes the walk: a child cgroup whose own name
	// (its last path component) matches is skipped together with its whole
	// subtree. The root is always read. Set from sampler.Config.CgroupFilter.
	NameFilter *regexp.Regexp

	// CollectIOStat controls whether io.stat is read at all; some
	// deployments disable it because known kernel bugs on older releases
	// can return malformed io.stat lines for particular block drivers.
	CollectIOStat bool
}

// BuildTree walks the cgroup hierarchy rooted at r and returns the fully
// populated tree. It applies the §4.2 wrap rules: NotFound and DeviceGone
// on any individual file demote that field to nil rather than aborting the
// walk, since cgroups routinely appear and disappear underneath a live
// system. io.stat additionally demotes InvalidFileFormat/UnexpectedLine to
// nil: certain block drivers are known to emit malformed io.stat rows, and
// below's design note flags this as an accepted kernel quirk rather than a
// fatal condition.
func BuildTree(r *Reader, opts BuildOptions) (*sample.CgroupNode, error) {
	return buildNode(r, opts)
}

func buildNode(r *Reader, opts BuildOptions) (*sample.CgroupNode, error) {
	node := &sample.CgroupNode{Name: r.Name()}

	ino, err := demoteAbsent(r.ReadInodeNumber())
	if err != nil {
		return nil, err
	}
	if v, ok := ino.(uint64); ok {
		node.InodeNumber = &v
	}

	cpu, err := demoteAbsentErr(func() (any, error) { return r.ReadCPUStat() })
	if err != nil {
		return nil, err
	}
	if v, ok := cpu.(*sample.CPUStat2); ok {
		node.CPU = v
	}

	weight, err := demoteAbsentErr(func() (any, error) { return r.ReadCPUWeight() })
	if err != nil {
		return nil, err
	}
	if v, ok := weight.(uint64); ok {
		node.CPUWeight = &v
	}

	cpuMax, err := demoteAbsentErr(func() (any, error) { return r.ReadCPUMax() })
	if err != nil {
		return nil, err
	}
	if v, ok := cpuMax.(*sample.CPUMax); ok {
		node.CPUMax = v
	}

	if opts.CollectIOStat {
		io, ioErr := r.ReadIOStat()
		if ioErr != nil {
			if !isDemotableIOStatErr(ioErr) {
				return nil, ioErr
			}
			io = nil
		}
		node.IO = io
	}

	mem, err := buildMemoryBlock(r)
	if err != nil {
		return nil, err
	}
	node.Memory = mem

	pressure, err := r.ReadPressure()
	if err != nil {
		var notSupported *PressureNotSupportedError
		if !errors.As(err, &notSupported) {
			return nil, err
		}
		pressure = nil
	}
	node.Pressure = pressure

	pids, err := demoteAbsentErr(func() (any, error) { return r.ReadPids() })
	if err != nil {
		return nil, err
	}
	if v, ok := pids.(*sample.Pids); ok {
		node.Pids = v
	}

	cpuset, err := demoteAbsentErr(func() (any, error) { return r.ReadCpuset() })
	if err != nil {
		return nil, err
	}
	if v, ok := cpuset.(*sample.Cpuset); ok {
		node.Cpuset = v
	}

	controllers, err := demoteAbsentErr(func() (any, error) { return r.ReadControllers() })
	if err != nil {
		return nil, err
	}
	if v, ok := controllers.([]string); ok {
		node.Controllers = v
	}

	subtree, err := demoteAbsentErr(func() (any, error) { return r.ReadSubtreeControl() })
	if err != nil {
		return nil, err
	}
	if v, ok := subtree.([]string); ok {
		node.SubtreeControl = v
	}

	stat, err := demoteAbsentErr(func() (any, error) { return r.ReadCgroupStat() })
	if err != nil {
		return nil, err
	}
	if v, ok := stat.(*sample.CgroupStat); ok {
		node.Stat = v
	}

	names, err := r.ChildNames()
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		node.Children = make(map[string]*sample.CgroupNode, len(names))
	}
	for _, name := range names {
		if opts.NameFilter != nil && opts.NameFilter.MatchString(name) {
			continue
		}
		child, err := r.Child(name)
		if err != nil {
			if isAbsentErr(err) {
				continue
			}
			return nil, err
		}
		childNode, err := buildNode(child, opts)
		child.Close()
		if err != nil {
			return nil, err
		}
		node.Children[name] = childNode
	}

	return node, nil
}

func buildMemoryBlock(r *Reader) (*sample.MemoryBlock, error) {
	mb := &sample.MemoryBlock{}

	cur, err := demoteAbsentErr(func() (any, error) { return r.ReadMemoryCurrent() })
	if err != nil {
		return nil, err
	}
	if v, ok := cur.(uint64); ok {
		mb.Current = &v
	}

	stat, err := demoteAbsentErr(func() (any, error) { return r.ReadMemoryStat() })
	if err != nil {
		return nil, err
	}
	if v, ok := stat.(*sample.MemoryStat); ok {
		mb.Stat = v
	}

	events, err := demoteAbsentErr(func() (any, error) { return r.ReadMemoryEvents() })
	if err != nil {
		return nil, err
	}
	if v, ok := events.(*sample.MemoryEvents); ok {
		mb.Events = v
	}

	high, err := r.ReadMemoryHigh()
	if err != nil {
		if !isAbsentErr(err) {
			return nil, err
		}
	} else {
		mb.High = high
	}

	max, err := r.ReadMemoryMax()
	if err != nil {
		if !isAbsentErr(err) {
			return nil, err
		}
	} else {
		mb.Max = max
	}

	low, err := r.ReadMemoryLow()
	if err != nil {
		if !isAbsentErr(err) {
			return nil, err
		}
	} else {
		mb.Low = low
	}

	min, err := r.ReadMemoryMin()
	if err != nil {
		if !isAbsentErr(err) {
			return nil, err
		}
	} else {
		mb.Min = min
	}

	return mb, nil
}

// isAbsentErr reports whether err is a §4.2 "treat as absent" condition:
// the file or the cgroup itself is gone.
func isAbsentErr(err error) bool {
	var ioErr *IoError
	if errors.As(err, &ioErr) {
		return ioErr.Kind == IoErrorNotFound || ioErr.Kind == IoErrorDeviceGone
	}
	return false
}

// isDemotableIOStatErr additionally demotes malformed io.stat content,
// per the known-kernel-bug carve-out in SPEC_FULL §9.
func isDemotableIOStatErr(err error) bool {
	if isAbsentErr(err) {
		return true
	}
	var invalid *InvalidFileFormatError
	var unexpected *UnexpectedLineError
	return errors.As(err, &invalid) || errors.As(err, &unexpected)
}

// demoteAbsent and demoteAbsentErr adapt a (value, error) read into
// (any(value) or nil, error), collapsing §4.2-absent errors to (nil, nil)
// and propagating everything else.
func demoteAbsent(v uint64, err error) (any, error) {
	if err != nil {
		if isAbsentErr(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func demoteAbsentErr(read func() (any, error)) (any, error) {
	v, err := read()
	if err != nil {
		if isAbsentErr(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cgroupfs

import (
	"bufio"
	"strings"

	"github.com/antimetal/resourcemon/pkg/sample"
)

// ReadPids reads pids.current/pids.max.
func (r *Reader) ReadPids() (*sample.Pids, error) {
	cur, err := r.readSingleLineUint("pids.current")
	if err != nil {
		return nil, err
	}
	max, err := r.readSingleLineMaxOrInt("pids.max")
	if err != nil {
		return nil, err
	}
	return &sample.Pids{Current: &cur, Max: &max}, nil
}

func (r *Reader) readTrimmedLine(file string) (string, error) {
	f, err := r.openFile(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", &IoError{Path: r.path(file), Kind: IoErrorOther, Err: err}
		}
		return "", nil
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// ReadCpuset reads cpuset.cpus/.mems and their *.effective variants as raw
// list-format strings.
func (r *Reader) ReadCpuset() (*sample.Cpuset, error) {
	cpus, err := r.readTrimmedLine("cpuset.cpus")
	if err != nil {
		return nil, err
	}
	mems, err := r.readTrimmedLine("cpuset.mems")
	if err != nil {
		return nil, err
	}
	cpusEff, err := r.readTrimmedLine("cpuset.cpus.effective")
	if err != nil {
		return nil, err
	}
	memsEff, err := r.readTrimmedLine("cpuset.mems.effective")
	if err != nil {
		return nil, err
	}
	return &sample.Cpuset{
		Cpus:          cpus,
		Mems:          mems,
		CpusEffective: cpusEff,
		MemsEffective: memsEff,
	}, nil
}

// ReadControllers reads cgroup.controllers, a space-separated list of
// controllers available to this cgroup's children.
func (r *Reader) ReadControllers() ([]string, error) {
	line, err := r.readTrimmedLine("cgroup.controllers")
	if err != nil {
		return nil, err
	}
	if line == "" {
		return nil, nil
	}
	return strings.Fields(line), nil
}

// ReadSubtreeControl reads cgroup.subtree_control, the subset of
// controllers actually enabled for children.
func (r *Reader) ReadSubtreeControl() ([]string, error) {
	line, err := r.readTrimmedLine("cgroup.subtree_control")
	if err != nil {
		return nil, err
	}
	if line == "" {
		return nil, nil
	}
	return strings.Fields(line), nil
}

// ReadCgroupStat reads cgroup.stat.
func (r *Reader) ReadCgroupStat() (*sample.CgroupStat, error) {
	s := &sample.CgroupStat{}
	fields := map[string]*uint64{}
	var nrDescendants, nrDyingDescendants uint64
	fields["nr_descendants"] = &nrDescendants
	fields["nr_dying_descendants"] = &nrDyingDescendants

	seen := map[string]bool{}
	if err := r.readFlatKVSeen("cgroup.stat", fields, seen); err != nil {
		return nil, err
	}
	if seen["nr_descendants"] {
		s.NrDescendants = &nrDescendants
	}
	if seen["nr_dying_descendants"] {
		s.NrDyingDescendants = &nrDyingDescendants
	}
	return s, nil
}

// ReadInodeNumber stats the cgroup directory itself for its inode number,
// used as a stable identity across renames (spec §3).
func (r *Reader) ReadInodeNumber() (uint64, error) {
	f, err := r.openFile(".")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, &IoError{Path: r.path("."), Kind: classifyErrno(err), Err: err}
	}
	ino, err := inodeOf(info)
	if err != nil {
		return 0, &IoError{Path: r.path("."), Kind: IoErrorOther, Err: err}
	}
	return ino, nil
}

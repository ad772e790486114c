// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package procfs

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/antimetal/resourcemon/pkg/sample"
)

// ListPIDs enumerates the numeric entries of /proc, i.e. every live
// process at the instant of the read.
func (r *Reader) ListPIDs() ([]int32, error) {
	entries, err := os.ReadDir(r.ProcPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.ProcPath, err)
	}
	pids := make([]int32, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.ParseInt(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		pids = append(pids, int32(pid))
	}
	return pids, nil
}

// ReadProcStat reads /proc/<pid>/stat. The comm field is parenthesized and
// may itself contain spaces or parens, so it's extracted by the last ')'
// rather than naive field splitting (documented kernel quirk).
func (r *Reader) ReadProcStat(pid int32) (*sample.ProcStat, error) {
	path := r.procFile(strconv.Itoa(int(pid)), "stat")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	line := strings.TrimRight(string(data), "\n")

	open := strings.IndexByte(line, '(')
	closeIdx := strings.LastIndexByte(line, ')')
	if open < 0 || closeIdx < 0 || closeIdx < open {
		return nil, fmt.Errorf("malformed %s", path)
	}
	comm := line[open+1 : closeIdx]
	rest := strings.Fields(line[closeIdx+1:])
	// rest[i] holds proc(5)'s 1-indexed stat field (i+3): rest[0]=state(3),
	// rest[1]=ppid(4), rest[2]=pgrp(5), rest[3]=session(6), rest[4]=tty_nr(7),
	// rest[5]=tpgid(8), rest[6]=flags(9), rest[7]=minflt(10), rest[9]=majflt(12),
	// rest[11]=utime(14), rest[12]=stime(15), rest[15]=priority(18),
	// rest[16]=nice(19), rest[17]=num_threads(20), rest[19]=starttime(22),
	// rest[20]=vsize(23), rest[21]=rss(24).
	if len(rest) < 21 {
		return nil, fmt.Errorf("too few fields in %s", path)
	}
	parseInt := func(s string) int64 {
		v, _ := strconv.ParseInt(s, 10, 64)
		return v
	}
	parseUint := func(s string) uint64 {
		v, _ := strconv.ParseUint(s, 10, 64)
		return v
	}

	s := &sample.ProcStat{
		Comm:           comm,
		State:          rest[0][0],
		PPID:           int32(parseInt(rest[1])),
		PGID:           int32(parseInt(rest[2])),
		SID:            int32(parseInt(rest[3])),
		MinFlt:         parseUint(rest[7]),
		MajFlt:         parseUint(rest[9]),
		UTime:          parseUint(rest[11]),
		STime:          parseUint(rest[12]),
		Priority:       int32(parseInt(rest[15])),
		Nice:           int32(parseInt(rest[16])),
		NumThreads:     int32(parseInt(rest[17])),
		StartTimeTicks: parseUint(rest[19]),
		VSize:          parseUint(rest[20]),
	}
	if len(rest) > 21 {
		s.RSS = parseInt(rest[21])
	}
	return s, nil
}

// ReadProcStatus reads the context-switch counters from /proc/<pid>/status.
func (r *Reader) ReadProcStatus(pid int32) (*sample.ProcStatus, error) {
	path := r.procFile(strconv.Itoa(int(pid)), "status")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &sample.ProcStatus{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "voluntary_ctxt_switches:"):
			if v, err := parseTrailingUint(line); err == nil {
				s.VoluntaryCtxtSwitches = &v
			}
		case strings.HasPrefix(line, "nonvoluntary_ctxt_switches:"):
			if v, err := parseTrailingUint(line); err == nil {
				s.NonvoluntaryCtxtSwitches = &v
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseTrailingUint(line string) (uint64, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed line %q", line)
	}
	return strconv.ParseUint(fields[len(fields)-1], 10, 64)
}

// ReadProcIO reads /proc/<pid>/io. This file is commonly unreadable for
// processes not owned by the caller (requires CAP_SYS_PTRACE or same
// uid); callers are expected to tolerate EACCES/EPERM per process rather
// than aborting the whole sample (spec §3).
func (r *Reader) ReadProcIO(pid int32) (*sample.ProcIO, error) {
	path := r.procFile(strconv.Itoa(int(pid)), "io")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	io := &sample.ProcIO{}
	fields := map[string]**uint64{
		"rchar": &io.RChar, "wchar": &io.WChar,
		"read_bytes": &io.ReadBytes, "write_bytes": &io.WriteBytes,
	}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSuffix(parts[0], ":")
		dst, ok := fields[name]
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			continue
		}
		*dst = &v
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return io, nil
}

// ReadProcCgroup reads /proc/<pid>/cgroup and returns the cgroup v2 path
// (the single line with a "0::" prefix under the unified hierarchy).
func (r *Reader) ReadProcCgroup(pid int32) (string, error) {
	path := r.procFile(strconv.Itoa(int(pid)), "cgroup")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "0::") {
			return strings.TrimPrefix(line, "0::"), nil
		}
	}
	return "", fmt.Errorf("no unified hierarchy entry in %s", path)
}

// ReadProcCmdline reads /proc/<pid>/cmdline, NUL-separated arguments.
func (r *Reader) ReadProcCmdline(pid int32) ([]string, error) {
	path := r.procFile(strconv.Itoa(int(pid)), "cmdline")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimRight(string(data), "\x00")
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\x00"), nil
}

// ReadProcExe reads the /proc/<pid>/exe symlink target.
func (r *Reader) ReadProcExe(pid int32) (string, error) {
	path := r.procFile(strconv.Itoa(int(pid)), "exe")
	target, err := os.Readlink(path)
	if err != nil {
		return "", err
	}
	return target, nil
}

// ReadProcess assembles one Process fragment. Per spec §3, a missing or
// permission-denied /proc/<pid>/io does not fail the whole read: IOReadError
// is set and IO left nil. A vanished /proc/<pid> (process exited between
// ListPIDs and this read) is reported as a plain error for the caller to
// drop the pid, since the whole process fragment is gone, not one field.
func (r *Reader) ReadProcess(pid int32) (*sample.Process, error) {
	stat, err := r.ReadProcStat(pid)
	if err != nil {
		return nil, err
	}
	status, err := r.ReadProcStatus(pid)
	if err != nil {
		return nil, err
	}
	p := &sample.Process{PID: pid, Stat: stat, Status: status}

	io, err := r.ReadProcIO(pid)
	if err != nil {
		p.IOReadError = true
	} else {
		p.IO = io
	}

	if cg, err := r.ReadProcCgroup(pid); err == nil {
		p.CgroupPath = cg
	}
	if cmd, err := r.ReadProcCmdline(pid); err == nil {
		p.Cmdline = cmd
	}
	if exe, err := r.ReadProcExe(pid); err == nil {
		p.Exe = exe
	}

	return p, nil
}

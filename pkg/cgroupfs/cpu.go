// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cgroupfs

import (
	"strconv"
	"strings"

	"github.com/antimetal/resourcemon/pkg/sample"
)

// ReadCPUStat reads cpu.stat.
func (r *Reader) ReadCPUStat() (*sample.CPUStat2, error) {
	s := &sample.CPUStat2{}
	fields := map[string]*uint64{}
	var usageUsec, userUsec, systemUsec, nrPeriods, nrThrottled, throttledUsec uint64
	fields["usage_usec"] = &usageUsec
	fields["user_usec"] = &userUsec
	fields["system_usec"] = &systemUsec
	fields["nr_periods"] = &nrPeriods
	fields["nr_throttled"] = &nrThrottled
	fields["throttled_usec"] = &throttledUsec

	seen := map[string]bool{}
	if err := r.readFlatKVSeen("cpu.stat", fields, seen); err != nil {
		return nil, err
	}
	if seen["usage_usec"] {
		s.UsageUsec = &usageUsec
	}
	if seen["user_usec"] {
		s.UserUsec = &userUsec
	}
	if seen["system_usec"] {
		s.SystemUsec = &systemUsec
	}
	if seen["nr_periods"] {
		s.NrPeriods = &nrPeriods
	}
	if seen["nr_throttled"] {
		s.NrThrottled = &nrThrottled
	}
	if seen["throttled_usec"] {
		s.ThrottledUsec = &throttledUsec
	}
	return s, nil
}

// ReadCPUWeight reads cpu.weight.
func (r *Reader) ReadCPUWeight() (uint64, error) {
	return r.readSingleLineUint("cpu.weight")
}

// ReadCPUMax reads cpu.max, formatted "$MAX $PERIOD" or "max $PERIOD".
func (r *Reader) ReadCPUMax() (*sample.CPUMax, error) {
	f, err := r.openFile("cpu.max")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, 256)
	n, rerr := f.Read(buf)
	if rerr != nil && n == 0 {
		return nil, &InvalidFileFormatError{Path: r.path("cpu.max")}
	}
	line := strings.TrimSpace(string(buf[:n]))
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return nil, &UnexpectedLineError{Path: r.path("cpu.max"), Line: line}
	}
	var max int64
	if parts[0] == "max" {
		max = -1
	} else {
		v, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, &UnexpectedLineError{Path: r.path("cpu.max"), Line: line}
		}
		max = v
	}
	period, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, &UnexpectedLineError{Path: r.path("cpu.max"), Line: line}
	}
	return &sample.CPUMax{Max: max, Period: period}, nil
}

// readFlatKVSeen is readFlatKV but also reports which fields were present,
// so callers can distinguish "present with value 0" from "absent".
func (r *Reader) readFlatKVSeen(file string, fields map[string]*uint64, seen map[string]bool) error {
	f, err := r.openFile(file)
	if err != nil {
		return err
	}
	defer f.Close()

	found := false
	sc := newLineScanner(f)
	for sc.Scan() {
		line := sc.Text()
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return &UnexpectedLineError{Path: r.path(file), Line: line}
		}
		ptr, ok := fields[parts[0]]
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return &UnexpectedLineError{Path: r.path(file), Line: line}
		}
		*ptr = v
		seen[parts[0]] = true
		found = true
	}
	if err := sc.Err(); err != nil {
		return &IoError{Path: r.path(file), Kind: IoErrorOther, Err: err}
	}
	if !found {
		return &InvalidFileFormatError{Path: r.path(file)}
	}
	return nil
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cgroupfs

import (
	"errors"
	"strconv"

	"github.com/antimetal/resourcemon/pkg/sample"
)

func parseFloatField(kv map[string]string, key string) (float64, error) {
	s, ok := kv[key]
	if !ok {
		return 0, errMissingField
	}
	return strconv.ParseFloat(s, 64)
}

func parseUintFieldRequired(kv map[string]string, key string) (uint64, error) {
	s, ok := kv[key]
	if !ok {
		return 0, errMissingField
	}
	return strconv.ParseUint(s, 10, 64)
}

var errMissingField = errors.New("missing field")

func parsePressureMetrics(kv map[string]string) (PressureMetrics, error) {
	var m PressureMetrics
	var err error
	if m.Avg10, err = parseFloatField(kv, "avg10"); err != nil {
		return m, err
	}
	if m.Avg60, err = parseFloatField(kv, "avg60"); err != nil {
		return m, err
	}
	if m.Avg300, err = parseFloatField(kv, "avg300"); err != nil {
		return m, err
	}
	if m.Total, err = parseUintFieldRequired(kv, "total"); err != nil {
		return m, err
	}
	return m, nil
}

// PressureMetrics is a type alias kept local to this file's parsing helpers;
// the public shape lives in pkg/sample.
type PressureMetrics = sample.PressureMetrics

// readPressureFile reads a "some"/"full" *.pressure file. EOPNOTSUPP (kernel
// built without PSI, or the controller not PSI-instrumented) is reported as
// PressureNotSupportedError rather than demoted to nil: per spec §4.2 this
// distinction matters to callers, unlike the NotFound/ENODEV cases which
// collapse to "absent".
func (r *Reader) readPressureFile(file string) (some sample.PressureMetrics, full *sample.PressureMetrics, err error) {
	var haveSome, haveFull bool
	visitErr := r.readNamedKV(file, false, func(rowKey string, kv map[string]string) error {
		m, perr := parsePressureMetrics(kv)
		if perr != nil {
			return perr
		}
		switch rowKey {
		case "some":
			some = m
			haveSome = true
		case "full":
			f := m
			full = &f
			haveFull = true
		}
		return nil
	})
	if visitErr != nil {
		var ioErr *IoError
		if errors.As(visitErr, &ioErr) && ioErr.Kind == IoErrorNotSupported {
			return sample.PressureMetrics{}, nil, &PressureNotSupportedError{Path: r.path(file)}
		}
		return sample.PressureMetrics{}, nil, visitErr
	}
	if !haveSome {
		return sample.PressureMetrics{}, nil, &InvalidFileFormatError{Path: r.path(file)}
	}
	_ = haveFull
	return some, full, nil
}

// ReadCPUPressure reads cpu.pressure. The "full" line is optional: older
// kernels only report "some" for CPU pressure (spec §3).
func (r *Reader) ReadCPUPressure() (*sample.CPUPressure, error) {
	some, full, err := r.readPressureFile("cpu.pressure")
	if err != nil {
		var notSupported *PressureNotSupportedError
		if errors.As(err, &notSupported) {
			return nil, err
		}
		return nil, err
	}
	return &sample.CPUPressure{Some: some, Full: full}, nil
}

// ReadIOPressure reads io.pressure. Both "some" and "full" are required.
func (r *Reader) ReadIOPressure() (*sample.IOPressure, error) {
	some, full, err := r.readPressureFile("io.pressure")
	if err != nil {
		return nil, err
	}
	if full == nil {
		return nil, &InvalidFileFormatError{Path: r.path("io.pressure")}
	}
	return &sample.IOPressure{Some: some, Full: *full}, nil
}

// ReadMemoryPressure reads memory.pressure. Both "some" and "full" are
// required.
func (r *Reader) ReadMemoryPressure() (*sample.MemoryPressure, error) {
	some, full, err := r.readPressureFile("memory.pressure")
	if err != nil {
		return nil, err
	}
	if full == nil {
		return nil, &InvalidFileFormatError{Path: r.path("memory.pressure")}
	}
	return &sample.MemoryPressure{Some: some, Full: *full}, nil
}

// ReadPressure reads all three pressure files into one aggregate, applying
// the §4.2 wrap rule: NotFound/DeviceGone demote to a nil *Pressure with no
// error (the cgroup simply predates PSI accounting or vanished mid-read);
// anything else propagates.
func (r *Reader) ReadPressure() (*sample.Pressure, error) {
	cpu, err := r.ReadCPUPressure()
	if err != nil {
		if demoted, derr := demotePressureErr(err); demoted {
			return nil, derr
		}
		return nil, err
	}
	io, err := r.ReadIOPressure()
	if err != nil {
		if demoted, derr := demotePressureErr(err); demoted {
			return nil, derr
		}
		return nil, err
	}
	mem, err := r.ReadMemoryPressure()
	if err != nil {
		if demoted, derr := demotePressureErr(err); demoted {
			return nil, derr
		}
		return nil, err
	}
	return &sample.Pressure{CPU: *cpu, IO: *io, Memory: *mem}, nil
}

// demotePressureErr reports whether err is one of the "absent, not fatal"
// cases (NotFound/DeviceGone) and, if so, returns nil as the error to
// propagate; returns false for errors the caller should still treat as
// live (PressureNotSupportedError, malformed lines, etc).
func demotePressureErr(err error) (bool, error) {
	var ioErr *IoError
	if errors.As(err, &ioErr) && (ioErr.Kind == IoErrorNotFound || ioErr.Kind == IoErrorDeviceGone) {
		return true, nil
	}
	return false, err
}

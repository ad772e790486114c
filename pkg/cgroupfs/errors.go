// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package cgroupfs reads the cgroup v2 hierarchy into typed fragments of
// pkg/sample.CgroupNode, classifying I/O errors per the closed taxonomy in
// SPEC_FULL.md §7. It is grounded on the parsing shapes and wrap rules of
// facebookincubator/below's cgroupfs crate (_examples/original_source/
// below/cgroupfs/src/lib.rs), translated from Result<T, Error> into Go's
// explicit error returns.
package cgroupfs

import "fmt"

// IoErrorKind classifies the underlying I/O failure for IoError, so callers
// can apply the §4.2/§7 wrap rules without string-matching.
type IoErrorKind int

const (
	IoErrorOther IoErrorKind = iota
	IoErrorNotFound
	IoErrorNotSupported // EOPNOTSUPP, pressure files on kernels without PSI
	IoErrorDeviceGone    // ENODEV, cgroup removed mid-read
)

func (k IoErrorKind) String() string {
	switch k {
	case IoErrorNotFound:
		return "not found"
	case IoErrorNotSupported:
		return "not supported"
	case IoErrorDeviceGone:
		return "device gone"
	default:
		return "other"
	}
}

// InvalidFileFormatError means a file was structurally malformed (e.g.
// empty when at least one recognized key is required).
type InvalidFileFormatError struct {
	Path string
}

func (e *InvalidFileFormatError) Error() string {
	return fmt.Sprintf("invalid file format: %s", e.Path)
}

// UnexpectedLineError means a single line failed to parse.
type UnexpectedLineError struct {
	Path string
	Line string
}

func (e *UnexpectedLineError) Error() string {
	return fmt.Sprintf("unexpected line in %s: %q", e.Path, e.Line)
}

// IoError wraps an I/O failure with a classified Kind and the owning path.
type IoError struct {
	Path string
	Kind IoErrorKind
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// NotCgroup2Error means the root path's filesystem type isn't cgroup2
// (magic 0x63677270); the sampler must refuse to start in this case.
type NotCgroup2Error struct {
	Path string
}

func (e *NotCgroup2Error) Error() string {
	return fmt.Sprintf("not a cgroup2 filesystem: %s", e.Path)
}

// PressureNotSupportedError means a pressure file returned EOPNOTSUPP,
// distinct from absence so the UI can say "unsupported" rather than
// "absent".
type PressureNotSupportedError struct {
	Path string
}

func (e *PressureNotSupportedError) Error() string {
	return fmt.Sprintf("pressure metrics not supported: %s", e.Path)
}

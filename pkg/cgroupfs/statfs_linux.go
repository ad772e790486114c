// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build linux

package cgroupfs

import (
	"os"
	"syscall"
)

// cgroup2SuperMagic is CGROUP2_SUPER_MAGIC from linux/magic.h.
const cgroup2SuperMagic = 0x63677270

func checkCgroup2(path string) error {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return &IoError{Path: path, Kind: classifyErrno(err), Err: err}
	}
	if int64(st.Type) != cgroup2SuperMagic {
		return &NotCgroup2Error{Path: path}
	}
	return nil
}

// inodeOf extracts the inode number from a directory's os.FileInfo via its
// underlying syscall.Stat_t, the one piece of cgroup identity that survives
// a rename (spec §3).
func inodeOf(info os.FileInfo) (uint64, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, errNoStatT
	}
	return st.Ino, nil
}

var errNoStatT = &statTypeError{}

type statTypeError struct{}

func (*statTypeError) Error() string { return "os.FileInfo.Sys() is not *syscall.Stat_t" }

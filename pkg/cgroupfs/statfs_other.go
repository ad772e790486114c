// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

//go:build !linux

package cgroupfs

import "os"

func checkCgroup2(path string) error {
	return &NotCgroup2Error{Path: path}
}

func inodeOf(info os.FileInfo) (uint64, error) {
	return 0, &statTypeError{}
}

type statTypeError struct{}

func (*statTypeError) Error() string { return "inode numbers unavailable on this platform" }

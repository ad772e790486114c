// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

// ExitsnoopEvent mirrors the fixed-size header emitted by the exitsnoop BPF
// program on each sched_process_exit tracepoint hit. Produced by the
// go:generate bpf2go directive in exitwatch.go; kept here by hand since
// this tree doesn't carry the compiled .bpf.o this struct is shaped after.
type ExitsnoopEvent struct {
	PID      int32
	PPID     int32
	ExitCode int32
	_        int32 // padding to 8-byte align Comm
	Comm     [16]byte
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package model

import (
	"time"

	"github.com/antimetal/resourcemon/pkg/sample"
)

// ProcessModel is one pid's derived view.
type ProcessModel struct {
	PID        int32
	Comm       string
	State      byte
	CgroupPath string
	Cmdline    []string

	CPUUsagePct *float64
	RSSBytes    *uint64 // gauge, current sample only

	ReadBytesPerSec  *float64
	WriteBytesPerSec *float64
}

func buildProcessModels(curr, prev map[int32]*sample.Process, pageSize uint64, clockHzUsecPerTick float64, delta time.Duration) map[int32]*ProcessModel {
	if len(curr) == 0 {
		return map[int32]*ProcessModel{}
	}
	out := make(map[int32]*ProcessModel, len(curr))
	for pid, p := range curr {
		out[pid] = buildOneProcessModel(p, prev[pid], pageSize, clockHzUsecPerTick, delta)
	}
	return out
}

func buildOneProcessModel(curr, prev *sample.Process, pageSize uint64, usecPerTick float64, delta time.Duration) *ProcessModel {
	m := &ProcessModel{PID: curr.PID, CgroupPath: curr.CgroupPath, Cmdline: curr.Cmdline}

	if curr.Stat != nil {
		m.Comm = curr.Stat.Comm
		m.State = curr.Stat.State
		rss := uint64(curr.Stat.RSS) * pageSize
		m.RSSBytes = &rss

		if prev != nil && prev.Stat != nil {
			m.CPUUsagePct = cpuTicksPct(prev.Stat.UTime+prev.Stat.STime, curr.Stat.UTime+curr.Stat.STime, usecPerTick, delta)
		}
	}

	if curr.IO != nil && prev != nil && prev.IO != nil {
		m.ReadBytesPerSec = perSec(prev.IO.ReadBytes, curr.IO.ReadBytes, delta)
		m.WriteBytesPerSec = perSec(prev.IO.WriteBytes, curr.IO.WriteBytes, delta)
	}

	return m
}

// cpuTicksPct converts a pair of cumulative USER_HZ tick counts to a busy
// percentage over delta, the process-level analogue of usecPct (cgroup
// cpu.stat is already in microseconds; /proc/<pid>/stat is still in ticks).
func cpuTicksPct(prevTicks, currTicks uint64, usecPerTick float64, delta time.Duration) *float64 {
	if currTicks < prevTicks || delta <= 0 {
		return nil
	}
	usec := float64(currTicks-prevTicks) * usecPerTick
	pct := usec * 100 / float64(delta.Microseconds())
	return &pct
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package model

import (
	"time"

	"github.com/antimetal/resourcemon/pkg/procfs"
	"github.com/antimetal/resourcemon/pkg/sample"
)

// Model is the full derived view of one point in time, built from a
// sample.Sample and (optionally) its predecessor.
type Model struct {
	Timestamp time.Time
	Cgroup    *CgroupModel
	System    SystemModel
	Processes map[int32]*ProcessModel
}

// Build implements spec §4.3's build_model. prev and delta are both zero-
// valued/nil when there's no predecessor (e.g. the very first sample in a
// recording): every rate field throughout the resulting Model is then nil,
// never a guess.
//
// clock supplies the USER_HZ/page-size constants process CPU% and RSS
// conversion need; the same *procfs.Clock the sampler already holds should
// be passed through here so the two packages never disagree on units.
func Build(ts time.Time, curr *sample.Sample, prev *sample.Sample, delta time.Duration, clock *procfs.Clock) *Model {
	m := &Model{Timestamp: ts}

	var prevCgroup *sample.CgroupNode
	var prevSystem *sample.System
	var prevProcesses map[int32]*sample.Process
	if prev != nil {
		prevCgroup = prev.Cgroup
		prevSystem = &prev.System
		prevProcesses = prev.Processes
	}

	m.Cgroup = buildCgroupModel(curr.Cgroup, prevCgroup, delta)
	rollupTopLevel(m.Cgroup)

	m.System = buildSystemModel(&curr.System, prevSystem, delta)

	usecPerTick := 1e6 / float64(clock.UserHZ())
	m.Processes = buildProcessModels(curr.Processes, prevProcesses, uint64(clock.PageSize()), usecPerTick, delta)

	return m
}

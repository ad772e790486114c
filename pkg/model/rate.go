// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package model derives a point-in-time Model from a pair of raw
// sample.Sample reads (spec §4.3). Every derived rate or percentage
// follows the same ordering rule: both inputs must be present and
// non-decreasing, or the result is nil rather than a negative number,
// since a cumulative counter going backward means the source wrapped or
// the cgroup/process was recreated between samples.
package model

import "time"

// counter is the set of integer widths the cumulative kernel counters this
// package derives rates from come in.
type counter interface {
	~uint64 | ~int64
}

// perSec returns (curr-prev)/delta iff both are present and prev <= curr,
// matching spec §4.3's count_per_sec. The teacher's collectors compute the
// same shape inline per metric (see collectors/cpu.go's utilization calc);
// this generalizes it to every counter type this package touches.
func perSec[T counter](prev, curr *T, delta time.Duration) *float64 {
	if prev == nil || curr == nil || delta <= 0 {
		return nil
	}
	p, c := *prev, *curr
	if c < p {
		return nil
	}
	rate := float64(c-p) / delta.Seconds()
	return &rate
}

// perSecU64 is perSec's integer-ceiling variant (spec §4.3: "a u64 variant
// ceils to integer").
func perSecU64[T counter](prev, curr *T, delta time.Duration) *uint64 {
	rate := perSec(prev, curr, delta)
	if rate == nil {
		return nil
	}
	v := uint64(*rate)
	if float64(v) < *rate {
		v++
	}
	return &v
}

// usecPct returns the busy percentage over delta implied by a cumulative
// microsecond counter moving from prev to curr, per spec §4.3's usec_pct.
func usecPct(prev, curr *uint64, delta time.Duration) *float64 {
	if prev == nil || curr == nil || delta <= 0 {
		return nil
	}
	if *curr < *prev {
		return nil
	}
	pct := float64(*curr-*prev) * 100 / float64(delta.Microseconds())
	return &pct
}

// deltaSince is a small helper for the "curr - prev, non-decreasing only"
// pattern on plain (non-rate) counters, used by the system model's
// per-CPU tick derivations (buildOneCPUCore).
func deltaSince[T counter](prev, curr *T) *T {
	if prev == nil || curr == nil {
		return nil
	}
	if *curr < *prev {
		return nil
	}
	d := *curr - *prev
	return &d
}

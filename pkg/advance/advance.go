// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package advance implements the stateful cursor (spec §4.7's Advance
// cursor) that steps a viewer through a store.Reader one sample at a
// time, always yielding a fully derived model.Model by combining the
// newly read sample with the previously returned one.
package advance

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/antimetal/resourcemon/pkg/model"
	"github.com/antimetal/resourcemon/pkg/procfs"
	"github.com/antimetal/resourcemon/pkg/sample"
	"github.com/antimetal/resourcemon/pkg/store"
)

// lastSample is the cursor's memory of the previously returned record,
// needed to compute the next model's deltas.
type lastSample struct {
	ts time.Time
	s  *sample.Sample
}

// Cursor wraps a store.Reader (local or remote — the two are
// "indistinguishable" per spec §4.6) and owns the last_sample/
// next_target state spec §4.7 describes. It is not safe for concurrent
// use: a Viewer's UI thread owns one Cursor exclusively.
type Cursor struct {
	reader store.Reader
	clock  *procfs.Clock
	logger logr.Logger

	last       *lastSample
	nextTarget time.Time
}

type Opts func(*Cursor)

func WithLogger(logger logr.Logger) Opts {
	return func(c *Cursor) { c.logger = logger }
}

// New builds a Cursor positioned at start. Call Initialize before the
// first Advance to seed last_sample from the record immediately before
// start, so the first forward Advance can already report rates.
func New(reader store.Reader, clock *procfs.Clock, start time.Time, opts ...Opts) *Cursor {
	c := &Cursor{reader: reader, clock: clock, nextTarget: start, logger: logr.Discard()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize pre-seeds last_sample with the record immediately before
// next_target. If none exists, last_sample stays unset and the next
// forward Advance yields a model with every rate field nil.
func (c *Cursor) Initialize(ctx context.Context) error {
	ts, frame, ok, err := c.reader.GetFrame(ctx, c.nextTarget.Add(-time.Second), store.Reverse)
	if err != nil {
		return fmt.Errorf("advance: initialize: %w", err)
	}
	if ok {
		c.last = &lastSample{ts: ts, s: frame.Sample}
	}
	return nil
}

// Advance implements spec §4.7's six-step algorithm. It returns
// (nil, false, nil) when the store reader has nothing further in dir.
func (c *Cursor) Advance(ctx context.Context, dir store.Direction) (*model.Model, bool, error) {
	ts, frame, ok, err := c.reader.GetFrame(ctx, c.nextTarget, dir)
	if err != nil {
		return nil, false, fmt.Errorf("advance: read at %s %s: %w", c.nextTarget, dir, err)
	}
	if !ok {
		return nil, false, nil
	}
	curr := frame.Sample

	older, delta, err := c.readOlder(ctx, ts)
	if err != nil {
		// Failure to read the older neighbor is not fatal: the model is
		// still built, just with nil rate fields (older == nil).
		c.logger.V(1).Info("advance: older neighbor read failed, yielding rateless model", "error", err)
		older, delta = nil, 0
	}

	m := model.Build(ts, curr, older, delta, c.clock)

	switch dir {
	case store.Forward:
		c.nextTarget = ts.Add(time.Second)
	default:
		c.nextTarget = ts.Add(-time.Second)
	}
	c.last = &lastSample{ts: ts, s: curr}

	return m, true, nil
}

// readOlder fetches the neighbor immediately before ts, regardless of
// the direction Advance is traveling: rate fields always compare
// against the chronologically-preceding sample.
func (c *Cursor) readOlder(ctx context.Context, ts time.Time) (*sample.Sample, time.Duration, error) {
	olderTS, frame, ok, err := c.reader.GetFrame(ctx, ts.Add(-time.Second), store.Reverse)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, nil
	}
	return frame.Sample, ts.Sub(olderTS), nil
}

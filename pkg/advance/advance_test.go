// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package advance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/resourcemon/pkg/procfs"
	"github.com/antimetal/resourcemon/pkg/sample"
	"github.com/antimetal/resourcemon/pkg/store"
)

func writeSeries(t *testing.T, dir string, baseUnix int64, n int) []time.Time {
	t.Helper()
	return writeSeriesSpaced(t, dir, baseUnix, n, 1)
}

func writeSeriesSpaced(t *testing.T, dir string, baseUnix int64, n int, spacingSeconds int64) []time.Time {
	t.Helper()
	w, err := store.OpenWriter(store.Config{Dir: dir, ChunkSizeLog2: 8})
	require.NoError(t, err)
	var times []time.Time
	for i := 0; i < n; i++ {
		ts := time.Unix(baseUnix+int64(i)*spacingSeconds, 0)
		cs := uint64(i) * 100
		s := &sample.Sample{
			Timestamp: ts,
			System: sample.System{
				Hostname: "host",
				Stat:     &sample.Stat{ContextSwitches: &cs},
			},
		}
		require.NoError(t, w.Put(ts, s))
		times = append(times, ts)
	}
	require.NoError(t, w.Close())
	return times
}

func TestAdvanceForwardComputesRates(t *testing.T) {
	dir := t.TempDir()
	times := writeSeries(t, dir, 1000, 5)

	r, err := store.OpenLocalReader(dir, store.Cbor)
	require.NoError(t, err)
	defer r.Close()

	clock := procfs.NewClock("/proc")
	c := New(r, clock, times[0])
	require.NoError(t, c.Initialize(context.Background()))

	m, ok, err := c.Advance(context.Background(), store.Forward)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.Timestamp.Equal(times[0]))
	// first record has no predecessor: every rate field is nil.
	assert.Nil(t, m.System.ContextSwitchesPerSec)

	m2, ok, err := c.Advance(context.Background(), store.Forward)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m2.Timestamp.Equal(times[1]))
	require.NotNil(t, m2.System.ContextSwitchesPerSec)
	assert.InDelta(t, 100.0, *m2.System.ContextSwitchesPerSec, 0.001)
}

func TestAdvanceExhaustedReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	times := writeSeries(t, dir, 1000, 3)

	r, err := store.OpenLocalReader(dir, store.Cbor)
	require.NoError(t, err)
	defer r.Close()

	clock := procfs.NewClock("/proc")
	c := New(r, clock, times[0])
	require.NoError(t, c.Initialize(context.Background()))

	for i := 0; i < 3; i++ {
		_, ok, err := c.Advance(context.Background(), store.Forward)
		require.NoError(t, err)
		require.True(t, ok)
	}
	_, ok, err := c.Advance(context.Background(), store.Forward)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestAdvanceForwardAndReverse mirrors the store test this cursor's
// design is checked against: after Initialize followed by k forward
// advances then k-1 reverse advances, the cursor sits on the frame at
// times[1] (the second stored frame).
func TestAdvanceForwardAndReverse(t *testing.T) {
	dir := t.TempDir()
	// Spaced 10s apart (wider than the ±1s the cursor steps next_target
	// by) so the first reverse search, made from one second past the last
	// forward hit, lands back on that same record instead of on the next,
	// not-yet-visited one.
	times := writeSeriesSpaced(t, dir, 1000, 6, 10)

	r, err := store.OpenLocalReader(dir, store.Cbor)
	require.NoError(t, err)
	defer r.Close()

	clock := procfs.NewClock("/proc")
	c := New(r, clock, times[0])
	require.NoError(t, c.Initialize(context.Background()))

	const k = 4
	var last *time.Time
	for i := 0; i < k; i++ {
		m, ok, err := c.Advance(context.Background(), store.Forward)
		require.NoError(t, err)
		require.True(t, ok)
		ts := m.Timestamp
		last = &ts
	}
	require.NotNil(t, last)
	assert.True(t, last.Equal(times[k-1]))

	for i := 0; i < k-1; i++ {
		m, ok, err := c.Advance(context.Background(), store.Reverse)
		require.NoError(t, err)
		require.True(t, ok)
		last = &m.Timestamp
	}
	assert.True(t, last.Equal(times[1]))
}

func TestInitializeWithNoPriorRecordLeavesLastNil(t *testing.T) {
	dir := t.TempDir()
	times := writeSeries(t, dir, 1000, 3)

	r, err := store.OpenLocalReader(dir, store.Cbor)
	require.NoError(t, err)
	defer r.Close()

	clock := procfs.NewClock("/proc")
	c := New(r, clock, times[0])
	require.NoError(t, c.Initialize(context.Background()))
	assert.Nil(t, c.last)
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/resourcemon/pkg/sample"
)

func putN(t *testing.T, w *Writer, baseUnix int64, n int) []time.Time {
	t.Helper()
	var times []time.Time
	for i := 0; i < n; i++ {
		ts := time.Unix(baseUnix+int64(i), 0)
		s := &sample.Sample{Timestamp: ts, System: sample.System{Hostname: "host"}}
		require.NoError(t, w.Put(ts, s))
		times = append(times, ts)
	}
	return times
}

func TestWriterReaderExactHit(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 4})
	require.NoError(t, err)
	times := putN(t, w, 1000, 10)
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	ts, frame, ok, err := r.GetFrame(context.Background(), times[5], Forward)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.Equal(times[5]))
	assert.Equal(t, "host", frame.Sample.System.Hostname)
}

func TestWriterReaderEmptyStore(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 4})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	_, _, ok, err := r.GetFrame(context.Background(), time.Unix(1000, 0), Forward)
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, ok, err = r.GetFrame(context.Background(), time.Unix(1000, 0), Reverse)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriterReaderBeforeFirstRecord(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 4})
	require.NoError(t, err)
	times := putN(t, w, 1000, 5)
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	ts, _, ok, err := r.GetFrame(context.Background(), time.Unix(500, 0), Forward)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.Equal(times[0]))

	_, _, ok, err = r.GetFrame(context.Background(), time.Unix(500, 0), Reverse)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriterReaderAfterLastRecord(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 4})
	require.NoError(t, err)
	times := putN(t, w, 1000, 5)
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	ts, _, ok, err := r.GetFrame(context.Background(), time.Unix(9999, 0), Reverse)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.Equal(times[len(times)-1]))

	_, _, ok, err = r.GetFrame(context.Background(), time.Unix(9999, 0), Forward)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriterReaderMissRoundsToNearest(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 4})
	require.NoError(t, err)
	// records at 1000, 1002, 1004 (gaps of 2s so 1001/1003 are misses)
	for i, unix := range []int64{1000, 1002, 1004} {
		ts := time.Unix(unix, 0)
		require.NoError(t, w.Put(ts, &sample.Sample{Timestamp: ts, System: sample.System{Hostname: "h"}}))
		_ = i
	}
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	ts, _, ok, err := r.GetFrame(context.Background(), time.Unix(1001, 0), Forward)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1002), ts.Unix())

	ts, _, ok, err = r.GetFrame(context.Background(), time.Unix(1001, 0), Reverse)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1000), ts.Unix())
}

func TestWriterRollsOverChunksAndReaderSpansThem(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 2}) // 4 records/chunk
	require.NoError(t, err)
	times := putN(t, w, 1000, 10) // spans 3 chunks
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	for _, ts := range times {
		got, _, ok, err := r.GetFrame(context.Background(), ts, Forward)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, got.Equal(ts))
	}
}

func TestWriterZstdCompression(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 4, Compression: Zstd, ZstdLevel: 3})
	require.NoError(t, err)
	times := putN(t, w, 1000, 6)
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	_, frame, ok, err := r.GetFrame(context.Background(), times[3], Forward)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "host", frame.Sample.System.Hostname)
}

func TestWriterZstdDictionaryCompression(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 5, Compression: ZstdDictionary})
	require.NoError(t, err)
	times := putN(t, w, 1000, 20) // > dictTrainSampleCount, all one chunk
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	for _, ts := range []time.Time{times[0], times[9], times[19]} {
		_, frame, ok, err := r.GetFrame(context.Background(), ts, Forward)
		require.NoError(t, err)
		require.True(t, ok, "ts %s", ts)
		assert.Equal(t, "host", frame.Sample.System.Hostname)
	}
}

func TestWriterZstdDictionaryFlushesPendingOnClose(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 5, Compression: ZstdDictionary})
	require.NoError(t, err)
	// Fewer than dictTrainSampleCount and far from chunk capacity, so Put
	// never triggers bufferForDictionaryTraining's own flush; only Close's
	// finalizeChunk can flush these.
	times := putN(t, w, 1000, 3)
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	for i, ts := range times {
		_, frame, ok, err := r.GetFrame(context.Background(), ts, Forward)
		require.NoError(t, err)
		require.True(t, ok, "sample %d at %s was dropped", i, ts)
		assert.Equal(t, "host", frame.Sample.System.Hostname)
	}
}

func TestWriterZstdDictionarySinglePendingSampleOnClose(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 5, Compression: ZstdDictionary})
	require.NoError(t, err)
	times := putN(t, w, 1000, 1)
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	_, frame, ok, err := r.GetFrame(context.Background(), times[0], Forward)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "host", frame.Sample.System.Hostname)
}

func TestPutRejectsDecreasingTimestamp(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 4})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Put(time.Unix(1000, 0), &sample.Sample{}))
	err = w.Put(time.Unix(999, 0), &sample.Sample{})
	assert.Error(t, err)
}

func TestPutAcceptsDuplicateTimestamp(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 4})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Put(time.Unix(1000, 0), &sample.Sample{}))
	assert.NoError(t, w.Put(time.Unix(1000, 0), &sample.Sample{}))
}

func TestDiscardEarlierDropsWholeChunksOnly(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(Config{Dir: dir, ChunkSizeLog2: 2}) // 4 records/chunk
	require.NoError(t, err)
	times := putN(t, w, 1000, 12) // 3 chunks: [1000-1003][1004-1007][1008-1011]

	require.NoError(t, w.DiscardEarlier(time.Unix(1004, 0)))
	require.NoError(t, w.Close())

	r, err := OpenLocalReader(dir, Cbor)
	require.NoError(t, err)
	defer r.Close()

	// First chunk's records are gone.
	_, _, ok, err := r.GetFrame(context.Background(), times[0], Reverse)
	require.NoError(t, err)
	assert.False(t, ok)

	// Second chunk's first record survives.
	ts, _, ok, err := r.GetFrame(context.Background(), times[4], Forward)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.Equal(times[4]))
}

func TestCatalogPutGetAllDelete(t *testing.T) {
	dir := t.TempDir()
	cat, err := openCatalog(dir, false)
	require.NoError(t, err)
	defer cat.Close()

	require.NoError(t, cat.put(catalogEntry{Ordinal: 0, FirstTS: 100, LastTS: 200, RecordCount: 4}))
	require.NoError(t, cat.put(catalogEntry{Ordinal: 1, FirstTS: 201, LastTS: 300, RecordCount: 4}))

	entries, err := cat.all()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(0), entries[0].Ordinal)
	assert.Equal(t, uint64(1), entries[1].Ordinal)

	max, ok, err := cat.maxOrdinal()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), max)

	require.NoError(t, cat.delete(0))
	entries, err = cat.all()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].Ordinal)
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package store

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/DataDog/zstd"

	"github.com/antimetal/resourcemon/pkg/sample"
)

// dictTrainSampleCount is how many raw payloads a ZstdDictionary chunk
// buffers before training its dictionary — spec §4.5 names the mechanism
// ("first record... holds a Zstd training dictionary") but not a sample
// count; DataDog/zstd's TrainFromBuffer documents diminishing returns
// below a handful of samples, so a small fixed count is used rather than
// buffering an entire chunk in memory.
const dictTrainSampleCount = 8

// minDictSizeBytes is TrainFromBuffer's dictionary size target, floored
// so a small ChunkSizeLog2 doesn't starve the trainer.
const minDictSizeBytes = 4096

type pendingSample struct {
	ts  time.Time
	raw []byte
}

// Writer appends (timestamp, Sample) pairs to on-disk chunks per spec
// §4.5. Put, DiscardEarlier and Close take an internal mutex, so calls
// from several goroutines are serialized (the sampler's recorder loop is
// single-threaded per §5 in any case).
type Writer struct {
	cfg     Config
	catalog *catalog

	mu sync.Mutex

	ordinal        uint64
	idxFile        *os.File
	datFile        *os.File
	datOffset      uint64
	recordsInChunk int
	chunkFirstTS   int64
	chunkLastTS    int64
	haveChunkTS    bool

	// lastPutTS/haveLastPutTS track the writer's whole lifetime (not
	// reset on chunk rollover), since spec §4.5's non-decreasing
	// requirement applies across the whole Put sequence, not per chunk.
	lastPutTS    int64
	haveLastPutTS bool

	dict        []byte
	dictPending []pendingSample
}

// OpenWriter creates cfg.Dir if needed and opens a new chunk, continuing
// the ordinal sequence of any chunks already catalogued there. Resuming
// appends into an existing, not-yet-full chunk across process restarts
// is not supported: every OpenWriter starts a fresh chunk, even if the
// previous process's last chunk had spare capacity. This trades a little
// space efficiency across restarts for a much simpler single-writer
// lifecycle, and is recorded as an open-question resolution in DESIGN.md.
func OpenWriter(cfg Config) (*Writer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir %s: %w", cfg.Dir, err)
	}
	cat, err := openCatalog(cfg.Dir, false)
	if err != nil {
		return nil, err
	}
	next := uint64(0)
	if maxOrd, ok, err := cat.maxOrdinal(); err != nil {
		_ = cat.Close()
		return nil, err
	} else if ok {
		next = maxOrd + 1
	}
	w := &Writer{cfg: cfg, catalog: cat, ordinal: next}
	if err := w.openChunk(); err != nil {
		_ = cat.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) openChunk() error {
	idxPath, datPath := chunkPaths(w.cfg.Dir, w.ordinal)
	idxFile, err := os.OpenFile(idxPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", idxPath, err)
	}
	datFile, err := os.OpenFile(datPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		_ = idxFile.Close()
		return fmt.Errorf("store: open %s: %w", datPath, err)
	}
	w.idxFile, w.datFile = idxFile, datFile
	w.datOffset = 0
	w.recordsInChunk = 0
	w.haveChunkTS = false
	w.dict = nil
	w.dictPending = nil
	return nil
}

// Put appends s, timestamped ts, per spec §4.5's put(timestamp,
// &DataFrame). Timestamps across successive calls must be non-decreasing;
// duplicate timestamps are accepted.
func (w *Writer) Put(ts time.Time, s *sample.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.haveLastPutTS && ts.Unix() < w.lastPutTS {
		return fmt.Errorf("store: put timestamp %s precedes previous %s", ts, time.Unix(w.lastPutTS, 0))
	}
	w.lastPutTS, w.haveLastPutTS = ts.Unix(), true

	if w.recordsInChunk >= w.cfg.recordsPerChunk() {
		if err := w.finalizeChunk(); err != nil {
			return err
		}
		w.ordinal++
		if err := w.openChunk(); err != nil {
			return err
		}
	}

	raw, err := marshalFrame(w.cfg.Format, &DataFrame{Sample: s})
	if err != nil {
		return err
	}

	if w.cfg.Compression == ZstdDictionary && w.dict == nil {
		return w.bufferForDictionaryTraining(ts, raw)
	}

	return w.writeSampleRecord(ts, raw)
}

// bufferForDictionaryTraining accumulates raw payloads until either
// dictTrainSampleCount samples are buffered or the chunk would otherwise
// be full, then trains the dictionary and flushes every buffered sample.
func (w *Writer) bufferForDictionaryTraining(ts time.Time, raw []byte) error {
	w.dictPending = append(w.dictPending, pendingSample{ts: ts, raw: raw})

	remainingCapacity := w.cfg.recordsPerChunk() - w.recordsInChunk - 1 // -1 reserves the dict record's own slot
	if len(w.dictPending) < dictTrainSampleCount && len(w.dictPending) < remainingCapacity {
		return nil
	}
	return w.flushPendingDict()
}

// flushPendingDict trains a dictionary on whatever has been buffered (even
// fewer than dictTrainSampleCount) and writes every buffered sample. It is
// a no-op once dictPending is empty, so it's safe to call unconditionally
// before a chunk is finalized. A single buffered sample can't usefully
// train a dictionary, so it's stored uncompressed instead.
func (w *Writer) flushPendingDict() error {
	if len(w.dictPending) == 0 {
		return nil
	}
	pending := w.dictPending
	w.dictPending = nil

	if len(pending) == 1 {
		return w.writeRawRecord(pending[0].ts, pending[0].raw)
	}

	samples := make([][]byte, len(pending))
	for i, p := range pending {
		samples[i] = p.raw
	}
	dictSize := minDictSizeBytes
	if sz := 1 << w.cfg.ChunkSizeLog2 * 16; sz > dictSize {
		dictSize = sz
	}
	dict, err := zstd.TrainFromBuffer(samples, dictSize)
	if err != nil {
		return fmt.Errorf("store: train zstd dictionary: %w", err)
	}
	w.dict = dict

	if err := w.writeDictionaryRecord(pending[0].ts, dict); err != nil {
		return err
	}
	for _, p := range pending {
		if err := w.writeSampleRecord(p.ts, p.raw); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeDictionaryRecord(ts time.Time, dict []byte) error {
	return w.appendRecord(ts, dict, flagIsDictionaryPayload)
}

func (w *Writer) writeSampleRecord(ts time.Time, raw []byte) error {
	hash := contentHash(raw)
	payload := raw
	var flags recordFlags
	switch w.cfg.Compression {
	case Zstd:
		compressed, err := zstd.CompressLevel(nil, raw, w.cfg.ZstdLevel)
		if err != nil {
			return fmt.Errorf("store: zstd compress: %w", err)
		}
		payload, flags = compressed, flagCompressed
	case ZstdDictionary:
		compressed, err := zstd.CompressDict(nil, raw, w.dict)
		if err != nil {
			return fmt.Errorf("store: zstd dictionary compress: %w", err)
		}
		payload, flags = compressed, flagCompressed|flagDictionary
	}
	return w.appendRecordWithHash(ts, payload, flags, hash)
}

func (w *Writer) appendRecord(ts time.Time, payload []byte, flags recordFlags) error {
	return w.appendRecordWithHash(ts, payload, flags, contentHash(payload))
}

// writeRawRecord appends raw without compression, for the rare case where
// ZstdDictionary mode has too few buffered samples to train on.
func (w *Writer) writeRawRecord(ts time.Time, raw []byte) error {
	return w.appendRecordWithHash(ts, raw, 0, contentHash(raw))
}

func (w *Writer) appendRecordWithHash(ts time.Time, payload []byte, flags recordFlags, hash [32]byte) error {
	n, err := w.datFile.Write(payload)
	if err != nil {
		return fmt.Errorf("store: write data: %w", err)
	}
	rec := indexRecord{
		UnixSeconds: ts.Unix(),
		Offset:      w.datOffset,
		Length:      uint32(n),
		Hash:        hash,
		Flags:       flags,
	}
	if _, err := w.idxFile.Write(rec.encode()); err != nil {
		return fmt.Errorf("store: write index: %w", err)
	}
	w.datOffset += uint64(n)
	w.recordsInChunk++
	if flags&flagIsDictionaryPayload == 0 {
		if !w.haveChunkTS {
			w.chunkFirstTS = ts.Unix()
		}
		w.chunkLastTS = ts.Unix()
		w.haveChunkTS = true
	}
	return nil
}

// finalizeChunk fsyncs both files (the fsync-on-close policy spec §4.5
// permits tightening but doesn't require a stricter one) and records the
// chunk's metadata in the catalog.
func (w *Writer) finalizeChunk() error {
	if err := w.flushPendingDict(); err != nil {
		return err
	}
	if w.recordsInChunk == 0 {
		return nil
	}
	if err := w.datFile.Sync(); err != nil {
		return fmt.Errorf("store: fsync data file: %w", err)
	}
	if err := w.idxFile.Sync(); err != nil {
		return fmt.Errorf("store: fsync index file: %w", err)
	}
	if err := w.datFile.Close(); err != nil {
		return fmt.Errorf("store: close data file: %w", err)
	}
	if err := w.idxFile.Close(); err != nil {
		return fmt.Errorf("store: close index file: %w", err)
	}
	return w.catalog.put(catalogEntry{
		Ordinal:     w.ordinal,
		FirstTS:     w.chunkFirstTS,
		LastTS:      w.chunkLastTS,
		RecordCount: uint32(w.recordsInChunk),
	})
}

// DiscardEarlier drops every whole chunk whose last timestamp is before
// cutoff, per spec §4.5: "never partially truncate a chunk". The current,
// still-open chunk is never a candidate regardless of its contents.
func (w *Writer) DiscardEarlier(cutoff time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, err := w.catalog.all()
	if err != nil {
		return err
	}
	cutoffUnix := cutoff.Unix()
	for _, e := range entries {
		if e.Ordinal == w.ordinal {
			continue // never touch the chunk still being written
		}
		if e.LastTS >= cutoffUnix {
			continue
		}
		idxPath, datPath := chunkPaths(w.cfg.Dir, e.Ordinal)
		if err := os.Remove(idxPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: remove %s: %w", idxPath, err)
		}
		if err := os.Remove(datPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: remove %s: %w", datPath, err)
		}
		if err := w.catalog.delete(e.Ordinal); err != nil {
			return err
		}
	}
	return nil
}

// Close finalizes the current chunk and closes the catalog.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.finalizeChunk(); err != nil {
		_ = w.catalog.Close()
		return err
	}
	return w.catalog.Close()
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/DataDog/zstd"
)

// Reader is spec §4.6's Store Reader contract: given a target timestamp
// and a Direction, return the nearest stored frame, or ok=false if none
// exists in that direction. A remote reader (remote.go) implements the
// same interface "indistinguishably" over a network transport.
type Reader interface {
	GetFrame(ctx context.Context, target time.Time, dir Direction) (ts time.Time, frame *DataFrame, ok bool, err error)
}

// LocalReader reads chunks written by a Writer (possibly still being
// written to by a concurrent process) directly off disk.
type LocalReader struct {
	dir     string
	format  Format
	catalog *catalog
}

// OpenLocalReader opens dir's catalog read-only. format must match the
// Format the chunks in dir were written with (spec §4.5 names only Cbor
// today, so this is rarely anything else).
func OpenLocalReader(dir string, format Format) (*LocalReader, error) {
	cat, err := openCatalog(dir, true)
	if err != nil {
		return nil, err
	}
	return &LocalReader{dir: dir, format: format, catalog: cat}, nil
}

func (r *LocalReader) Close() error {
	return r.catalog.Close()
}

func (r *LocalReader) GetFrame(_ context.Context, target time.Time, dir Direction) (time.Time, *DataFrame, bool, error) {
	entries, err := r.catalog.all()
	if err != nil {
		return time.Time{}, nil, false, err
	}
	if len(entries) == 0 {
		return time.Time{}, nil, false, nil
	}

	targetUnix := target.Unix()
	i := sort.Search(len(entries), func(i int) bool { return entries[i].LastTS >= targetUnix })

	switch {
	case i == len(entries):
		// target is after every chunk's range.
		if dir == Reverse {
			return r.readChunkBoundary(entries[len(entries)-1], target, dir)
		}
		return time.Time{}, nil, false, nil
	case targetUnix < entries[i].FirstTS:
		// target falls strictly before entries[i] (either before the
		// first chunk, or in a gap left by a pruned predecessor).
		if dir == Forward {
			return r.readChunkBoundary(entries[i], target, dir)
		}
		if i == 0 {
			return time.Time{}, nil, false, nil
		}
		return r.readChunkBoundary(entries[i-1], target, dir)
	default:
		// target is within entries[i]'s [FirstTS, LastTS] range.
		return r.readChunkBoundary(entries[i], target, dir)
	}
}

// readChunkBoundary binary-searches one chunk's index for target per
// spec §4.6's exact/forward/reverse rules. It is also used to fetch a
// chunk's first or last sample outright (target before/after its range,
// respectively), since sort.Search's insertion point degenerates to 0 or
// len(records) in those cases.
func (r *LocalReader) readChunkBoundary(e catalogEntry, target time.Time, dir Direction) (time.Time, *DataFrame, bool, error) {
	idxPath, datPath := chunkPaths(r.dir, e.Ordinal)
	records, dictRecord, err := readIndexFile(idxPath)
	if err != nil {
		return time.Time{}, nil, false, err
	}
	if len(records) == 0 {
		return time.Time{}, nil, false, nil
	}

	targetUnix := target.Unix()
	lo := sort.Search(len(records), func(i int) bool { return records[i].UnixSeconds >= targetUnix })

	var rec indexRecord
	switch {
	case lo < len(records) && records[lo].UnixSeconds == targetUnix:
		rec = records[lo]
	case dir == Forward:
		if lo == len(records) {
			return time.Time{}, nil, false, nil
		}
		rec = records[lo]
	default: // Reverse
		if lo == 0 {
			return time.Time{}, nil, false, nil
		}
		rec = records[lo-1]
	}

	df, err := r.readRecord(datPath, rec, dictRecord)
	if err != nil {
		return time.Time{}, nil, false, err
	}
	return time.Unix(rec.UnixSeconds, 0), df, true, nil
}

func (r *LocalReader) readRecord(datPath string, rec indexRecord, dictRecord *recordLocation) (*DataFrame, error) {
	raw, err := readSpan(datPath, rec.Offset, rec.Length)
	if err != nil {
		return nil, err
	}

	var decompressed []byte
	switch {
	case rec.Flags&flagDictionary != 0:
		if dictRecord == nil {
			return nil, &CorruptChunkError{Path: datPath, Reason: "dictionary-compressed record with no dictionary in chunk"}
		}
		dict, err := readSpan(datPath, dictRecord.offset, dictRecord.length)
		if err != nil {
			return nil, err
		}
		decompressed, err = zstd.DecompressDict(nil, raw, dict)
		if err != nil {
			return nil, fmt.Errorf("store: zstd dictionary decompress: %w", err)
		}
	case rec.Flags&flagCompressed != 0:
		decompressed, err = zstd.Decompress(nil, raw)
		if err != nil {
			return nil, fmt.Errorf("store: zstd decompress: %w", err)
		}
	default:
		decompressed = raw
	}

	if contentHash(decompressed) != rec.Hash {
		return nil, &CorruptChunkError{Path: datPath, Reason: "content hash mismatch"}
	}

	return unmarshalFrame(r.format, decompressed)
}

type recordLocation struct {
	offset uint64
	length uint32
}

// readIndexFile loads every sample record in chunk order, plus the
// dictionary record's location if the chunk has one. The dictionary
// record itself is never a valid search result — it doesn't correspond
// to a sample — so it's excluded from the returned slice.
func readIndexFile(path string) ([]indexRecord, *recordLocation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if len(b)%indexRecordSize != 0 {
		return nil, nil, &CorruptChunkError{Path: path, Reason: "index file length is not a multiple of the record size"}
	}
	n := len(b) / indexRecordSize
	records := make([]indexRecord, 0, n)
	var dictRecord *recordLocation
	for i := 0; i < n; i++ {
		rec, err := decodeIndexRecord(b[i*indexRecordSize : (i+1)*indexRecordSize])
		if err != nil {
			return nil, nil, &CorruptChunkError{Path: path, Reason: err.Error()}
		}
		if rec.Flags&flagIsDictionaryPayload != 0 {
			dictRecord = &recordLocation{offset: rec.Offset, length: rec.Length}
			continue
		}
		records = append(records, rec)
	}
	return records, dictRecord, nil
}

func readSpan(path string, offset uint64, length uint32) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("store: read %s at %d: %w", path, offset, err)
	}
	return buf, nil
}

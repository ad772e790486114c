// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// catalogEntry is one finalized chunk's metadata: enough for a Reader to
// decide, without opening the chunk's files, whether it's a candidate
// for a given (target_ts, direction) lookup.
type catalogEntry struct {
	Ordinal     uint64
	FirstTS     int64
	LastTS      int64
	RecordCount uint32
}

// catalog is a badger-backed index over finalized chunks, keyed by
// ordinal. Adapted from the teacher's pkg/resource/store buildKey/txn
// idiom: a resource-graph key encoding repurposed here for chunk
// metadata instead of resource refs, so the Writer/Reader never need to
// re-scan every .idx file's header just to find which chunk covers a
// timestamp.
type catalog struct {
	db *badger.DB
}

var chunkKeyPrefix = []byte("chunk")

func openCatalog(storeDir string, readOnly bool) (*catalog, error) {
	opts := badger.DefaultOptions(filepath.Join(storeDir, "catalog")).WithReadOnly(readOnly)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open catalog: %w", err)
	}
	return &catalog{db: db}, nil
}

func (c *catalog) Close() error {
	return c.db.Close()
}

func buildChunkKey(ordinal uint64) []byte {
	var ord [8]byte
	binary.BigEndian.PutUint64(ord[:], ordinal) // big-endian so lexicographic == numeric order
	return bytes.Join([][]byte{chunkKeyPrefix, ord[:]}, []byte("/"))
}

func (c *catalog) put(e catalogEntry) error {
	v, err := cbor.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: encode catalog entry: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(buildChunkKey(e.Ordinal), v)
	})
}

func (c *catalog) delete(ordinal uint64) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(buildChunkKey(ordinal))
	})
}

// all returns every finalized chunk's metadata, ordered by ordinal
// (== first-sample timestamp order, per spec §3's store invariant).
func (c *catalog) all() ([]catalogEntry, error) {
	var entries []catalogEntry
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(chunkKeyPrefix); it.ValidForPrefix(chunkKeyPrefix); it.Next() {
			var e catalogEntry
			err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("store: decode catalog entry: %w", err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Ordinal < entries[j].Ordinal })
	return entries, nil
}

func (c *catalog) maxOrdinal() (uint64, bool, error) {
	entries, err := c.all()
	if err != nil {
		return 0, false, err
	}
	if len(entries) == 0 {
		return 0, false, nil
	}
	return entries[len(entries)-1].Ordinal, true, nil
}

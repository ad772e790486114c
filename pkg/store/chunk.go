// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"path/filepath"
)

// recordFlags is the index record's flag byte, spec §4.5's "flag byte
// describing compression/dictionary usage".
type recordFlags uint8

const (
	flagCompressed recordFlags = 1 << iota
	flagDictionary
	// flagIsDictionaryPayload marks record 0 of a ZstdDictionary chunk as
	// holding the trained dictionary itself rather than a DataFrame.
	flagIsDictionaryPayload
)

// indexRecord is one fixed-width entry of a chunk's .idx file, spec
// §4.5's four fields: timestamp, offset, length, hash, plus the flags
// byte this rework adds to make compression mode self-describing per
// record instead of assumed from Config.
type indexRecord struct {
	UnixSeconds int64
	Offset      uint64
	Length      uint32
	Hash        [sha256.Size]byte
	Flags       recordFlags
}

const indexRecordSize = 8 + 8 + 4 + sha256.Size + 1

func (r indexRecord) encode() []byte {
	var buf bytes.Buffer
	buf.Grow(indexRecordSize)
	_ = binary.Write(&buf, binary.LittleEndian, r.UnixSeconds)
	_ = binary.Write(&buf, binary.LittleEndian, r.Offset)
	_ = binary.Write(&buf, binary.LittleEndian, r.Length)
	buf.Write(r.Hash[:])
	buf.WriteByte(byte(r.Flags))
	return buf.Bytes()
}

func decodeIndexRecord(b []byte) (indexRecord, error) {
	if len(b) != indexRecordSize {
		return indexRecord{}, fmt.Errorf("store: index record has %d bytes, want %d", len(b), indexRecordSize)
	}
	var r indexRecord
	r.UnixSeconds = int64(binary.LittleEndian.Uint64(b[0:8]))
	r.Offset = binary.LittleEndian.Uint64(b[8:16])
	r.Length = binary.LittleEndian.Uint32(b[16:20])
	copy(r.Hash[:], b[20:20+sha256.Size])
	r.Flags = recordFlags(b[20+sha256.Size])
	return r, nil
}

func contentHash(b []byte) [sha256.Size]byte {
	return sha256.Sum256(b)
}

// chunkPaths returns the .idx/.dat paths for ordinal within dir. Ordinals
// are zero-padded so a plain directory listing sorts in chunk order.
func chunkPaths(dir string, ordinal uint64) (idxPath, datPath string) {
	name := fmt.Sprintf("%020d", ordinal)
	return filepath.Join(dir, name+".idx"), filepath.Join(dir, name+".dat")
}

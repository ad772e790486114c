// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package store

import "fmt"

// CorruptChunkError means an index or data file failed an integrity
// check (length mismatch, hash mismatch, truncated record). It is fatal
// for that chunk: spec §4.6 says read errors "are surfaced; they are NOT
// demoted to None". It does not implement pkg/errors.RetryableError,
// since re-reading the same bytes from local disk can't un-corrupt them.
type CorruptChunkError struct {
	Path   string
	Reason string
}

func (e *CorruptChunkError) Error() string {
	return fmt.Sprintf("store: corrupt chunk %s: %s", e.Path, e.Reason)
}

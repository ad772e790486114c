// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/antimetal/resourcemon/pkg/sample"
)

// DataFrame is the unit persisted to disk: spec §3's "{ sample: Sample }"
// wrapper, kept distinct from sample.Sample itself so a future sideband
// field (e.g. a writer-assigned sequence number) doesn't force a chunk
// format bump.
type DataFrame struct {
	Sample *sample.Sample
}

func marshalFrame(f Format, df *DataFrame) ([]byte, error) {
	switch f {
	case Cbor:
		b, err := cbor.Marshal(df)
		if err != nil {
			return nil, fmt.Errorf("store: marshal dataframe: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("store: unknown format %d", f)
	}
}

func unmarshalFrame(f Format, b []byte) (*DataFrame, error) {
	switch f {
	case Cbor:
		var df DataFrame
		if err := cbor.Unmarshal(b, &df); err != nil {
			return nil, fmt.Errorf("store: unmarshal dataframe: %w", err)
		}
		return &df, nil
	default:
		return nil, fmt.Errorf("store: unknown format %d", f)
	}
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllVariantsScalarOnly(t *testing.T) {
	variants := AllVariants(diskModelSchema)
	require.Len(t, variants, 4)
	var names []string
	for _, v := range variants {
		names = append(names, v.String())
	}
	assert.Contains(t, names, "read_bytes_per_sec")
	assert.Contains(t, names, "total_bytes_per_sec")
}

func TestAllVariantsVecUsesPlaceholderIdx(t *testing.T) {
	variants := AllVariants(SystemModelSchema)
	found := false
	for _, v := range variants {
		if v.String() == "slabs.<idx>.name" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAllVariantsMapUsesPlaceholderKey(t *testing.T) {
	variants := AllVariants(SystemModelSchema)
	found := false
	for _, v := range variants {
		if v.String() == "disks.<key>.read_bytes_per_sec" {
			found = true
		}
	}
	assert.True(t, found)
}

// Round-trip invariant from spec §8: for every FieldID listed by
// AllVariants, Parse(schema, id.String()) == id when dynamic slots are
// unset.
func TestAllVariantsRoundTripsThroughParse(t *testing.T) {
	for _, schema := range []*Schema{diskModelSchema, cpuModelSchema, pressureModelSchema, ProcessModelSchema} {
		for _, id := range AllVariants(schema) {
			s := id.String()
			parsed, err := Parse(schema, s)
			require.NoError(t, err, "schema variant %q", s)
			assert.Equal(t, id, parsed, "round trip mismatch for %q", s)
		}
	}
}

func TestAllVariantsRecursesIntoSelfReferentialCgroupSchema(t *testing.T) {
	variants := AllVariants(CgroupModelSchema)
	found := false
	for _, v := range variants {
		if v.String() == "children.<key>.cpu.usage_pct" {
			found = true
		}
	}
	assert.True(t, found)
}

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

func TestFieldIDStringScalar(t *testing.T) {
	id := FieldID{{Name: "hostname"}}
	assert.Equal(t, "hostname", id.String())
}

func TestFieldIDStringVecUnsetIdx(t *testing.T) {
	id := FieldID{{Name: "slabs", Dynamic: DynamicIdx}, {Name: "active_objs"}}
	assert.Equal(t, "slabs.<idx>.active_objs", id.String())
}

func TestFieldIDStringVecSetIdx(t *testing.T) {
	id := FieldID{{Name: "slabs", Dynamic: DynamicIdx, Idx: 2, HasIdx: true}, {Name: "active_objs"}}
	assert.Equal(t, "slabs.2.active_objs", id.String())
}

func TestFieldIDStringMapSetKey(t *testing.T) {
	id := FieldID{{Name: "disks", Dynamic: DynamicKey, Key: "sda", HasKey: true}, {Name: "read_bytes_per_sec"}}
	assert.Equal(t, "disks.sda.read_bytes_per_sec", id.String())
}

func TestParseRoundTripScalar(t *testing.T) {
	id, err := Parse(SystemModelSchema, "hostname")
	require.NoError(t, err)
	assert.Equal(t, "hostname", id.String())
}

func TestParseRoundTripVecWithIdx(t *testing.T) {
	id, err := Parse(SystemModelSchema, "slabs.2.active_objs")
	require.NoError(t, err)
	assert.Equal(t, "slabs.2.active_objs", id.String())
	require.Len(t, id, 2)
	assert.True(t, id[0].HasIdx)
	assert.Equal(t, 2, id[0].Idx)
}

func TestParseRoundTripVecPlaceholder(t *testing.T) {
	id, err := Parse(SystemModelSchema, "slabs.<idx>.active_objs")
	require.NoError(t, err)
	assert.False(t, id[0].HasIdx)
	assert.Equal(t, "slabs.<idx>.active_objs", id.String())
}

func TestParseRoundTripMapWithKey(t *testing.T) {
	id, err := Parse(SystemModelSchema, "disks.sda.read_bytes_per_sec")
	require.NoError(t, err)
	assert.Equal(t, "disks.sda.read_bytes_per_sec", id.String())
	assert.True(t, id[0].HasKey)
	assert.Equal(t, "sda", id[0].Key)
}

func TestParseUnknownFieldErrors(t *testing.T) {
	_, err := Parse(SystemModelSchema, "not_a_field")
	assert.Error(t, err)
}

func TestParseTrailingSegmentsAfterScalarErrors(t *testing.T) {
	_, err := Parse(SystemModelSchema, "hostname.extra")
	assert.Error(t, err)
}

func TestParseNestedStructPath(t *testing.T) {
	id, err := Parse(CgroupModelSchema, "cpu.usage_pct")
	require.NoError(t, err)
	assert.Equal(t, "cpu.usage_pct", id.String())
}

// Key-containing-a-dot is the one documented round-trip exception: it
// parses as two extra path segments rather than one literal key.
func TestParseKeyWithDotDoesNotRoundTrip(t *testing.T) {
	_, err := Parse(SystemModelSchema, "disks.sd.a.read_bytes_per_sec")
	assert.Error(t, err) // "a" is not a field of diskModelSchema
}

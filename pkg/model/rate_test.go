// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func u64(v uint64) *uint64 { return &v }

func TestPerSec(t *testing.T) {
	rate := perSec(u64(1000), u64(2000), 2*time.Second)
	assert.NotNil(t, rate)
	assert.InDelta(t, 500.0, *rate, 0.0001)
}

func TestPerSecNilInputs(t *testing.T) {
	assert.Nil(t, perSec[uint64](nil, u64(1), time.Second))
	assert.Nil(t, perSec[uint64](u64(1), nil, time.Second))
}

func TestPerSecZeroDelta(t *testing.T) {
	assert.Nil(t, perSec(u64(1), u64(2), 0))
}

func TestPerSecCounterWentBackward(t *testing.T) {
	assert.Nil(t, perSec(u64(2000), u64(1000), time.Second))
}

func TestPerSecU64Ceils(t *testing.T) {
	// (100-0)/3s = 33.33..., ceils to 34.
	rate := perSecU64(u64(0), u64(100), 3*time.Second)
	assert.NotNil(t, rate)
	assert.Equal(t, uint64(34), *rate)
}

func TestUsecPct(t *testing.T) {
	pct := usecPct(u64(0), u64(500000), time.Second)
	assert.NotNil(t, pct)
	assert.InDelta(t, 50.0, *pct, 0.0001)
}

func TestUsecPctCounterWentBackward(t *testing.T) {
	assert.Nil(t, usecPct(u64(500), u64(100), time.Second))
}

func TestDeltaSince(t *testing.T) {
	d := deltaSince(u64(10), u64(25))
	assert.NotNil(t, d)
	assert.Equal(t, uint64(15), *d)
}

func TestDeltaSinceBackward(t *testing.T) {
	assert.Nil(t, deltaSince(u64(25), u64(10)))
}

func TestDeltaSinceNil(t *testing.T) {
	assert.Nil(t, deltaSince[uint64](nil, u64(1)))
}

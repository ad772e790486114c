// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/antimetal/resourcemon/pkg/procfs"
	"github.com/antimetal/resourcemon/pkg/sample"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitMapDrainIsUnconditionalAndEmpties(t *testing.T) {
	m := newExitMap()
	m.record(&sample.ExitedProc{PID: 1})
	m.record(&sample.ExitedProc{PID: 2})

	drained := m.drain()
	assert.Len(t, drained, 2)

	// Draining again, with nothing new recorded, yields an empty map:
	// the side channel never re-surfaces already-drained pids.
	assert.Empty(t, m.drain())
}

func TestParseExitEvent(t *testing.T) {
	raw := ExitsnoopEvent{PID: 42, PPID: 1, ExitCode: 0}
	copy(raw.Comm[:], "myproc")

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, raw))

	ev, err := parseExitEvent(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, int32(42), ev.PID)
	assert.Equal(t, int32(1), ev.PPID)
	assert.Equal(t, "myproc", ev.Command)
}

func TestParseExitEventTooSmall(t *testing.T) {
	_, err := parseExitEvent([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestPollGPUNilChannel(t *testing.T) {
	s := &Sampler{}
	assert.Nil(t, s.pollGPU())
}

func TestPollGPUMissedPollYieldsEmptyMap(t *testing.T) {
	ch := make(chan map[string]sample.GPUStats)
	s := &Sampler{gpuCh: ch}
	got := s.pollGPU()
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPollGPUDeliversReadyValue(t *testing.T) {
	ch := make(chan map[string]sample.GPUStats, 1)
	pct := 42.0
	ch <- map[string]sample.GPUStats{"gpu0": {Name: "gpu0", UtilizationPct: &pct}}
	s := &Sampler{gpuCh: ch}

	got := s.pollGPU()
	require.Contains(t, got, "gpu0")
	assert.Equal(t, 42.0, *got["gpu0"].UtilizationPct)
}

func TestSampleProcessesMergesExitedOnlyForDeadPids(t *testing.T) {
	dir := t.TempDir()
	// A live pid: give it the minimal files ReadProcess needs.
	pidDir := filepath.Join(dir, "100")
	require.NoError(t, os.MkdirAll(pidDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pidDir, "stat"),
		[]byte("100 (live) S 1 100 100 0 -1 4194304 0 0 0 0 0 0 0 0 20 0 1 0 0 0 0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pidDir, "status"), []byte("Name:\tlive\n"), 0o644))

	s := &Sampler{
		cfg:  Config{Logger: logr.Discard()},
		proc: procfs.NewReader(dir, dir),
	}

	exited := map[int32]*sample.ExitedProc{
		100: {PID: 100, Command: "stale"}, // collides with the live pid: must be pruned
		200: {PID: 200, Command: "gone"},  // never comes back live: must survive
	}

	procs, err := s.sampleProcesses(exited)
	require.NoError(t, err)
	require.Contains(t, procs, int32(100))
	assert.NotContains(t, exited, int32(100))
	assert.Contains(t, exited, int32(200))
}

func TestSampleSystemFatalOnMissingStat(t *testing.T) {
	dir := t.TempDir()
	s := &Sampler{
		cfg:  Config{Logger: logr.Discard()},
		proc: procfs.NewReader(dir, dir),
	}
	_, err := s.sampleSystem(context.Background())
	assert.Error(t, err)
}

func TestSampleSystemBestEffortOnOptionalReaders(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte("cpu  0 0 0 0 0 0 0 0 0 0\nbtime 1700000000\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meminfo"), []byte("MemTotal:        1000 kB\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vmstat"), []byte("pgfault 10\n"), 0o644))

	s := &Sampler{
		cfg:  Config{Logger: logr.Discard(), DisableDiskStat: true},
		proc: procfs.NewReader(dir, dir),
	}

	system, err := s.sampleSystem(context.Background())
	require.NoError(t, err)
	require.NotNil(t, system.Stat)
	assert.Equal(t, int64(1700000000), system.Stat.BootTime.Unix())
	// slabinfo/ksm/etc. are absent from the fixture: best-effort readers
	// leave their fields at the zero value rather than failing the sample.
	assert.Nil(t, system.Slabs)
	assert.Nil(t, system.KSM)
}

func TestNewOptionSetsGPUChannel(t *testing.T) {
	ch := make(chan map[string]sample.GPUStats, 1)
	s := &Sampler{}
	WithGPUChannel(ch)(s)
	assert.NotNil(t, s.gpuCh)
}

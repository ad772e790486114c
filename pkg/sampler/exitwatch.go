// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package sampler

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -cc clang -cflags "-I../../ebpf/include -Wall -Werror -g -O2 -D__TARGET_ARCH_x86 -fdebug-types-section -fno-stack-protector" -target bpfel exitsnoop ../../ebpf/src/exitsnoop.bpf.c -- -I../../ebpf/include

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/antimetal/resourcemon/pkg/ebpf/core"
	"github.com/antimetal/resourcemon/pkg/sample"
	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/go-logr/logr"
)

// exitMap is the mutex-guarded, drain-and-replace side channel described in
// spec §4.2/§5: an external hook (here, the eBPF watcher below) writes into
// it as processes exit, and the sampler drains it unconditionally on every
// tick regardless of whether the rest of that tick succeeds, so it never
// grows unbounded.
type exitMap struct {
	mu      sync.Mutex
	pending map[int32]*sample.ExitedProc
}

func newExitMap() *exitMap {
	return &exitMap{pending: make(map[int32]*sample.ExitedProc)}
}

func (m *exitMap) record(e *sample.ExitedProc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[e.PID] = e
}

// drain takes the current contents and replaces them with a fresh empty
// map, so the writer side never blocks on the reader and the map never
// accumulates entries across ticks.
func (m *exitMap) drain() map[int32]*sample.ExitedProc {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := m.pending
	m.pending = make(map[int32]*sample.ExitedProc)
	return taken
}

// exitWatcher attaches to the sched_process_exit tracepoint and feeds an
// exitMap. Structured the way ExecSnoopCollector attaches to execve's
// tracepoints, but with a single tracepoint and exit-specific fields
// instead of exec's argv capture.
type exitWatcher struct {
	logger        logr.Logger
	bpfObjectPath string

	mu          sync.Mutex
	coreManager *core.Manager
	objs        *ebpf.Collection
	tpLink      link.Link
	reader      *ringbuf.Reader
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func newExitWatcher(logger logr.Logger, bpfObjectPath string) *exitWatcher {
	if bpfObjectPath == "" {
		if envPath := os.Getenv("ANTIMETAL_BPF_PATH"); envPath != "" {
			bpfObjectPath = filepath.Join(envPath, "exitsnoop.bpf.o")
		} else {
			bpfObjectPath = "/usr/local/lib/antimetal/ebpf/exitsnoop.bpf.o"
		}
	}
	return &exitWatcher{
		logger:        logger,
		bpfObjectPath: bpfObjectPath,
		stopChan:      make(chan struct{}),
	}
}

// start attaches the program and begins feeding m. It's a best-effort
// subsystem: a failure here is logged by the caller and the sampler
// continues without exit-pid recovery, rather than refusing to start (spec
// never lists the exit-pid channel among the sampler's fatal dependencies).
func (w *exitWatcher) start(ctx context.Context, m *exitMap) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := rlimit.RemoveMemlock(); err != nil {
		return fmt.Errorf("removing memlock: %w", err)
	}

	manager, err := core.NewManager(w.logger)
	if err != nil {
		return fmt.Errorf("creating CO-RE manager: %w", err)
	}
	w.coreManager = manager

	coll, err := w.coreManager.LoadCollection(w.bpfObjectPath)
	if err != nil {
		return fmt.Errorf("loading BPF collection with CO-RE: %w", err)
	}
	w.objs = coll

	prog, ok := w.objs.Programs["tracepoint__sched__sched_process_exit"]
	if !ok {
		w.cleanup()
		return errors.New("sched_process_exit program not found")
	}

	w.tpLink, err = link.Tracepoint("sched", "sched_process_exit", prog, nil)
	if err != nil {
		w.cleanup()
		return fmt.Errorf("attaching sched_process_exit tracepoint: %w", err)
	}

	eventsMap, ok := w.objs.Maps["events"]
	if !ok {
		w.cleanup()
		return errors.New("events map not found")
	}
	w.reader, err = ringbuf.NewReader(eventsMap)
	if err != nil {
		w.cleanup()
		return fmt.Errorf("opening ring buffer: %w", err)
	}

	w.wg.Add(1)
	go w.readEvents(ctx, m)
	return nil
}

func (w *exitWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopChan:
	default:
		close(w.stopChan)
	}
	w.wg.Wait()
	w.cleanup()
}

func (w *exitWatcher) cleanup() {
	if w.reader != nil {
		w.reader.Close()
		w.reader = nil
	}
	if w.tpLink != nil {
		w.tpLink.Close()
		w.tpLink = nil
	}
	if w.objs != nil {
		w.objs.Close()
		w.objs = nil
	}
}

func (w *exitWatcher) readEvents(ctx context.Context, m *exitMap) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		default:
			record, err := w.reader.Read()
			if err != nil {
				if errors.Is(err, ringbuf.ErrClosed) {
					return
				}
				w.logger.Error(err, "reading from exit ring buffer")
				continue
			}
			ev, err := parseExitEvent(record.RawSample)
			if err != nil {
				w.logger.Error(err, "parsing exit event")
				continue
			}
			m.record(ev)
		}
	}
}

func parseExitEvent(data []byte) (*sample.ExitedProc, error) {
	var raw ExitsnoopEvent
	if len(data) < int(binary.Size(raw)) {
		return nil, fmt.Errorf("event too small: %d bytes", len(data))
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("reading exit event: %w", err)
	}
	return &sample.ExitedProc{
		PID:      raw.PID,
		PPID:     raw.PPID,
		ExitCode: raw.ExitCode,
		ExitTime: time.Now(),
		Command:  string(bytes.TrimRight(raw.Comm[:], "\x00")),
	}, nil
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package sampler assembles a single whole-system sample.Sample from the
// cgroupfs and procfs readers on every tick. It is built the way the
// teacher's performance.Manager composes a CollectorRegistry of collectors,
// but collapsed into one Sample(ctx) call rather than a channel-per-metric
// registry, because a sample.Sample must be one atomically-consistent
// snapshot rather than independently-timed streams.
package sampler

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/antimetal/resourcemon/pkg/cgroupfs"
	"github.com/antimetal/resourcemon/pkg/procfs"
	"github.com/antimetal/resourcemon/pkg/sample"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// Config mirrors spec §4.2's sampler inputs.
type Config struct {
	CgroupRoot      string // default cgroupfs.DefaultRoot
	ProcPath        string // default "/proc"
	SysPath         string // default "/sys"
	CollectIOStat   bool
	DisableDiskStat bool
	EnableBtrfs     bool
	EnableEthtool   bool
	EnableResctrl   bool
	CgroupFilter    *regexp.Regexp // children whose name matches are pruned from descent

	// EnableExitWatch attaches the eBPF exit-pid side channel. Disabled by
	// default since it requires CAP_BPF/CAP_SYS_ADMIN and a supported
	// kernel; the sampler works without it, just with less complete
	// accounting for short-lived processes.
	EnableExitWatch bool
	BPFObjectPath   string

	Logger logr.Logger
}

func (c *Config) setDefaults() {
	if c.CgroupRoot == "" {
		c.CgroupRoot = cgroupfs.DefaultRoot
	}
	if c.ProcPath == "" {
		c.ProcPath = "/proc"
	}
	if c.SysPath == "" {
		c.SysPath = "/sys"
	}
}

// Sampler produces one sample.Sample per call to Sample. It is not safe
// for concurrent use by multiple goroutines: the recorder model in spec §5
// is one sampler thread tick-driving sample -> store.put -> sleep.
type Sampler struct {
	cfg     Config
	proc    *procfs.Reader
	exits   *exitMap
	watcher *exitWatcher

	gpuCh <-chan map[string]sample.GPUStats
}

// Option configures optional Sampler inputs not carried in Config, mirroring
// the GPU stats channel of spec §4.2.
type Option func(*Sampler)

// WithGPUChannel wires a non-blocking GPU stats source. The sampler
// performs a non-blocking try-receive on it every tick (spec §5: "a missed
// poll yields an empty GPU submap, never a stall").
func WithGPUChannel(ch <-chan map[string]sample.GPUStats) Option {
	return func(s *Sampler) { s.gpuCh = ch }
}

// New constructs a Sampler. The cgroup root's filesystem type is validated
// eagerly (NotCgroup2Error is fatal per spec §4.2's "the sampler refuses to
// start"); the exit-pid watcher, if enabled, is started best-effort and its
// failure is only logged, since it's not among the sampler's hard
// dependencies.
func New(ctx context.Context, cfg Config, opts ...Option) (*Sampler, error) {
	cfg.setDefaults()

	if _, err := cgroupfs.NewRoot(cfg.CgroupRoot); err != nil {
		return nil, fmt.Errorf("validating cgroup root %s: %w", cfg.CgroupRoot, err)
	}

	s := &Sampler{
		cfg:   cfg,
		proc:  procfs.NewReader(cfg.ProcPath, cfg.SysPath),
		exits: newExitMap(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.EnableExitWatch {
		s.watcher = newExitWatcher(cfg.Logger, cfg.BPFObjectPath)
		if err := s.watcher.start(ctx, s.exits); err != nil {
			cfg.Logger.Error(err, "exit-pid watcher did not start; exit accounting will be incomplete")
			s.watcher = nil
		}
	}

	return s, nil
}

// Close releases background resources (the exit watcher, if running).
func (s *Sampler) Close() {
	if s.watcher != nil {
		s.watcher.stop()
	}
}

// Sample implements spec §4.2's algorithm.
func (s *Sampler) Sample(ctx context.Context) (*sample.Sample, error) {
	ts := time.Now()

	// Step 1: unconditional drain, even if everything below fails, so the
	// side channel never grows without bound.
	exited := s.exits.drain()

	// Step 2: full pid table, fatal on failure per spec §4.2.4.
	processes, err := s.sampleProcesses(exited)
	if err != nil {
		return nil, fmt.Errorf("reading process table: %w", err)
	}

	// Step 3: recursive cgroup tree walk. Individual field failures are
	// demoted to nil inside BuildTree per the §4.2 wrap rules; anything
	// that survives that demotion and still errors is logged and the
	// whole cgroup block is left nil rather than failing the sample,
	// since cgroup data loss is not among the sampler's fatal conditions.
	cgroupRoot, err := cgroupfs.NewRoot(s.cfg.CgroupRoot)
	var cgroupTree *sample.CgroupNode
	if err != nil {
		s.cfg.Logger.Error(err, "reopening cgroup root")
	} else {
		cgroupTree, err = cgroupfs.BuildTree(cgroupRoot, cgroupfs.BuildOptions{
			NameFilter:    s.cfg.CgroupFilter,
			CollectIOStat: s.cfg.CollectIOStat,
		})
		cgroupRoot.Close()
		if err != nil {
			s.cfg.Logger.Error(err, "walking cgroup tree")
			cgroupTree = nil
		}
	}

	// Step 4: system block. stat/meminfo/vmstat are fatal; everything else
	// is best-effort (log-and-default).
	system, err := s.sampleSystem(ctx)
	if err != nil {
		return nil, err
	}

	net, err := s.proc.ReadNetStats()
	if err != nil {
		s.cfg.Logger.Error(err, "reading net stats")
		net = nil
	}

	smp := &sample.Sample{
		Timestamp:       ts,
		System:          *system,
		Cgroup:          cgroupTree,
		Processes:       processes,
		ExitedProcesses: exited,
		Net:             net,
		GPU:             s.pollGPU(),
	}
	return smp, nil
}

// sampleProcesses reads every live pid and merges in exit-channel entries
// for pids that aren't live, preferring the live read on collision since
// it's strictly fresher and more complete (spec §4.2.2).
func (s *Sampler) sampleProcesses(exited map[int32]*sample.ExitedProc) (map[int32]*sample.Process, error) {
	pids, err := s.proc.ListPIDs()
	if err != nil {
		return nil, fmt.Errorf("listing pids: %w", err)
	}

	processes := make(map[int32]*sample.Process, len(pids))
	for _, pid := range pids {
		p, err := s.proc.ReadProcess(pid)
		if err != nil {
			// The process exited between ListPIDs and this read; drop it
			// rather than failing the whole sample.
			continue
		}
		processes[pid] = p
		delete(exited, pid)
	}
	return processes, nil
}

// sampleSystem reads /proc/stat, /proc/meminfo and /proc/vmstat (fatal on
// failure per spec §4.2.4) plus everything else best-effort, bounded by an
// errgroup so the independent reads run concurrently but still short-circuit
// cleanly on the first fatal error.
func (s *Sampler) sampleSystem(ctx context.Context) (*sample.System, error) {
	system := &sample.System{}

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		stat, err := s.proc.ReadStat()
		if err != nil {
			return fmt.Errorf("reading /proc/stat: %w", err)
		}
		system.Stat = stat
		return nil
	})
	g.Go(func() error {
		mem, err := s.proc.ReadMemInfo()
		if err != nil {
			return fmt.Errorf("reading /proc/meminfo: %w", err)
		}
		system.MemInfo = mem
		return nil
	})
	g.Go(func() error {
		vm, err := s.proc.ReadVMStat()
		if err != nil {
			return fmt.Errorf("reading /proc/vmstat: %w", err)
		}
		system.VMStat = vm
		return nil
	})
	g.Go(func() error {
		if hostname, err := s.proc.ReadHostname(); err != nil {
			s.cfg.Logger.V(1).Info("reading hostname failed", "err", err)
		} else {
			system.Hostname = hostname
		}
		return nil
	})
	g.Go(func() error {
		if release, err := s.proc.ReadKernelRelease(); err != nil {
			s.cfg.Logger.V(1).Info("reading kernel release failed", "err", err)
		} else {
			system.KernelRelease = release
		}
		return nil
	})
	g.Go(func() error {
		if version, err := s.proc.ReadKernelVersion(); err != nil {
			s.cfg.Logger.V(1).Info("reading kernel version failed", "err", err)
		} else {
			system.KernelVersion = version
		}
		return nil
	})
	g.Go(func() error {
		if osRelease, err := s.proc.ReadOSRelease("/etc/os-release"); err != nil {
			s.cfg.Logger.V(1).Info("reading os-release failed", "err", err)
		} else {
			system.OSRelease = osRelease
		}
		return nil
	})
	g.Go(func() error {
		if slabs, err := s.proc.ReadSlabInfo(); err != nil {
			s.cfg.Logger.V(1).Info("reading slabinfo failed", "err", err)
		} else {
			system.Slabs = slabs
		}
		return nil
	})
	g.Go(func() error {
		if ksm, err := s.proc.ReadKSM(); err != nil {
			s.cfg.Logger.V(1).Info("reading ksm stats failed", "err", err)
		} else {
			system.KSM = ksm
		}
		return nil
	})
	if !s.cfg.DisableDiskStat {
		g.Go(func() error {
			if disks, err := s.proc.ReadDiskStats(); err != nil {
				s.cfg.Logger.V(1).Info("reading diskstats failed", "err", err)
			} else {
				system.Disks = disks
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return system, nil
}

// pollGPU performs the non-blocking try-receive described in spec §5: a
// missed poll (no channel configured, or nothing ready) yields an empty
// map rather than stalling the tick.
func (s *Sampler) pollGPU() map[string]sample.GPUStats {
	if s.gpuCh == nil {
		return nil
	}
	select {
	case stats, ok := <-s.gpuCh:
		if !ok {
			return map[string]sample.GPUStats{}
		}
		return stats
	default:
		return map[string]sample.GPUStats{}
	}
}

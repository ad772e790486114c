// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Command recorder implements spec §5's Recorder process mode: one
// sampler thread tick-drives sample -> store.put -> sleep, and a second
// thread optionally exposes the local Store Reader to remote Advance
// cursors over grpc.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/antimetal/resourcemon/pkg/sampler"
	"github.com/antimetal/resourcemon/pkg/store"
)

func main() {
	var (
		cgroupRoot      = flag.String("cgroup-root", "", "cgroup v2 mount point (default: autodetected)")
		procPath        = flag.String("proc-path", getEnvOrDefault("HOST_PROC", "/proc"), "proc filesystem mount point")
		sysPath         = flag.String("sys-path", getEnvOrDefault("HOST_SYS", "/sys"), "sysfs mount point")
		cgroupFilter    = flag.String("cgroup-filter", "", "regex of cgroup child names to prune from descent")
		collectIOStat   = flag.Bool("collect-iostat", true, "collect per-cgroup io.stat")
		disableDiskStat = flag.Bool("disable-diskstat", false, "skip /proc/diskstats collection")
		enableExitWatch = flag.Bool("enable-exit-watch", false, "attach the eBPF exit-pid side channel (requires CAP_BPF)")
		bpfObjectPath   = flag.String("bpf-object-path", "", "path to the exitwatch eBPF object file")
		interval        = flag.Duration("interval", time.Second, "sampling interval")

		storeDir      = flag.String("store-dir", "/var/lib/resourcemon/store", "on-disk chunk store directory")
		chunkSizeLog2 = flag.Uint("chunk-size-log2", 10, "records per chunk == 1 << this")
		compression   = flag.String("compression", "zstd", "payload compression: none, zstd, zstd-dictionary")
		zstdLevel     = flag.Int("zstd-level", 3, "zstd compression level (compression=zstd only)")
		retention     = flag.Duration("retention", 24*time.Hour, "drop whole chunks older than this")

		grpcAddr = flag.String("grpc-address", "", "address to expose the remote Store Reader on (empty disables it)")
		verbose  = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	logFlags := log.LstdFlags
	stdLogger := log.New(os.Stderr, "", logFlags)
	logger := stdr.New(stdLogger)
	if *verbose {
		stdr.SetVerbosity(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var filter *regexp.Regexp
	if *cgroupFilter != "" {
		var err error
		filter, err = regexp.Compile(*cgroupFilter)
		if err != nil {
			logger.Error(err, "invalid -cgroup-filter")
			os.Exit(1)
		}
	}

	compMode, err := parseCompression(*compression)
	if err != nil {
		logger.Error(err, "invalid -compression")
		os.Exit(1)
	}

	samp, err := sampler.New(ctx, sampler.Config{
		CgroupRoot:      *cgroupRoot,
		ProcPath:        *procPath,
		SysPath:         *sysPath,
		CollectIOStat:   *collectIOStat,
		DisableDiskStat: *disableDiskStat,
		EnableExitWatch: *enableExitWatch,
		BPFObjectPath:   *bpfObjectPath,
		CgroupFilter:    filter,
		Logger:          logger.WithName("sampler"),
	})
	if err != nil {
		logger.Error(err, "unable to start sampler")
		os.Exit(1)
	}
	defer samp.Close()

	writer, err := store.OpenWriter(store.Config{
		Dir:           *storeDir,
		Compression:   compMode,
		ZstdLevel:     *zstdLevel,
		ChunkSizeLog2: *chunkSizeLog2,
	})
	if err != nil {
		logger.Error(err, "unable to open store")
		os.Exit(1)
	}
	defer writer.Close()

	var grpcServer *grpc.Server
	if *grpcAddr != "" {
		reader, err := store.OpenLocalReader(*storeDir, store.Cbor)
		if err != nil {
			logger.Error(err, "unable to open store for remote reads")
			os.Exit(1)
		}
		defer reader.Close()

		lis, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			logger.Error(err, "unable to listen", "address", *grpcAddr)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
			Time: 5 * time.Minute,
		}))
		svc := store.NewServer(reader)
		desc := svc.ServiceDesc()
		grpcServer.RegisterService(&desc, svc)

		go func() {
			logger.Info("store reader listening", "address", *grpcAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error(err, "grpc server stopped")
			}
		}()
	}

	logger.Info("recording", "store", *storeDir, "interval", interval.String())
	runRecordLoop(ctx, logger, samp, writer, *interval, *retention)

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}

// runRecordLoop is spec §5's Recorder tick loop: sample -> store.put ->
// sleep(interval - elapsed), pruning expired chunks once per tick.
func runRecordLoop(ctx context.Context, logger logr.Logger, samp *sampler.Sampler, writer *store.Writer, interval, retention time.Duration) {
	for {
		tickStart := time.Now()

		s, err := samp.Sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error(err, "sample failed")
		} else {
			ts := s.Timestamp
			if err := writer.Put(ts, s); err != nil {
				logger.Error(err, "store put failed")
			}
			if err := writer.DiscardEarlier(ts.Add(-retention)); err != nil {
				logger.Error(err, "retention prune failed")
			}
		}

		elapsed := time.Since(tickStart)
		sleep := interval - elapsed
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func parseCompression(s string) (store.CompressionMode, error) {
	switch s {
	case "none", "":
		return store.None, nil
	case "zstd":
		return store.Zstd, nil
	case "zstd-dictionary":
		return store.ZstdDictionary, nil
	default:
		return store.None, &unknownCompressionError{s}
	}
}

type unknownCompressionError struct{ value string }

func (e *unknownCompressionError) Error() string {
	return "unknown compression mode: " + e.value
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

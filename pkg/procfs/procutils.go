// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package procfs reads /proc and sysfs system-wide and per-process state
// into the fragments of pkg/sample.System, pkg/sample.Process and
// pkg/sample.NetStats. It follows the same "parse, tolerate absence,
// propagate genuine I/O failure" discipline as pkg/cgroupfs, grounded on
// facebookincubator/below's procfs crate for field selection.
package procfs

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Clock caches the three pieces of host state that procfs parsing depends
// on but that never change for the lifetime of a process: boot time,
// USER_HZ, and page size.
type Clock struct {
	procPath string

	bootTime     time.Time
	bootTimeOnce sync.Once
	bootTimeErr  error

	userHZ     int64
	userHZOnce sync.Once

	pageSize     int64
	pageSizeOnce sync.Once
}

// NewClock returns a Clock rooted at procPath (conventionally "/proc").
func NewClock(procPath string) *Clock {
	return &Clock{procPath: procPath}
}

// BootTime returns the system boot time, read once from /proc/stat's
// "btime" line and cached thereafter.
func (c *Clock) BootTime() (time.Time, error) {
	c.bootTimeOnce.Do(func() {
		c.bootTime, c.bootTimeErr = c.readBootTime()
	})
	return c.bootTime, c.bootTimeErr
}

func (c *Clock) readBootTime() (time.Time, error) {
	statPath := filepath.Join(c.procPath, "stat")
	data, err := os.ReadFile(statPath)
	if err != nil {
		return time.Time{}, fmt.Errorf("read %s: %w", statPath, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		btime, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse btime: %w", err)
		}
		return time.Unix(btime, 0), nil
	}
	return time.Time{}, fmt.Errorf("btime not found in %s", statPath)
}

// UserHZ returns USER_HZ (clock ticks per second), read from the auxiliary
// vector's AT_CLKTCK entry and cached. Falls back to 100, the near-universal
// default, if the auxv can't be read.
func (c *Clock) UserHZ() int64 {
	c.userHZOnce.Do(func() {
		c.userHZ = c.readAuxvInt(17, 100) // AT_CLKTCK
	})
	return c.userHZ
}

// PageSize returns the system page size in bytes, from AT_PAGESZ.
func (c *Clock) PageSize() int64 {
	c.pageSizeOnce.Do(func() {
		c.pageSize = c.readAuxvInt(6, 4096) // AT_PAGESZ
	})
	return c.pageSize
}

// readAuxvInt scans /proc/self/auxv for the given AT_* key. The vector is
// a sequence of 8-byte key/value pairs terminated by AT_NULL (key 0).
func (c *Clock) readAuxvInt(key uint64, fallback int64) int64 {
	data, err := os.ReadFile(filepath.Join(c.procPath, "self", "auxv"))
	if err != nil {
		return fallback
	}
	for i := 0; i+16 <= len(data); i += 16 {
		k := binary.LittleEndian.Uint64(data[i : i+8])
		v := binary.LittleEndian.Uint64(data[i+8 : i+16])
		if k == key {
			return int64(v)
		}
		if k == 0 {
			break
		}
	}
	return fallback
}

// TicksToUsec converts a USER_HZ tick count to microseconds.
func (c *Clock) TicksToUsec(ticks uint64) uint64 {
	hz := c.UserHZ()
	if hz <= 0 {
		hz = 100
	}
	return ticks * 1_000_000 / uint64(hz)
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cgroupfs

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
)

// DefaultRoot is the conventional cgroup2 mount point.
const DefaultRoot = "/sys/fs/cgroup"

// Reader reads one cgroup directory. It caches an open *os.Root handle so
// every per-file open is relative to that handle rather than re-resolving
// the full path: this is what avoids TOCTOU surprises when cgroups are
// created and destroyed underneath a concurrent tree walk (spec §4.1).
type Reader struct {
	name string // path relative to the cgroup root; "" for the root itself
	dir  *os.Root
}

// NewRoot opens the cgroup2 root and validates its filesystem type.
func NewRoot(path string) (*Reader, error) {
	if err := checkCgroup2(path); err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, &IoError{Path: path, Kind: classifyErrno(err), Err: err}
	}
	return &Reader{name: "", dir: root}, nil
}

// newRootUnchecked opens path as a cgroup root without validating its
// filesystem type; used by tests that set up plain tmpdir fixtures rather
// than a real cgroup2 mount.
func newRootUnchecked(path string) (*Reader, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, &IoError{Path: path, Kind: classifyErrno(err), Err: err}
	}
	return &Reader{name: "", dir: root}, nil
}

// Name returns the cgroup's path relative to the root; the root cgroup's
// name is empty.
func (r *Reader) Name() string { return r.name }

// Child opens the named child cgroup relative to this reader. It does not
// re-validate the cgroup2 filesystem type: only the root reader does that.
func (r *Reader) Child(name string) (*Reader, error) {
	sub, err := r.dir.OpenRoot(name)
	if err != nil {
		return nil, &IoError{Path: r.path(name), Kind: classifyErrno(err), Err: err}
	}
	childName := name
	if r.name != "" {
		childName = r.name + "/" + name
	}
	return &Reader{name: childName, dir: sub}, nil
}

// ChildNames lists the immediate child cgroup directory names. Entries
// that fail to open (e.g. an ENODEV race where the cgroup disappeared
// between readdir and open) are silently dropped: this mirrors the
// original's child_cgroup_iter behavior (spec §9 design note) and is
// intentional, not an oversight.
func (r *Reader) ChildNames() ([]string, error) {
	f, err := r.dir.Open(".")
	if err != nil {
		return nil, &IoError{Path: r.path("."), Kind: classifyErrno(err), Err: err}
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, &IoError{Path: r.path("."), Kind: classifyErrno(err), Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		// Confirm it's still openable; drop races silently.
		if _, err := r.dir.OpenRoot(e.Name()); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the cached directory handle.
func (r *Reader) Close() error { return r.dir.Close() }

func (r *Reader) path(file string) string {
	if r.name == "" {
		return file
	}
	return filepath.Join(r.name, file)
}

func classifyErrno(err error) IoErrorKind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return IoErrorNotFound
	case errors.Is(err, syscall.ENODEV):
		return IoErrorDeviceGone
	case errors.Is(err, syscall.EOPNOTSUPP):
		return IoErrorNotSupported
	default:
		return IoErrorOther
	}
}

// openFile opens file relative to the cached directory handle and wraps
// any error per the closed taxonomy.
func (r *Reader) openFile(file string) (*os.File, error) {
	f, err := r.dir.Open(file)
	if err != nil {
		return nil, &IoError{Path: r.path(file), Kind: classifyErrno(err), Err: err}
	}
	return f, nil
}

// --- Shape 1: single-line scalar ---

// readSingleLineUint parses a file whose first line is a single base-10
// unsigned integer.
func (r *Reader) readSingleLineUint(file string) (uint64, error) {
	f, err := r.openFile(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, &IoError{Path: r.path(file), Kind: IoErrorOther, Err: err}
		}
		return 0, &InvalidFileFormatError{Path: r.path(file)}
	}
	line := strings.TrimSpace(scanner.Text())
	v, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		return 0, &UnexpectedLineError{Path: r.path(file), Line: line}
	}
	return v, nil
}

// readSingleLineMaxOrInt parses a file whose first line is either a base-10
// signed integer or the literal token "max", which maps to the sentinel -1.
func (r *Reader) readSingleLineMaxOrInt(file string) (int64, error) {
	f, err := r.openFile(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, &IoError{Path: r.path(file), Kind: IoErrorOther, Err: err}
		}
		return 0, &InvalidFileFormatError{Path: r.path(file)}
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "max" {
		return -1, nil
	}
	v, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, &UnexpectedLineError{Path: r.path(file), Line: line}
	}
	return v, nil
}

// --- Shape 2: flat key/value ---

// readFlatKV reads a file whose lines are "<name> <integer>", populating
// fields named in the table and silently ignoring unrecognized keys. The
// file must produce at least one recognized key.
func (r *Reader) readFlatKV(file string, fields map[string]*uint64) error {
	f, err := r.openFile(file)
	if err != nil {
		return err
	}
	defer f.Close()

	found := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return &UnexpectedLineError{Path: r.path(file), Line: line}
		}
		ptr, ok := fields[parts[0]]
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return &UnexpectedLineError{Path: r.path(file), Line: line}
		}
		*ptr = v
		found = true
	}
	if err := scanner.Err(); err != nil {
		return &IoError{Path: r.path(file), Kind: IoErrorOther, Err: err}
	}
	if !found {
		return &InvalidFileFormatError{Path: r.path(file)}
	}
	return nil
}

// --- Shape 3: named key=value ---

// readNamedKV reads a file whose lines are "<row-key> k1=v1 k2=v2 ...",
// calling visit once per row with the row key and a map of its key=value
// pairs. allowEmpty controls whether a zero-row file is acceptable.
func (r *Reader) readNamedKV(file string, allowEmpty bool, visit func(rowKey string, kv map[string]string) error) error {
	f, err := r.openFile(file)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 1 {
			return &UnexpectedLineError{Path: r.path(file), Line: line}
		}
		kv := make(map[string]string, len(parts)-1)
		for _, p := range parts[1:] {
			kvParts := strings.SplitN(p, "=", 2)
			if len(kvParts) != 2 {
				return &UnexpectedLineError{Path: r.path(file), Line: line}
			}
			kv[kvParts[0]] = kvParts[1]
		}
		if err := visit(parts[0], kv); err != nil {
			return &UnexpectedLineError{Path: r.path(file), Line: line}
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return &IoError{Path: r.path(file), Kind: IoErrorOther, Err: err}
	}
	if rows == 0 && !allowEmpty {
		return &InvalidFileFormatError{Path: r.path(file)}
	}
	return nil
}

func newLineScanner(f *os.File) *bufio.Scanner {
	return bufio.NewScanner(f)
}

// scanFlatLines reads a "<name> <integer>" file, calling visit(key, value)
// for every line. Unlike readFlatKV, the set of recognized keys and the
// post-hoc "at least one recognized" check are left to the caller, since
// some callers (e.g. memory.stat) need to distinguish "0" from "absent"
// per field rather than per file.
func (r *Reader) scanFlatLines(file string, visit func(key, value string) error) error {
	f, err := r.openFile(file)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := newLineScanner(f)
	for sc.Scan() {
		line := sc.Text()
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return &UnexpectedLineError{Path: r.path(file), Line: line}
		}
		if err := visit(parts[0], parts[1]); err != nil {
			return &UnexpectedLineError{Path: r.path(file), Line: line}
		}
	}
	if err := sc.Err(); err != nil {
		return &IoError{Path: r.path(file), Kind: IoErrorOther, Err: err}
	}
	return nil
}

func parseUintValue(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func parseUintField(kv map[string]string, key string) (*uint64, error) {
	s, ok := kv[key]
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package cgroupfs

import "github.com/antimetal/resourcemon/pkg/sample"

// ReadIOStat reads io.stat, keyed by "MAJ:MIN" device identifier. Unknown
// keys within a row (e.g. "cost.usage", "cost.wait") are silently ignored
// per spec §8 scenario 3.
func (r *Reader) ReadIOStat() (map[string]*sample.IOStat, error) {
	out := make(map[string]*sample.IOStat)
	err := r.readNamedKV("io.stat", true, func(rowKey string, kv map[string]string) error {
		s := &sample.IOStat{}
		var err error
		if s.RBytes, err = parseUintField(kv, "rbytes"); err != nil {
			return err
		}
		if s.WBytes, err = parseUintField(kv, "wbytes"); err != nil {
			return err
		}
		if s.RIOs, err = parseUintField(kv, "rios"); err != nil {
			return err
		}
		if s.WIOs, err = parseUintField(kv, "wios"); err != nil {
			return err
		}
		if s.DBytes, err = parseUintField(kv, "dbytes"); err != nil {
			return err
		}
		if s.DIOs, err = parseUintField(kv, "dios"); err != nil {
			return err
		}
		out[rowKey] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

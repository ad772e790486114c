// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package procfs

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/antimetal/resourcemon/pkg/sample"
)

// snmpTable parses the "Header: v1 v2 v3" / "Header: n1 n2 n3" paired-line
// shape shared by /proc/net/snmp and /proc/net/netstat: a map from field
// name to its value for one block identified by prefix (e.g. "Tcp:",
// "TcpExt:"). /proc/net/snmp6 has a different shape and is parsed by
// snmp6Table.
func snmpTable(path, prefix string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var header, values []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != prefix {
			continue
		}
		if header == nil {
			header = fields[1:]
		} else {
			values = fields[1:]
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if header == nil || values == nil {
		return nil, nil // block absent on this kernel; not fatal
	}
	if len(header) != len(values) {
		return nil, fmt.Errorf("%s: %s header/value length mismatch", path, prefix)
	}
	out := make(map[string]uint64, len(header))
	for i, name := range header {
		v, err := strconv.ParseUint(values[i], 10, 64)
		if err != nil {
			continue
		}
		out[name] = v
	}
	return out, nil
}

// snmp6Table parses /proc/net/snmp6's one-line-per-counter shape:
// "Ip6InReceives 123". Every line for every protocol lives in the same
// file with a protocol-specific name prefix, so the caller filters by
// prefix.
func snmp6Table(path, prefix string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // IPv6 disabled
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	out := map[string]uint64{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || !strings.HasPrefix(fields[0], prefix) {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		out[strings.TrimPrefix(fields[0], prefix)] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func u64ptr(m map[string]uint64, key string) *uint64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return &v
}

// ReadTCP reads the "Tcp:" block of /proc/net/snmp.
func (r *Reader) ReadTCP() (*sample.TCP, error) {
	m, err := snmpTable(r.procFile("net", "snmp"), "Tcp:")
	if err != nil || m == nil {
		return nil, err
	}
	return &sample.TCP{
		ActiveOpens: u64ptr(m, "ActiveOpens"), PassiveOpens: u64ptr(m, "PassiveOpens"),
		AttemptFails: u64ptr(m, "AttemptFails"), EstabResets: u64ptr(m, "EstabResets"),
		CurrEstab: u64ptr(m, "CurrEstab"), InSegs: u64ptr(m, "InSegs"), OutSegs: u64ptr(m, "OutSegs"),
		RetransSegs: u64ptr(m, "RetransSegs"), InErrs: u64ptr(m, "InErrs"),
		OutRsts: u64ptr(m, "OutRsts"), InCsumErrors: u64ptr(m, "InCsumErrors"),
	}, nil
}

// ReadTCPExt reads the "TcpExt:" block of /proc/net/netstat.
func (r *Reader) ReadTCPExt() (*sample.TCPExt, error) {
	m, err := snmpTable(r.procFile("net", "netstat"), "TcpExt:")
	if err != nil || m == nil {
		return nil, err
	}
	return &sample.TCPExt{
		SyncookiesSent: u64ptr(m, "SyncookiesSent"), SyncookiesRecv: u64ptr(m, "SyncookiesRecv"),
		SyncookiesFailed: u64ptr(m, "SyncookiesFailed"), ListenOverflows: u64ptr(m, "ListenOverflows"),
		ListenDrops: u64ptr(m, "ListenDrops"), TCPLostRetransmit: u64ptr(m, "TCPLostRetransmit"),
		TCPFastRetrans: u64ptr(m, "TCPFastRetrans"), TCPSlowStartRetrans: u64ptr(m, "TCPSlowStartRetrans"),
		TCPTimeouts: u64ptr(m, "TCPTimeouts"),
	}, nil
}

// ReadIP reads the "Ip:" block of /proc/net/snmp.
func (r *Reader) ReadIP() (*sample.IP, error) {
	m, err := snmpTable(r.procFile("net", "snmp"), "Ip:")
	if err != nil || m == nil {
		return nil, err
	}
	return &sample.IP{
		InReceives: u64ptr(m, "InReceives"), InHdrErrors: u64ptr(m, "InHdrErrors"),
		InAddrErrors: u64ptr(m, "InAddrErrors"), ForwDatagrams: u64ptr(m, "ForwDatagrams"),
		InDiscards: u64ptr(m, "InDiscards"), InDelivers: u64ptr(m, "InDelivers"),
		OutRequests: u64ptr(m, "OutRequests"), OutDiscards: u64ptr(m, "OutDiscards"),
		OutNoRoutes: u64ptr(m, "OutNoRoutes"),
	}, nil
}

// ReadIPExt reads the "IpExt:" block of /proc/net/netstat.
func (r *Reader) ReadIPExt() (*sample.IPExt, error) {
	m, err := snmpTable(r.procFile("net", "netstat"), "IpExt:")
	if err != nil || m == nil {
		return nil, err
	}
	return &sample.IPExt{
		InOctets: u64ptr(m, "InOctets"), OutOctets: u64ptr(m, "OutOctets"),
		InNoRoutes: u64ptr(m, "InNoRoutes"),
	}, nil
}

// ReadICMP reads the "Icmp:" block of /proc/net/snmp.
func (r *Reader) ReadICMP() (*sample.ICMP, error) {
	m, err := snmpTable(r.procFile("net", "snmp"), "Icmp:")
	if err != nil || m == nil {
		return nil, err
	}
	return &sample.ICMP{
		InMsgs: u64ptr(m, "InMsgs"), InErrors: u64ptr(m, "InErrors"),
		OutMsgs: u64ptr(m, "OutMsgs"), OutErrors: u64ptr(m, "OutErrors"),
	}, nil
}

// ReadUDP reads the "Udp:" block of /proc/net/snmp.
func (r *Reader) ReadUDP() (*sample.UDP, error) {
	m, err := snmpTable(r.procFile("net", "snmp"), "Udp:")
	if err != nil || m == nil {
		return nil, err
	}
	return &sample.UDP{
		InDatagrams: u64ptr(m, "InDatagrams"), NoPorts: u64ptr(m, "NoPorts"),
		InErrors: u64ptr(m, "InErrors"), OutDatagrams: u64ptr(m, "OutDatagrams"),
		RcvbufErrors: u64ptr(m, "RcvbufErrors"), SndbufErrors: u64ptr(m, "SndbufErrors"),
	}, nil
}

// ReadIP6 reads the "Ip6" block of /proc/net/snmp6. Returns (nil, nil) if
// IPv6 is disabled (the file doesn't exist) or the block is empty.
func (r *Reader) ReadIP6() (*sample.IP6, error) {
	m, err := snmp6Table(r.procFile("net", "snmp6"), "Ip6")
	if err != nil || len(m) == 0 {
		return nil, err
	}
	return &sample.IP6{
		InReceives: u64ptr(m, "InReceives"), InDelivers: u64ptr(m, "InDelivers"),
		OutRequests: u64ptr(m, "OutRequests"), InDiscards: u64ptr(m, "InDiscards"),
		OutDiscards: u64ptr(m, "OutDiscards"),
	}, nil
}

// ReadICMP6 reads the "Icmp6" block of /proc/net/snmp6.
func (r *Reader) ReadICMP6() (*sample.ICMP6, error) {
	m, err := snmp6Table(r.procFile("net", "snmp6"), "Icmp6")
	if err != nil || len(m) == 0 {
		return nil, err
	}
	return &sample.ICMP6{InMsgs: u64ptr(m, "InMsgs"), OutMsgs: u64ptr(m, "OutMsgs")}, nil
}

// ReadUDP6 reads the "Udp6" block of /proc/net/snmp6.
func (r *Reader) ReadUDP6() (*sample.UDP6, error) {
	m, err := snmp6Table(r.procFile("net", "snmp6"), "Udp6")
	if err != nil || len(m) == 0 {
		return nil, err
	}
	return &sample.UDP6{
		InDatagrams: u64ptr(m, "InDatagrams"), NoPorts: u64ptr(m, "NoPorts"),
		InErrors: u64ptr(m, "InErrors"), OutDatagrams: u64ptr(m, "OutDatagrams"),
	}, nil
}

// ReadNetDev reads /proc/net/dev, keyed by interface name.
//
// Format: "iface: rx_bytes rx_packets rx_errs rx_drop rx_fifo rx_frame
// rx_compressed rx_multicast tx_bytes tx_packets tx_errs tx_drop tx_fifo
// tx_colls tx_carrier tx_compressed", preceded by two header lines.
func (r *Reader) ReadNetDev() (map[string]*sample.NetInterface, error) {
	path := r.procFile("net", "dev")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	out := map[string]*sample.NetInterface{}
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum <= 2 {
			continue
		}
		line := scanner.Text()
		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(line[:colon])
		fields := strings.Fields(line[colon+1:])
		if len(fields) < 16 {
			continue
		}
		n := &sample.NetInterface{}
		assign := func(i int, dst **uint64) {
			v, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				return
			}
			*dst = &v
		}
		assign(0, &n.RxBytes)
		assign(1, &n.RxPackets)
		assign(2, &n.RxErrors)
		assign(3, &n.RxDropped)
		assign(4, &n.RxFIFO)
		assign(5, &n.RxFrame)
		assign(6, &n.RxCompressed)
		assign(7, &n.RxMulticast)
		assign(8, &n.TxBytes)
		assign(9, &n.TxPackets)
		assign(10, &n.TxErrors)
		assign(11, &n.TxDropped)
		assign(12, &n.TxFIFO)
		assign(13, &n.TxCollisions)
		assign(14, &n.TxCarrier)
		assign(15, &n.TxCompressed)
		out[name] = n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// ReadNetStats assembles the full NetStats aggregate. Individual protocol
// blocks that are absent on this kernel (snmpTable/snmp6Table returning nil)
// are left nil rather than failing the whole read.
func (r *Reader) ReadNetStats() (*sample.NetStats, error) {
	ifaces, err := r.ReadNetDev()
	if err != nil {
		return nil, err
	}
	ns := &sample.NetStats{Interfaces: ifaces}

	readers := []func() error{
		func() (e error) { ns.TCP, e = r.ReadTCP(); return },
		func() (e error) { ns.TCPExt, e = r.ReadTCPExt(); return },
		func() (e error) { ns.IP, e = r.ReadIP(); return },
		func() (e error) { ns.IPExt, e = r.ReadIPExt(); return },
		func() (e error) { ns.IP6, e = r.ReadIP6(); return },
		func() (e error) { ns.ICMP, e = r.ReadICMP(); return },
		func() (e error) { ns.ICMP6, e = r.ReadICMP6(); return },
		func() (e error) { ns.UDP, e = r.ReadUDP(); return },
		func() (e error) { ns.UDP6, e = r.ReadUDP6(); return },
	}
	for _, read := range readers {
		if err := read(); err != nil {
			return nil, err
		}
	}
	return ns, nil
}

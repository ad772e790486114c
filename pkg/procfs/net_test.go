// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package procfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snmpContent = `Ip: Forwarding DefaultTTL InReceives InHdrErrors InAddrErrors ForwDatagrams InDiscards InDelivers OutRequests OutDiscards OutNoRoutes
Ip: 1 64 100000 0 0 5 0 99990 50000 0 2
Tcp: RtoAlgorithm RtoMin RtoMax MaxConn ActiveOpens PassiveOpens AttemptFails EstabResets CurrEstab InSegs OutSegs RetransSegs InErrs OutRsts InCsumErrors
Tcp: 1 200 120000 -1 12345 67890 123 456 789 1234567 7654321 12345 0 123 0
Udp: InDatagrams NoPorts InErrors OutDatagrams RcvbufErrors SndbufErrors
Udp: 5000 10 0 4990 0 0
Icmp: InMsgs InErrors OutMsgs OutErrors
Icmp: 20 0 18 0
`

const netdevContent = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo: 1000000    2000    0    0    0     0          0         0  1000000    2000    0    0    0     0       0          0
  eth0: 5000000    8000    1    0    0     0          0         3   300000    4000    0    0    0     0       0          0
`

func TestReadTCPAndIP(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "net"), 0o755))
	writeFixture(t, filepath.Join(dir, "net"), "snmp", snmpContent)
	r := NewReader(dir, dir)

	tcp, err := r.ReadTCP()
	require.NoError(t, err)
	require.NotNil(t, tcp)
	assert.Equal(t, uint64(12345), *tcp.ActiveOpens)
	assert.Equal(t, uint64(789), *tcp.CurrEstab)

	ip, err := r.ReadIP()
	require.NoError(t, err)
	assert.Equal(t, uint64(100000), *ip.InReceives)

	udp, err := r.ReadUDP()
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), *udp.InDatagrams)
}

func TestReadNetDev(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "net"), 0o755))
	writeFixture(t, filepath.Join(dir, "net"), "dev", netdevContent)
	r := NewReader(dir, dir)

	ifaces, err := r.ReadNetDev()
	require.NoError(t, err)
	require.Contains(t, ifaces, "lo")
	require.Contains(t, ifaces, "eth0")
	assert.Equal(t, uint64(5000000), *ifaces["eth0"].RxBytes)
	assert.Equal(t, uint64(3), *ifaces["eth0"].RxMulticast)
}

func TestReadIP6Absent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "net"), 0o755))
	r := NewReader(dir, dir)

	ip6, err := r.ReadIP6()
	require.NoError(t, err)
	assert.Nil(t, ip6)
}

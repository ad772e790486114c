// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package sample defines the raw, point-in-time view of kernel-exported
// state that the sampler (pkg/sampler) produces and the model builder
// (pkg/model) consumes in pairs.
//
// Every leaf counter in this package is a pointer or wrapped in an "ok"
// flag: a missing field must never force its parent block to be absent,
// only the leaf itself to read as unknown. See pkg/cgroupfs and pkg/procfs
// for how fields are demoted to nil on expected kernel-level absence.
package sample

import "time"

// Sample is a whole-system point-in-time read of cgroup v2, /proc and
// related kernel-exported state.
type Sample struct {
	Timestamp time.Time
	System    System
	Cgroup    *CgroupNode
	Processes map[int32]*Process
	// ExitedProcesses holds pids drained from the exit-pid side channel
	// that did not resolve to a live /proc/<pid> read this tick (the
	// common case: the pid exited before this sample and its accounting
	// would otherwise be lost). Pids present in both Processes and here
	// are pruned from this map, since the live read is strictly fresher.
	ExitedProcesses map[int32]*ExitedProc
	Net             *NetStats
	// GPU is nil when no GPU stats collector is configured, and an empty
	// (possibly stale) map when one is configured but didn't produce a
	// fresh sample this tick - a missed poll is not an error.
	GPU map[string]GPUStats
}

// GPUStats is one device's utilization and memory counters, collected out
// of band from a vendor-specific side channel (e.g. NVML) and merged in
// non-blockingly by the sampler.
type GPUStats struct {
	Name          string
	UtilizationPct *float64
	MemUsedBytes   *uint64
	MemTotalBytes  *uint64
	TemperatureC   *float64
}

// System is system-wide, non-cgroup, non-process state.
type System struct {
	Hostname       string
	KernelRelease  string
	KernelVersion  string
	OSRelease      string
	Stat           *Stat
	MemInfo        *MemInfo
	VMStat         *VMStat
	Slabs          []SlabInfo
	KSM            *KSM
	Disks          map[string]*DiskStat
}

// Stat mirrors /proc/stat.
type Stat struct {
	CPUs          map[int32]*CPUStat // key -1 is the aggregate "cpu" line
	ContextSwitches *uint64
	Interrupts      *uint64
	BootTime        time.Time
	ProcsRunning    *uint32
	ProcsBlocked    *uint32
}

// CPUStat is one "cpuN" (or aggregate "cpu") line of /proc/stat, all values
// in USER_HZ clock ticks since boot, converted to microseconds at read time
// using the cached USER_HZ (see procfs.Clock in pkg/procfs/procutils.go).
type CPUStat struct {
	UserUsec      *uint64
	NiceUsec      *uint64
	SystemUsec    *uint64
	IdleUsec      *uint64
	IOWaitUsec    *uint64
	IRQUsec       *uint64
	SoftIRQUsec   *uint64
	StealUsec     *uint64
	GuestUsec     *uint64
	GuestNiceUsec *uint64
}

// MemInfo mirrors /proc/meminfo. All values are in kB except where noted.
type MemInfo struct {
	MemTotal        *uint64
	MemFree         *uint64
	MemAvailable    *uint64
	Buffers         *uint64
	Cached          *uint64
	SwapCached      *uint64
	ActiveAnon      *uint64
	InactiveAnon    *uint64
	ActiveFile      *uint64
	InactiveFile    *uint64
	Unevictable     *uint64
	SwapTotal       *uint64
	SwapFree        *uint64
	Dirty           *uint64
	Writeback       *uint64
	AnonPages       *uint64
	Mapped          *uint64
	Shmem           *uint64
	Slab            *uint64
	SReclaimable    *uint64
	SUnreclaim      *uint64
	KernelStack     *uint64
	PageTables      *uint64
	CommitLimit     *uint64
	CommittedAS     *uint64
	VmallocTotal    *uint64
	VmallocUsed     *uint64
	HugePagesTotal  *uint64 // page count, not bytes; see SPEC_FULL open question
	HugePagesFree   *uint64
	HugePagesRsvd   *uint64
	HugePagesSurp   *uint64
	Hugepagesize    *uint64 // kB
}

// VMStat mirrors /proc/vmstat, cumulative counters since boot.
type VMStat struct {
	PgPgIn            *uint64
	PgPgOut           *uint64
	PSwpIn            *uint64
	PSwpOut           *uint64
	PgStealKswapd     *uint64
	PgStealDirect     *uint64
	PgScanKswapd      *uint64
	PgScanDirect      *uint64
	OOMKill           *uint64
}

// SlabInfo is one row of /proc/slabinfo.
type SlabInfo struct {
	Name        string
	ActiveObjs  uint64
	NumObjs     uint64
	ObjSize     uint64
	ObjPerSlab  uint64
	NumSlabs    uint64
}

// KSM mirrors /sys/kernel/mm/ksm/*.
type KSM struct {
	PagesShared    *uint64
	PagesSharing   *uint64
	PagesUnshared  *uint64
	PagesVolatile  *uint64
	FullScans      *uint64
}

// DiskStat mirrors one line of /proc/diskstats.
type DiskStat struct {
	Major             uint32
	Minor             uint32
	ReadsCompleted    *uint64
	ReadsMerged       *uint64
	SectorsRead       *uint64
	ReadTimeMs        *uint64
	WritesCompleted   *uint64
	WritesMerged      *uint64
	SectorsWritten    *uint64
	WriteTimeMs       *uint64
	DiscardsCompleted *uint64
	SectorsDiscarded  *uint64
	DiscardTimeMs     *uint64
	IOsInProgress     *uint64
	IOTimeMs          *uint64
	WeightedIOTimeMs  *uint64
}

// Process is a per-pid fragment assembled from /proc/<pid>/*.
type Process struct {
	PID             int32
	Stat            *ProcStat
	Status          *ProcStatus
	IO              *ProcIO
	IOReadError     bool // true when ProcIO is nil because of a tolerated read error
	CgroupPath      string
	Cmdline         []string
	Exe             string
}

// ProcStat mirrors /proc/<pid>/stat.
type ProcStat struct {
	Comm        string
	State       byte
	PPID        int32
	PGID        int32
	SID         int32
	MinFlt      uint64
	MajFlt      uint64
	UTime       uint64 // USER_HZ ticks
	STime       uint64
	Priority    int32
	Nice        int32
	NumThreads  int32
	StartTimeTicks uint64 // ticks since boot
	VSize       uint64
	RSS         int64 // pages
}

// ProcStatus mirrors select fields of /proc/<pid>/status.
type ProcStatus struct {
	VoluntaryCtxtSwitches    *uint64
	NonvoluntaryCtxtSwitches *uint64
}

// ProcIO mirrors /proc/<pid>/io. Fields are individually tolerant of
// permission errors on a per-process basis (see spec §3: "io with
// read-error tolerance").
type ProcIO struct {
	RChar      *uint64
	WChar      *uint64
	ReadBytes  *uint64
	WriteBytes *uint64
}

// ExitedProc is a process-exit event observed by the eBPF exit-pid side
// channel (pkg/sampler/exitwatch.go), used to recover accounting for pids
// that died between two sampling ticks.
type ExitedProc struct {
	PID      int32
	PPID     int32
	ExitCode int32
	ExitTime time.Time
	Command  string
}

// NetStats is whole-system network state: per-interface counters plus
// protocol-level blocks.
type NetStats struct {
	Interfaces map[string]*NetInterface
	TCP        *TCP
	TCPExt     *TCPExt
	IP         *IP
	IPExt      *IPExt
	IP6        *IP6
	ICMP       *ICMP
	ICMP6      *ICMP6
	UDP        *UDP
	UDP6       *UDP6
}

// NetInterface mirrors one row of /proc/net/dev.
type NetInterface struct {
	RxBytes      *uint64
	RxPackets    *uint64
	RxErrors     *uint64
	RxDropped    *uint64
	RxFIFO       *uint64
	RxFrame      *uint64
	RxCompressed *uint64
	RxMulticast  *uint64
	TxBytes      *uint64
	TxPackets    *uint64
	TxErrors     *uint64
	TxDropped    *uint64
	TxFIFO       *uint64
	TxCollisions *uint64
	TxCarrier    *uint64
	TxCompressed *uint64
}

// TCP mirrors the "Tcp:" line of /proc/net/snmp.
type TCP struct {
	ActiveOpens  *uint64
	PassiveOpens *uint64
	AttemptFails *uint64
	EstabResets  *uint64
	CurrEstab    *uint64
	InSegs       *uint64
	OutSegs      *uint64
	RetransSegs  *uint64
	InErrs       *uint64
	OutRsts      *uint64
	InCsumErrors *uint64
}

// TCPExt mirrors the "TcpExt:" line of /proc/net/netstat.
type TCPExt struct {
	SyncookiesSent      *uint64
	SyncookiesRecv      *uint64
	SyncookiesFailed    *uint64
	ListenOverflows     *uint64
	ListenDrops         *uint64
	TCPLostRetransmit   *uint64
	TCPFastRetrans      *uint64
	TCPSlowStartRetrans *uint64
	TCPTimeouts         *uint64
}

// IP mirrors the "Ip:" line of /proc/net/snmp.
type IP struct {
	InReceives    *uint64
	InHdrErrors   *uint64
	InAddrErrors  *uint64
	ForwDatagrams *uint64
	InDiscards    *uint64
	InDelivers    *uint64
	OutRequests   *uint64
	OutDiscards   *uint64
	OutNoRoutes   *uint64
}

// IPExt mirrors the "IpExt:" line of /proc/net/netstat.
type IPExt struct {
	InOctets  *uint64
	OutOctets *uint64
	InNoRoutes *uint64
}

// IP6 mirrors the Ip6 block of /proc/net/snmp6.
type IP6 struct {
	InReceives   *uint64
	InDelivers   *uint64
	OutRequests  *uint64
	InDiscards   *uint64
	OutDiscards  *uint64
}

// ICMP mirrors the "Icmp:" line of /proc/net/snmp.
type ICMP struct {
	InMsgs  *uint64
	InErrors *uint64
	OutMsgs *uint64
	OutErrors *uint64
}

// ICMP6 mirrors the Icmp6 block of /proc/net/snmp6.
type ICMP6 struct {
	InMsgs  *uint64
	OutMsgs *uint64
}

// UDP mirrors the "Udp:" line of /proc/net/snmp.
type UDP struct {
	InDatagrams  *uint64
	NoPorts      *uint64
	InErrors     *uint64
	OutDatagrams *uint64
	RcvbufErrors *uint64
	SndbufErrors *uint64
}

// UDP6 mirrors the Udp6 block of /proc/net/snmp6.
type UDP6 struct {
	InDatagrams  *uint64
	NoPorts      *uint64
	InErrors     *uint64
	OutDatagrams *uint64
}

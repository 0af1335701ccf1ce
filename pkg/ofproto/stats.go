package ofproto

// PortStats mirrors an OpenFlow port stats body entry. Counters are
// cumulative on the switch side.
type PortStats struct {
	PortNo      PortNo
	RxPackets   uint64
	TxPackets   uint64
	RxBytes     uint64
	TxBytes     uint64
	RxErrors    uint64
	TxErrors    uint64
	RxDropped   uint64
	TxDropped   uint64
	DurationSec uint32
}

// FlowStats mirrors an OpenFlow flow stats body entry.
type FlowStats struct {
	TableID      uint8
	Priority     uint16
	PacketCount  uint64
	ByteCount    uint64
	DurationSec  uint32
	DurationNsec uint32
}

// BucketStats holds per-bucket counters of a multipath group.
type BucketStats struct {
	PacketCount uint64
	ByteCount   uint64
}

// GroupStats mirrors an OpenFlow group stats body entry, including the
// per-bucket counters used to observe ECMP spread.
type GroupStats struct {
	GroupID     uint32
	PacketCount uint64
	ByteCount   uint64
	Buckets     []BucketStats
}

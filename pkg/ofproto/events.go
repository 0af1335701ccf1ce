package ofproto

// Event is the closed union of notifications a protocol driver delivers.
// The controller consumes events from a single goroutine, so handlers for
// different event types never run concurrently on shared state.
type Event interface {
	event()
}

// SwitchConnected reports a new switch connection with its physical ports.
type SwitchConnected struct {
	ID    SwitchID
	Conn  Conn
	Ports []PortNo
}

// SwitchDisconnected reports a closed switch connection.
type SwitchDisconnected struct {
	ID SwitchID
}

// PortStatus reports a port going up or down on a switch.
type PortStatus struct {
	ID   SwitchID
	Port PortNo
	Up   bool
}

// Link is a discovered adjacency between two switch ports.
type Link struct {
	Src     SwitchID
	SrcPort PortNo
	Dst     SwitchID
	DstPort PortNo
}

// LinkAdded reports a newly discovered inter-switch link.
type LinkAdded struct {
	Link Link
}

// LinkRemoved reports a lost inter-switch link.
type LinkRemoved struct {
	Link Link
}

// PacketInReason distinguishes table-miss upcalls from rule-directed ones.
type PacketInReason int

const (
	ReasonTableMiss PacketInReason = iota
	ReasonAction
)

// String returns the reason name used as a metric label.
func (r PacketInReason) String() string {
	if r == ReasonTableMiss {
		return "table_miss"
	}
	return "action"
}

// PacketIn delivers a frame that the switch punted to the controller.
type PacketIn struct {
	ID       SwitchID
	InPort   PortNo
	Reason   PacketInReason
	BufferID uint32
	Data     []byte
}

// StatsReply delivers the answer to an earlier RequestStats call. Only the
// slice matching Kind is populated.
type StatsReply struct {
	Kind   StatsKind
	ID     SwitchID
	Ports  []PortStats
	Flows  []FlowStats
	Groups []GroupStats
}

func (SwitchConnected) event()    {}
func (SwitchDisconnected) event() {}
func (PortStatus) event()         {}
func (LinkAdded) event()          {}
func (LinkRemoved) event()        {}
func (PacketIn) event()           {}
func (StatsReply) event()         {}

// EventSource is implemented by protocol drivers. The channel is closed when
// the driver shuts down.
type EventSource interface {
	Events() <-chan Event
}

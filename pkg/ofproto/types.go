// Package ofproto defines the boundary to the switch-control protocol: the
// commands the controller can send to a switch and the events a protocol
// driver delivers back. The wire encoding lives entirely in the driver; the
// controller only ever sees these types.
package ofproto

import "net"

// SwitchID is the stable datapath identifier of a switch.
type SwitchID uint64

// PortNo is an OpenFlow port number.
type PortNo uint32

// Reserved port numbers (OpenFlow 1.3 numbering).
const (
	// PortMax is the highest physical port number; anything above is reserved.
	PortMax PortNo = 0xffffff00

	PortFlood      PortNo = 0xfffffffb
	PortController PortNo = 0xfffffffd
	PortLocal      PortNo = 0xfffffffe
	PortAny        PortNo = 0xffffffff
)

// Ethertypes the controller cares about.
const (
	EthTypeIPv4 uint16 = 0x0800
	EthTypeARP  uint16 = 0x0806
	EthTypeLLDP uint16 = 0x88cc
)

// NoBuffer indicates the full frame travels in the packet-out message.
const NoBuffer uint32 = 0xffffffff

// Match selects frames for a flow rule. Zero-valued fields are wildcards.
type Match struct {
	EthType uint16
	EthDst  net.HardwareAddr
}

// ActionType discriminates Action.
type ActionType int

const (
	// ActionOutput emits the frame on a port.
	ActionOutput ActionType = iota
	// ActionGroup hands the frame to a group for bucket selection.
	ActionGroup
)

// Action is a single forwarding action in a rule or packet-out.
type Action struct {
	Type    ActionType
	Port    PortNo
	GroupID uint32
}

// Output returns an output-to-port action.
func Output(port PortNo) Action {
	return Action{Type: ActionOutput, Port: port}
}

// Group returns a forward-via-group action.
func Group(id uint32) Action {
	return Action{Type: ActionGroup, GroupID: id}
}

// Rule is a flow table entry to install.
type Rule struct {
	TableID     uint8
	Priority    uint16
	Match       Match
	Actions     []Action
	IdleTimeout uint16
	HardTimeout uint16
}

// PacketOut carries a frame to emit from a switch.
type PacketOut struct {
	InPort   PortNo
	BufferID uint32
	Actions  []Action
	Data     []byte
}

// GroupCommand discriminates GroupMod.
type GroupCommand int

const (
	GroupAdd GroupCommand = iota
	GroupDelete
)

// GroupMod creates or deletes a select-type multipath group. Buckets holds
// one output port per bucket; the switch picks a bucket per packet/flow.
type GroupMod struct {
	Command GroupCommand
	GroupID uint32
	Buckets []PortNo
}

// StatsKind selects which statistics to request from a switch.
type StatsKind int

const (
	StatsPort StatsKind = iota
	StatsFlow
	StatsGroup
)

// String returns the stats kind name for logs and metric labels.
func (k StatsKind) String() string {
	switch k {
	case StatsPort:
		return "port"
	case StatsFlow:
		return "flow"
	case StatsGroup:
		return "group"
	default:
		return "unknown"
	}
}

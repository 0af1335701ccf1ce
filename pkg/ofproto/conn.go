package ofproto

import "context"

// Conn is the per-switch command channel provided by a protocol driver.
// Every method may block on I/O; callers treat a returned error as a
// transient protocol failure and abandon the operation for that switch.
type Conn interface {
	// InstallRule adds a flow rule to the switch's table.
	InstallRule(ctx context.Context, rule Rule) error

	// DeleteRule removes all rules matching the filter.
	DeleteRule(ctx context.Context, match Match) error

	// SendPacket emits a packet-out from the switch.
	SendPacket(ctx context.Context, out PacketOut) error

	// ModifyGroup creates or deletes a multipath group. Deleting a group
	// that does not exist is not an error the caller should act on.
	ModifyGroup(ctx context.Context, mod GroupMod) error

	// RequestStats asks the switch for statistics of the given kind; the
	// answer arrives later as a StatsReply event.
	RequestStats(ctx context.Context, kind StatsKind) error
}

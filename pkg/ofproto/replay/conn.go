// conn.go implements the replay switch connection: every command is
// accepted, logged, and recorded for inspection; nothing reaches a
// dataplane.
package replay

import (
	"context"
	"sync"

	"github.com/fabron-network/fabron/pkg/ofproto"
	"github.com/fabron-network/fabron/pkg/util"
)

// SwitchConn services commands for one scripted switch. Safe for concurrent
// use; the recorded commands can be inspected while the controller runs.
type SwitchConn struct {
	id ofproto.SwitchID

	mu         sync.Mutex
	rules      []ofproto.Rule
	packetOuts []ofproto.PacketOut
	groupMods  []ofproto.GroupMod
	statsReqs  []ofproto.StatsKind
}

func (c *SwitchConn) InstallRule(_ context.Context, rule ofproto.Rule) error {
	c.mu.Lock()
	c.rules = append(c.rules, rule)
	c.mu.Unlock()
	util.WithSwitch(uint64(c.id)).Infof("flow-mod: priority=%d eth_dst=%s actions=%d",
		rule.Priority, rule.Match.EthDst, len(rule.Actions))
	return nil
}

func (c *SwitchConn) DeleteRule(_ context.Context, match ofproto.Match) error {
	util.WithSwitch(uint64(c.id)).Infof("flow-del: eth_dst=%s", match.EthDst)
	return nil
}

func (c *SwitchConn) SendPacket(_ context.Context, out ofproto.PacketOut) error {
	c.mu.Lock()
	c.packetOuts = append(c.packetOuts, out)
	c.mu.Unlock()
	util.WithSwitch(uint64(c.id)).Debugf("packet-out: in_port=%d actions=%d bytes=%d",
		out.InPort, len(out.Actions), len(out.Data))
	return nil
}

func (c *SwitchConn) ModifyGroup(_ context.Context, mod ofproto.GroupMod) error {
	c.mu.Lock()
	c.groupMods = append(c.groupMods, mod)
	c.mu.Unlock()
	util.WithSwitch(uint64(c.id)).Infof("group-mod: cmd=%d group=%d buckets=%v",
		mod.Command, mod.GroupID, mod.Buckets)
	return nil
}

func (c *SwitchConn) RequestStats(_ context.Context, kind ofproto.StatsKind) error {
	c.mu.Lock()
	c.statsReqs = append(c.statsReqs, kind)
	c.mu.Unlock()
	util.WithSwitch(uint64(c.id)).Debugf("stats-request: %s", kind)
	return nil
}

// Rules returns a copy of the installed rules.
func (c *SwitchConn) Rules() []ofproto.Rule {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ofproto.Rule(nil), c.rules...)
}

// PacketOuts returns a copy of the sent packet-outs.
func (c *SwitchConn) PacketOuts() []ofproto.PacketOut {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ofproto.PacketOut(nil), c.packetOuts...)
}

// GroupMods returns a copy of the group modifications.
func (c *SwitchConn) GroupMods() []ofproto.GroupMod {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ofproto.GroupMod(nil), c.groupMods...)
}

// ecmp.go manages the per-leaf multipath group that spreads fabric-bound
// traffic across uplinks. The group is recreated wholesale on every install
// (delete, then add) so a bucket for a removed uplink can never survive a
// rebuild.
package controller

import (
	"time"

	"github.com/fabron-network/fabron/pkg/ofproto"
	"github.com/fabron-network/fabron/pkg/util"
)

// ECMPGroupID is the fixed identifier of the uplink group on every leaf.
// One group per switch; the switch hashes packet headers to pick a bucket.
const ECMPGroupID uint32 = 100

// installECMPGroup (re)installs the uplink group on a switch. No-op when the
// switch has no uplinks or is not connected. Delete errors are ignored: the
// group may simply not exist yet.
func (c *Controller) installECMPGroup(id ofproto.SwitchID) {
	sw := c.registry.Get(id)
	if sw == nil {
		return
	}

	uplinks := c.topology().SortedUplinks(id)
	if len(uplinks) == 0 {
		return
	}

	del := ofproto.GroupMod{Command: ofproto.GroupDelete, GroupID: ECMPGroupID}
	if err := sw.Conn.ModifyGroup(c.ctx, del); err != nil {
		util.WithSwitch(uint64(id)).Debugf("group delete before add: %v", err)
	}

	add := ofproto.GroupMod{Command: ofproto.GroupAdd, GroupID: ECMPGroupID, Buckets: uplinks}
	if err := sw.Conn.ModifyGroup(c.ctx, add); err != nil {
		c.commandFailed("group_install", id, err)
		return
	}

	c.metrics.NotifyGroupInstalled(id)
	util.WithSwitch(uint64(id)).Debugf("installed ecmp group with uplinks %v", uplinks)
}

// recomputeGroupsForSwitch forces a full rebuild and reinstalls the group on
// the affected switch if it still has host ports. Used on port-status
// changes, where the link set may have shifted under us.
func (c *Controller) recomputeGroupsForSwitch(id ofproto.SwitchID) {
	c.rebuildTopology()
	if c.topology().HasHostPorts(id) {
		c.installECMPGroup(id)
	}
}

// installRule installs a flow rule with the configured timeouts and reports
// the install latency. Errors are recorded and the operation abandoned.
func (c *Controller) installRule(conn ofproto.Conn, id ofproto.SwitchID, rule ofproto.Rule) {
	start := time.Now()
	rule.IdleTimeout = c.cfg.FlowIdleTimeout
	rule.HardTimeout = c.cfg.FlowHardTimeout
	if err := conn.InstallRule(c.ctx, rule); err != nil {
		c.commandFailed("flow_install", id, err)
		return
	}
	c.metrics.NotifyRuleInstalled(id, time.Since(start))
}

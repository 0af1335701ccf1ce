// stats.go drives the periodic statistics collection: requests go out to
// every connected switch, replies come back as events and are handed to the
// metrics collaborator.
package controller

import (
	"fmt"

	"github.com/fabron-network/fabron/pkg/ofproto"
	"github.com/fabron-network/fabron/pkg/util"
)

// pollStats requests port and flow stats from every connected switch, and
// group stats from switches that currently have host ports (only leaves
// carry the multipath group).
func (c *Controller) pollStats() {
	snap := c.topology()
	for _, sw := range c.registry.All() {
		kinds := []ofproto.StatsKind{ofproto.StatsPort, ofproto.StatsFlow}
		if snap.HasHostPorts(sw.ID) {
			kinds = append(kinds, ofproto.StatsGroup)
		}
		for _, kind := range kinds {
			if err := sw.Conn.RequestStats(c.ctx, kind); err != nil {
				c.metrics.NotifyError("stats_request", sw.ID)
				util.WithSwitch(uint64(sw.ID)).Debugf("%v",
					util.NewProtocolError("stats_request", uint64(sw.ID), fmt.Errorf("%s: %w", kind, err)))
			}
		}
	}

	hosts, ips := c.hosts.Counts()
	c.metrics.ObserveHosts(hosts, ips)
}

// handleStatsReply forwards a statistics reply to the metrics collaborator.
// Replies for switches we no longer know are ignored, not errors.
func (c *Controller) handleStatsReply(ev ofproto.StatsReply) {
	if c.registry.Get(ev.ID) == nil {
		return
	}
	switch ev.Kind {
	case ofproto.StatsPort:
		c.metrics.IngestPortStats(ev.ID, ev.Ports)
	case ofproto.StatsFlow:
		c.metrics.IngestFlowStats(ev.ID, ev.Flows)
	case ofproto.StatsGroup:
		c.metrics.IngestGroupStats(ev.ID, ev.Groups)
	}
}

// Package controller implements the spine-leaf fabric control plane: switch
// registry, derived topology, host location learning, ECMP group management,
// and the reactive forwarding engine.
//
// All mutable forwarding state is owned by the single goroutine running the
// event loop in Run. Periodic work (topology reconciliation, statistics
// polling) is injected into the same loop as ticks, so no two handlers ever
// run concurrently on shared state. The only values that cross goroutines
// are immutable topology snapshots and thread-safe metric primitives.
package controller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fabron-network/fabron/pkg/ofproto"
	"github.com/fabron-network/fabron/pkg/util"
)

// Config carries the controller's tunables. Zero values select defaults.
type Config struct {
	// ReconcileInterval is the unconditional topology rebuild period, the
	// self-healing backstop against missed or reordered notifications.
	ReconcileInterval time.Duration

	// StatsInterval is the statistics polling period.
	StatsInterval time.Duration

	// FlowIdleTimeout and FlowHardTimeout apply to every installed
	// forwarding rule.
	FlowIdleTimeout uint16
	FlowHardTimeout uint16
}

// Defaults for Config.
const (
	DefaultReconcileInterval = 5 * time.Second
	DefaultStatsInterval     = 10 * time.Second
	DefaultFlowIdleTimeout   = 60
)

func (cfg *Config) applyDefaults() {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = DefaultReconcileInterval
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.FlowIdleTimeout == 0 {
		cfg.FlowIdleTimeout = DefaultFlowIdleTimeout
	}
}

// Controller is the fabric control plane. Create with New, start with Run.
type Controller struct {
	cfg     Config
	source  ofproto.EventSource
	metrics Metrics
	mirror  Mirror

	registry *Registry
	hosts    *HostTable
	links    map[ofproto.Link]struct{}
	topo     atomic.Pointer[Snapshot]

	// ctx is the Run context; command sends inherit its cancellation.
	ctx context.Context
}

// New creates a controller consuming events from source. Pass nil metrics or
// mirror to disable the respective collaborator.
func New(cfg Config, source ofproto.EventSource, metrics Metrics, mirror Mirror) *Controller {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if mirror == nil {
		mirror = NopMirror{}
	}
	c := &Controller{
		cfg:      cfg,
		source:   source,
		metrics:  metrics,
		mirror:   mirror,
		registry: NewRegistry(),
		hosts:    NewHostTable(),
		links:    make(map[ofproto.Link]struct{}),
		ctx:      context.Background(),
	}
	c.topo.Store(EmptySnapshot())
	return c
}

// Run consumes protocol events until the context is cancelled or the event
// source closes. It blocks; run it on its own goroutine if needed.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx

	reconcile := time.NewTicker(c.cfg.ReconcileInterval)
	defer reconcile.Stop()
	stats := time.NewTicker(c.cfg.StatsInterval)
	defer stats.Stop()

	util.WithOperation("controller.run").Infof(
		"controller started (reconcile %s, stats %s)", c.cfg.ReconcileInterval, c.cfg.StatsInterval)

	events := c.source.Events()
	for {
		select {
		case <-ctx.Done():
			util.WithOperation("controller.run").Info("controller stopping")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				util.WithOperation("controller.run").Info("event source closed")
				return nil
			}
			c.dispatch(ev)

		case <-reconcile.C:
			c.rebuildTopology()

		case <-stats.C:
			c.pollStats()
		}
	}
}

// dispatch routes one event to its handler. Handlers run to completion on
// the loop goroutine.
func (c *Controller) dispatch(ev ofproto.Event) {
	switch ev := ev.(type) {
	case ofproto.SwitchConnected:
		c.handleSwitchConnected(ev)
	case ofproto.SwitchDisconnected:
		c.handleSwitchDisconnected(ev)
	case ofproto.PortStatus:
		c.handlePortStatus(ev)
	case ofproto.LinkAdded:
		c.links[ev.Link] = struct{}{}
		util.WithOperation("topology").Debugf("link added: %d/%d -> %d/%d",
			ev.Link.Src, ev.Link.SrcPort, ev.Link.Dst, ev.Link.DstPort)
		c.rebuildTopology()
	case ofproto.LinkRemoved:
		delete(c.links, ev.Link)
		util.WithOperation("topology").Debugf("link removed: %d/%d -> %d/%d",
			ev.Link.Src, ev.Link.SrcPort, ev.Link.Dst, ev.Link.DstPort)
		c.rebuildTopology()
	case ofproto.PacketIn:
		c.handlePacketIn(ev)
	case ofproto.StatsReply:
		c.handleStatsReply(ev)
	}
}

// commandFailed records a failed switch command as a protocol error. The
// command is abandoned; a later packet-in or rebuild re-attempts naturally.
func (c *Controller) commandFailed(op string, id ofproto.SwitchID, err error) {
	c.metrics.NotifyError(op, id)
	util.WithSwitch(uint64(id)).Warnf("%v", util.NewProtocolError(op, uint64(id), err))
}

// handlePortStatus reacts to a port flapping by recomputing the topology and
// the affected switch's group. The registry's port list for the switch is
// unchanged here; port membership comes from the connect-time inventory and
// the link set.
func (c *Controller) handlePortStatus(ev ofproto.PortStatus) {
	state := "down"
	if ev.Up {
		state = "up"
	}
	util.WithSwitch(uint64(ev.ID)).Infof("port %d %s", ev.Port, state)
	c.recomputeGroupsForSwitch(ev.ID)
}

// Hosts exposes the host table for same-goroutine collaborators (the replay
// harness and tests). Not safe for concurrent use with Run.
func (c *Controller) Hosts() *HostTable {
	return c.hosts
}

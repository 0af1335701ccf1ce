// registry.go implements the switch registry: the source of truth for which
// switches are connected, plus the connect/disconnect event handling that
// installs baseline rules and keeps the topology in step.
package controller

import (
	"fmt"
	"sort"

	"github.com/fabron-network/fabron/pkg/ofproto"
	"github.com/fabron-network/fabron/pkg/util"
)

// Switch is a live switch connection and its reported ports.
type Switch struct {
	ID    ofproto.SwitchID
	Conn  ofproto.Conn
	Ports []ofproto.PortNo
}

// Registry tracks connected switches. It is owned by the controller
// goroutine and must not be shared.
type Registry struct {
	switches map[ofproto.SwitchID]*Switch
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{switches: make(map[ofproto.SwitchID]*Switch)}
}

// Add records a switch connection, replacing any previous entry for the id.
func (r *Registry) Add(sw *Switch) {
	r.switches[sw.ID] = sw
}

// Remove forgets a switch.
func (r *Registry) Remove(id ofproto.SwitchID) {
	delete(r.switches, id)
}

// Get returns the switch for an id, or nil if it is not connected.
func (r *Registry) Get(id ofproto.SwitchID) *Switch {
	return r.switches[id]
}

// Count returns the number of connected switches.
func (r *Registry) Count() int {
	return len(r.switches)
}

// All returns the connected switches ordered by id.
func (r *Registry) All() []*Switch {
	out := make([]*Switch, 0, len(r.switches))
	for _, sw := range r.switches {
		out = append(out, sw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PortMap returns each connected switch's port list, the primary input to a
// topology rebuild.
func (r *Registry) PortMap() map[ofproto.SwitchID][]ofproto.PortNo {
	out := make(map[ofproto.SwitchID][]ofproto.PortNo, len(r.switches))
	for id, sw := range r.switches {
		out[id] = sw.Ports
	}
	return out
}

// Baseline rule priorities. Table-miss sits at the floor so every installed
// forwarding rule wins over it; ARP redirection sits just above it.
const (
	priorityTableMiss uint16 = 0
	priorityARPPunt   uint16 = 5
)

// handleSwitchConnected records the switch and installs the baseline rules:
// a table-miss catch-all and an ARP punt, both toward the controller. A
// failed install is recorded as a protocol error but does not remove the
// switch; the periodic rebuild re-attempts nothing here, so the switch
// simply operates degraded until it reconnects.
func (c *Controller) handleSwitchConnected(ev ofproto.SwitchConnected) {
	c.registry.Add(&Switch{ID: ev.ID, Conn: ev.Conn, Ports: ev.Ports})
	util.WithSwitch(uint64(ev.ID)).Infof("switch connected with %d ports", len(ev.Ports))

	toController := []ofproto.Action{ofproto.Output(ofproto.PortController)}

	miss := ofproto.Rule{
		Priority: priorityTableMiss,
		Actions:  toController,
	}
	if err := ev.Conn.InstallRule(c.ctx, miss); err != nil {
		c.commandFailed("baseline_install", ev.ID, fmt.Errorf("table-miss: %w", err))
	}

	arpPunt := ofproto.Rule{
		Priority: priorityARPPunt,
		Match:    ofproto.Match{EthType: ofproto.EthTypeARP},
		Actions:  toController,
	}
	if err := ev.Conn.InstallRule(c.ctx, arpPunt); err != nil {
		c.commandFailed("baseline_install", ev.ID, fmt.Errorf("arp punt: %w", err))
	}

	c.rebuildTopology()
}

// handleSwitchDisconnected removes the switch and rebuilds. The periodic
// reconciliation would eventually converge without this, but only as a
// backstop; stale uplinks would linger up to one reconcile interval.
func (c *Controller) handleSwitchDisconnected(ev ofproto.SwitchDisconnected) {
	c.registry.Remove(ev.ID)
	util.WithSwitch(uint64(ev.ID)).Info("switch disconnected")
	c.rebuildTopology()
}

// topology.go implements the derived topology view. Every rebuild recomputes
// the whole snapshot from the current switch and link sets and swaps it in
// atomically, so interleaved rebuild triggers can never produce a half-updated
// mix of old and new adjacency. The freshest recompute always wins.
package controller

import (
	"sort"
	"time"

	"github.com/fabron-network/fabron/pkg/ofproto"
	"github.com/fabron-network/fabron/pkg/util"
)

// Snapshot is an immutable view of switch adjacency and port classification.
// Readers must never mutate a snapshot; rebuilds replace it wholesale.
type Snapshot struct {
	// Neighbors maps switch → neighbor switch → local port toward it.
	Neighbors map[ofproto.SwitchID]map[ofproto.SwitchID]ofproto.PortNo

	// Uplinks holds the ports of each switch that appear in any link.
	Uplinks map[ofproto.SwitchID]map[ofproto.PortNo]struct{}

	// HostPorts holds every port that is neither an uplink nor the
	// reserved local port.
	HostPorts map[ofproto.SwitchID]map[ofproto.PortNo]struct{}
}

// EmptySnapshot returns a snapshot with no switches.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Neighbors: map[ofproto.SwitchID]map[ofproto.SwitchID]ofproto.PortNo{},
		Uplinks:   map[ofproto.SwitchID]map[ofproto.PortNo]struct{}{},
		HostPorts: map[ofproto.SwitchID]map[ofproto.PortNo]struct{}{},
	}
}

// BuildSnapshot classifies every port of every switch from the link set.
// Ports on a reported link are uplinks; every other port except the reserved
// local port is host-facing.
func BuildSnapshot(switches map[ofproto.SwitchID][]ofproto.PortNo, links []ofproto.Link) *Snapshot {
	snap := EmptySnapshot()

	for id := range switches {
		snap.Neighbors[id] = map[ofproto.SwitchID]ofproto.PortNo{}
		snap.Uplinks[id] = map[ofproto.PortNo]struct{}{}
	}

	for _, link := range links {
		// A link determines one adjacency on each endpoint. A link may
		// reference a switch that has not (re)connected yet; classify it
		// anyway so the entry is ready when it does.
		for _, end := range []struct {
			local, remote ofproto.SwitchID
			port          ofproto.PortNo
		}{
			{link.Src, link.Dst, link.SrcPort},
			{link.Dst, link.Src, link.DstPort},
		} {
			if snap.Neighbors[end.local] == nil {
				snap.Neighbors[end.local] = map[ofproto.SwitchID]ofproto.PortNo{}
				snap.Uplinks[end.local] = map[ofproto.PortNo]struct{}{}
			}
			snap.Neighbors[end.local][end.remote] = end.port
			snap.Uplinks[end.local][end.port] = struct{}{}
		}
	}

	for id, ports := range switches {
		hostPorts := map[ofproto.PortNo]struct{}{}
		for _, p := range ports {
			if p == ofproto.PortLocal {
				continue
			}
			if _, up := snap.Uplinks[id][p]; up {
				continue
			}
			hostPorts[p] = struct{}{}
		}
		snap.HostPorts[id] = hostPorts
	}

	return snap
}

// IsHostPort reports whether a port is classified host-facing on a switch.
func (s *Snapshot) IsHostPort(sw ofproto.SwitchID, port ofproto.PortNo) bool {
	_, ok := s.HostPorts[sw][port]
	return ok
}

// HasHostPorts reports whether a switch has any host-facing port, i.e. acts
// as a leaf.
func (s *Snapshot) HasHostPorts(sw ofproto.SwitchID) bool {
	return len(s.HostPorts[sw]) > 0
}

// SortedUplinks returns a switch's uplink ports in ascending port order.
func (s *Snapshot) SortedUplinks(sw ofproto.SwitchID) []ofproto.PortNo {
	return sortedPorts(s.Uplinks[sw])
}

// SortedHostPorts returns a switch's host-facing ports in ascending order.
func (s *Snapshot) SortedHostPorts(sw ofproto.SwitchID) []ofproto.PortNo {
	return sortedPorts(s.HostPorts[sw])
}

// PortToward returns the one-hop output port from sw toward dst: the direct
// neighbor port if the adjacency is known, otherwise the first sorted uplink.
func (s *Snapshot) PortToward(sw, dst ofproto.SwitchID) (ofproto.PortNo, bool) {
	if port, ok := s.Neighbors[sw][dst]; ok {
		return port, true
	}
	uplinks := s.SortedUplinks(sw)
	if len(uplinks) > 0 {
		return uplinks[0], true
	}
	return 0, false
}

func sortedPorts(set map[ofproto.PortNo]struct{}) []ofproto.PortNo {
	ports := make([]ofproto.PortNo, 0, len(set))
	for p := range set {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// rebuildTopology recomputes the snapshot from the registry's switch set and
// the last-known link list, swaps it in, and reinstalls the multipath group
// on every switch that now has host ports.
func (c *Controller) rebuildTopology() {
	start := time.Now()

	links := make([]ofproto.Link, 0, len(c.links))
	for link := range c.links {
		links = append(links, link)
	}
	snap := BuildSnapshot(c.registry.PortMap(), links)
	c.topo.Store(snap)

	for _, sw := range c.registry.All() {
		if snap.HasHostPorts(sw.ID) {
			c.installECMPGroup(sw.ID)
		}
	}

	duration := time.Since(start)
	c.metrics.NotifyTopologyRebuild(duration)
	c.metrics.ObserveTopology(snap)
	c.mirror.PublishTopology(snap)

	util.WithOperation("topology.rebuild").Debugf(
		"rebuilt in %s: %d switches, %d links", duration, c.registry.Count(), len(links))
}

// topology returns the current snapshot. Safe from any goroutine.
func (c *Controller) topology() *Snapshot {
	return c.topo.Load()
}

// forwarding.go implements the packet-in state machine: source learning,
// ARP proxying, and the unicast/broadcast forwarding decision that installs
// directed or ECMP rules on the fly.
package controller

import (
	"net"
	"net/netip"

	"github.com/fabron-network/fabron/pkg/ofproto"
	"github.com/fabron-network/fabron/pkg/packet"
)

// Forwarding rule priorities. Direct same-switch rules outrank ECMP/transit
// rules, which outrank the ARP punt.
const (
	priorityDirected uint16 = 20
	priorityFabric   uint16 = 15
)

func (c *Controller) handlePacketIn(ev ofproto.PacketIn) {
	sw := c.registry.Get(ev.ID)
	if sw == nil {
		return
	}

	frame, err := packet.Decode(ev.Data)
	if err != nil {
		// Undecodable input is dropped silently.
		return
	}
	src := frame.SrcMAC.String()
	dst := frame.DstMAC.String()

	c.hosts.LearnCoarse(src, ev.ID)

	if dstSwitch, known := c.hosts.CoarseLocation(dst); known {
		srcSwitch, _ := c.hosts.CoarseLocation(src)
		if srcSwitch != dstSwitch {
			// Both endpoints known on different switches: count the
			// cross-switch traffic and stop.
			// TODO: this also swallows the first packet-in of a known
			// cross-switch flow instead of forwarding it; revisit whether
			// that is intended before tightening the fabric rules.
			c.metrics.NotifyCrossSwitchTraffic(srcSwitch, dstSwitch, len(ev.Data))
			return
		}
	}

	if frame.EtherType == ofproto.EthTypeLLDP {
		// Topology discovery frames belong to the protocol driver.
		return
	}

	c.metrics.NotifyPacketIn(ev.ID, ev.Reason.String())

	snap := c.topology()
	if snap.IsHostPort(ev.ID, ev.InPort) {
		c.hosts.LearnFine(src, ev.ID, ev.InPort)
		c.mirror.PublishHost(src, HostLocation{Switch: ev.ID, Port: ev.InPort})
	}

	if frame.ARP != nil {
		c.handleARP(sw, ev, frame, snap)
		return
	}

	if frame.IsIPv4 {
		c.forwardUnicast(sw, ev, frame, snap)
		return
	}

	// Unclassified payloads: L2 unicast handling plus a best-effort
	// discovery flood. Redundant with the unknown-destination flood inside
	// forwardUnicast for most frames; candidate for removal once flow
	// coverage is verified without it.
	c.forwardUnicast(sw, ev, frame, snap)
	flood := ofproto.PacketOut{
		InPort:   ev.InPort,
		BufferID: ofproto.NoBuffer,
		Actions:  []ofproto.Action{ofproto.Output(ofproto.PortFlood)},
		Data:     ev.Data,
	}
	if err := sw.Conn.SendPacket(c.ctx, flood); err != nil {
		c.commandFailed("packet_out", ev.ID, err)
	}
}

// handleARP learns from the ARP sender fields, answers known requests
// directly (proxy ARP, no flood), and floods the rest for discovery: on a
// leaf to the other host ports plus the fabric group, on a spine to every
// neighbor except the ingress.
func (c *Controller) handleARP(sw *Switch, ev ofproto.PacketIn, frame *packet.Frame, snap *Snapshot) {
	a := frame.ARP
	c.metrics.NotifyARP(ev.ID, arpOpName(a.Op))

	if a.SenderIP.IsValid() && len(frame.SrcMAC) > 0 {
		c.hosts.LearnARP(a.SenderIP, frame.SrcMAC)
		c.mirror.PublishARP(a.SenderIP, frame.SrcMAC)
		if snap.IsHostPort(ev.ID, ev.InPort) {
			src := frame.SrcMAC.String()
			c.hosts.LearnFine(src, ev.ID, ev.InPort)
			c.mirror.PublishHost(src, HostLocation{Switch: ev.ID, Port: ev.InPort})
		}
	}

	if a.Op == packet.ARPRequest {
		if target, known := c.hosts.MACForIP(a.TargetIP); known {
			c.sendARPReply(sw, ev.InPort, target, frame, a.TargetIP, a.SenderIP)
			return
		}
	}

	var actions []ofproto.Action
	if snap.HasHostPorts(ev.ID) {
		for _, p := range snap.SortedHostPorts(ev.ID) {
			if p != ev.InPort {
				actions = append(actions, ofproto.Output(p))
			}
		}
		if snap.IsHostPort(ev.ID, ev.InPort) {
			// Came from a host: also probe the fabric via the uplink group.
			actions = append(actions, ofproto.Group(ECMPGroupID))
		}
	} else {
		for _, neighbor := range sortedNeighborPorts(snap, ev.ID) {
			if neighbor != ev.InPort {
				actions = append(actions, ofproto.Output(neighbor))
			}
		}
	}

	if len(actions) > 0 {
		c.sendPacketOut(sw, ev, actions)
	}
}

// sendARPReply synthesizes a proxy reply on behalf of targetIP and sends it
// straight back out the ingress port.
func (c *Controller) sendARPReply(sw *Switch, inPort ofproto.PortNo, targetMAC net.HardwareAddr, frame *packet.Frame, targetIP, senderIP netip.Addr) {
	data, err := packet.BuildARPReply(targetMAC, frame.SrcMAC, targetIP, senderIP)
	if err != nil {
		c.metrics.NotifyError("arp_build", sw.ID)
		return
	}
	out := ofproto.PacketOut{
		InPort:   ofproto.PortController,
		BufferID: ofproto.NoBuffer,
		Actions:  []ofproto.Action{ofproto.Output(inPort)},
		Data:     data,
	}
	if err := sw.Conn.SendPacket(c.ctx, out); err != nil {
		c.commandFailed("packet_out", sw.ID, err)
	}
}

// forwardUnicast decides how a non-ARP frame leaves the fabric:
//   - broadcast/multicast: host-port flood, no rule
//   - unknown destination: host-port flood plus a fabric probe from leaves
//   - known on this switch: directed rule to the attachment port
//   - known elsewhere, ingress host-facing: rule via the ECMP group
//   - known elsewhere, transit: rule toward the destination's switch
func (c *Controller) forwardUnicast(sw *Switch, ev ofproto.PacketIn, frame *packet.Frame, snap *Snapshot) {
	dst := frame.DstMAC.String()

	if packet.IsMulticast(frame.DstMAC) {
		var actions []ofproto.Action
		for _, p := range snap.SortedHostPorts(ev.ID) {
			if p != ev.InPort {
				actions = append(actions, ofproto.Output(p))
			}
		}
		// Every broadcast revisits the controller; no rule installed.
		c.sendPacketOut(sw, ev, actions)
		return
	}

	if loc, known := c.hosts.FineLocation(dst); known {
		match := ofproto.Match{EthDst: frame.DstMAC}

		switch {
		case loc.Switch == ev.ID:
			actions := []ofproto.Action{ofproto.Output(loc.Port)}
			c.installRule(sw.Conn, ev.ID, ofproto.Rule{Priority: priorityDirected, Match: match, Actions: actions})
			c.sendPacketOut(sw, ev, actions)
			return

		case snap.IsHostPort(ev.ID, ev.InPort):
			// Source leaf: spread across uplinks via the group.
			actions := []ofproto.Action{ofproto.Group(ECMPGroupID)}
			c.installRule(sw.Conn, ev.ID, ofproto.Rule{Priority: priorityFabric, Match: match, Actions: actions})
			c.sendPacketOut(sw, ev, actions)
			return

		default:
			if port, ok := snap.PortToward(ev.ID, loc.Switch); ok {
				actions := []ofproto.Action{ofproto.Output(port)}
				c.installRule(sw.Conn, ev.ID, ofproto.Rule{Priority: priorityFabric, Match: match, Actions: actions})
				c.sendPacketOut(sw, ev, actions)
				return
			}
			// No adjacency and no uplinks: fall through to discovery.
		}
	}

	var actions []ofproto.Action
	for _, p := range snap.SortedHostPorts(ev.ID) {
		if p != ev.InPort {
			actions = append(actions, ofproto.Output(p))
		}
	}
	if snap.IsHostPort(ev.ID, ev.InPort) {
		actions = append(actions, ofproto.Group(ECMPGroupID))
	}
	if len(actions) > 0 {
		c.sendPacketOut(sw, ev, actions)
	}
}

// sendPacketOut re-emits the triggering frame with the given actions,
// carrying the data only when the switch did not buffer it.
func (c *Controller) sendPacketOut(sw *Switch, ev ofproto.PacketIn, actions []ofproto.Action) {
	out := ofproto.PacketOut{
		InPort:   ev.InPort,
		BufferID: ev.BufferID,
		Actions:  actions,
	}
	if ev.BufferID == ofproto.NoBuffer {
		out.Data = ev.Data
	}
	if err := sw.Conn.SendPacket(c.ctx, out); err != nil {
		c.commandFailed("packet_out", sw.ID, err)
	}
}

// sortedNeighborPorts returns a spine's ports toward its neighbors in
// deterministic order.
func sortedNeighborPorts(snap *Snapshot, sw ofproto.SwitchID) []ofproto.PortNo {
	set := map[ofproto.PortNo]struct{}{}
	for _, port := range snap.Neighbors[sw] {
		set[port] = struct{}{}
	}
	return sortedPorts(set)
}

func arpOpName(op uint16) string {
	if op == packet.ARPRequest {
		return "request"
	}
	return "reply"
}

// hosts.go implements the host location store: where each MAC was last seen
// (coarse, per switch), where it is attached (fine, per switch+port), and the
// IP→MAC table learned from ARP. Pure state owned by the controller
// goroutine; no I/O.
package controller

import (
	"net"
	"net/netip"

	"github.com/fabron-network/fabron/pkg/ofproto"
)

// HostLocation is a host's authoritative attachment point.
type HostLocation struct {
	Switch ofproto.SwitchID
	Port   ofproto.PortNo
}

// HostTable tracks learned host state. Coarse entries come from every
// observed source MAC; fine entries only from host-facing ingress ports, so
// a fabric-internal relay is never recorded as an attachment point.
type HostTable struct {
	coarse map[string]ofproto.SwitchID
	fine   map[string]HostLocation
	ipMAC  map[netip.Addr]net.HardwareAddr
}

// NewHostTable creates an empty host table.
func NewHostTable() *HostTable {
	return &HostTable{
		coarse: make(map[string]ofproto.SwitchID),
		fine:   make(map[string]HostLocation),
		ipMAC:  make(map[netip.Addr]net.HardwareAddr),
	}
}

// LearnCoarse records the switch a source MAC was last seen on.
func (h *HostTable) LearnCoarse(mac string, sw ofproto.SwitchID) {
	h.coarse[mac] = sw
}

// LearnFine records a host's attachment point. Callers must only pass
// host-facing ingress ports.
func (h *HostTable) LearnFine(mac string, sw ofproto.SwitchID, port ofproto.PortNo) {
	h.fine[mac] = HostLocation{Switch: sw, Port: port}
}

// LearnARP records an IP→MAC binding from an ARP sender field.
func (h *HostTable) LearnARP(ip netip.Addr, mac net.HardwareAddr) {
	if !ip.IsValid() || len(mac) == 0 {
		return
	}
	h.ipMAC[ip] = mac
}

// CoarseLocation returns the switch a MAC was last seen on.
func (h *HostTable) CoarseLocation(mac string) (ofproto.SwitchID, bool) {
	sw, ok := h.coarse[mac]
	return sw, ok
}

// FineLocation returns a MAC's attachment point, if learned.
func (h *HostTable) FineLocation(mac string) (HostLocation, bool) {
	loc, ok := h.fine[mac]
	return loc, ok
}

// MACForIP returns the MAC bound to an IP, if learned from ARP.
func (h *HostTable) MACForIP(ip netip.Addr) (net.HardwareAddr, bool) {
	mac, ok := h.ipMAC[ip]
	return mac, ok
}

// Counts returns the number of fine host locations and learned IPs.
func (h *HostTable) Counts() (hosts, ips int) {
	return len(h.fine), len(h.ipMAC)
}

// FineEntries returns a copy of the fine location table for out-of-band
// consumers (metrics, state mirror).
func (h *HostTable) FineEntries() map[string]HostLocation {
	out := make(map[string]HostLocation, len(h.fine))
	for mac, loc := range h.fine {
		out[mac] = loc
	}
	return out
}

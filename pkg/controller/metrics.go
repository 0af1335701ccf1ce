// metrics.go defines the collaborator interfaces the controller notifies.
// Implementations must be fire-and-forget: nothing here may block the
// forwarding path, and nothing here may mutate forwarding state.
package controller

import (
	"net"
	"net/netip"
	"time"

	"github.com/fabron-network/fabron/pkg/ofproto"
)

// Metrics receives structured notifications about controller activity and
// the periodic statistics replies. All methods must be safe to call from
// the controller goroutine and internally thread-safe for scraping.
type Metrics interface {
	NotifyPacketIn(sw ofproto.SwitchID, reason string)
	NotifyARP(sw ofproto.SwitchID, op string)
	NotifyRuleInstalled(sw ofproto.SwitchID, duration time.Duration)
	NotifyGroupInstalled(sw ofproto.SwitchID)
	NotifyTopologyRebuild(duration time.Duration)
	NotifyCrossSwitchTraffic(src, dst ofproto.SwitchID, bytes int)
	NotifyError(kind string, sw ofproto.SwitchID)

	// ObserveTopology and ObserveHosts refresh gauges from the latest
	// snapshot and host-table summary.
	ObserveTopology(snap *Snapshot)
	ObserveHosts(hosts, ips int)

	IngestPortStats(sw ofproto.SwitchID, stats []ofproto.PortStats)
	IngestFlowStats(sw ofproto.SwitchID, stats []ofproto.FlowStats)
	IngestGroupStats(sw ofproto.SwitchID, stats []ofproto.GroupStats)
}

// Mirror receives copies of learned state for out-of-band inspection. Calls
// must never block; implementations drop on pressure.
type Mirror interface {
	PublishTopology(snap *Snapshot)
	PublishHost(mac string, loc HostLocation)
	PublishARP(ip netip.Addr, mac net.HardwareAddr)
}

// NopMetrics discards every notification. Useful default for tests.
type NopMetrics struct{}

func (NopMetrics) NotifyPacketIn(ofproto.SwitchID, string)                 {}
func (NopMetrics) NotifyARP(ofproto.SwitchID, string)                      {}
func (NopMetrics) NotifyRuleInstalled(ofproto.SwitchID, time.Duration)     {}
func (NopMetrics) NotifyGroupInstalled(ofproto.SwitchID)                   {}
func (NopMetrics) NotifyTopologyRebuild(time.Duration)                     {}
func (NopMetrics) NotifyCrossSwitchTraffic(_, _ ofproto.SwitchID, _ int)   {}
func (NopMetrics) NotifyError(string, ofproto.SwitchID)                    {}
func (NopMetrics) ObserveTopology(*Snapshot)                               {}
func (NopMetrics) ObserveHosts(int, int)                                   {}
func (NopMetrics) IngestPortStats(ofproto.SwitchID, []ofproto.PortStats)   {}
func (NopMetrics) IngestFlowStats(ofproto.SwitchID, []ofproto.FlowStats)   {}
func (NopMetrics) IngestGroupStats(ofproto.SwitchID, []ofproto.GroupStats) {}

// NopMirror discards every publication.
type NopMirror struct{}

func (NopMirror) PublishTopology(*Snapshot)                {}
func (NopMirror) PublishHost(string, HostLocation)         {}
func (NopMirror) PublishARP(netip.Addr, net.HardwareAddr)  {}

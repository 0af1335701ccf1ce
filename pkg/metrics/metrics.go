// Package metrics exports controller activity as Prometheus metrics and
// serves them over HTTP together with a health endpoint.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fabron-network/fabron/pkg/controller"
	"github.com/fabron-network/fabron/pkg/ofproto"
)

// Exporter implements controller.Metrics on top of a Prometheus registry.
// All underlying collectors are safe for concurrent use, so notifications
// from the controller goroutine never contend with scrapes.
type Exporter struct {
	gatherer prometheus.Gatherer

	packetIn       *prometheus.CounterVec
	arpPackets     *prometheus.CounterVec
	crossLeafBytes *prometheus.CounterVec
	errors         *prometheus.CounterVec
	groupInstalls  *prometheus.CounterVec

	flowInstallDuration *prometheus.HistogramVec
	rebuildCount        prometheus.Counter
	rebuildDuration     prometheus.Histogram

	switchCount  *prometheus.GaugeVec
	portCount    *prometheus.GaugeVec
	linkCount    prometheus.Gauge
	neighbors    *prometheus.GaugeVec
	ecmpBuckets  *prometheus.GaugeVec
	learnedHosts prometheus.Gauge
	learnedIPs   prometheus.Gauge

	portRxPackets *prometheus.GaugeVec
	portTxPackets *prometheus.GaugeVec
	portRxBytes   *prometheus.GaugeVec
	portTxBytes   *prometheus.GaugeVec
	portRxErrors  *prometheus.GaugeVec
	portTxErrors  *prometheus.GaugeVec

	flowEntries     *prometheus.GaugeVec
	flowPackets     *prometheus.GaugeVec
	groupPackets    *prometheus.GaugeVec
	groupBytes      *prometheus.GaugeVec
	bucketPackets   *prometheus.GaugeVec
	bucketByteCount *prometheus.GaugeVec

	roleHints map[uint64]string
}

// SetRoleHints pins switches to the given role for the sdn_switches_total
// label. Hinted switches keep their role before any links are discovered;
// switches without a hint are classified from their host ports. Call before
// the controller starts publishing snapshots.
func (e *Exporter) SetRoleHints(hints map[uint64]string) {
	e.roleHints = hints
}

// NewExporter registers the fabric metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice against the same
// registry reuses the existing collectors.
func NewExporter(reg prometheus.Registerer) (*Exporter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	e := &Exporter{gatherer: gatherer}
	var err error

	e.packetIn, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sdn_packet_in_total",
		Help: "Total packet-in messages received.",
	}, []string{"dpid", "reason"}))
	if err != nil {
		return nil, err
	}
	e.arpPackets, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sdn_arp_packets_total",
		Help: "ARP packets processed, labeled by opcode.",
	}, []string{"dpid", "opcode"}))
	if err != nil {
		return nil, err
	}
	e.crossLeafBytes, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sdn_cross_leaf_traffic_bytes_total",
		Help: "Bytes seen at the controller between hosts on different switches.",
	}, []string{"src_dpid", "dst_dpid"}))
	if err != nil {
		return nil, err
	}
	e.errors, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sdn_errors_total",
		Help: "Controller errors by type.",
	}, []string{"error_type", "dpid"}))
	if err != nil {
		return nil, err
	}
	e.groupInstalls, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sdn_ecmp_group_installs_total",
		Help: "ECMP group installations per switch.",
	}, []string{"dpid"}))
	if err != nil {
		return nil, err
	}

	e.flowInstallDuration, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sdn_flow_install_duration_seconds",
		Help:    "Time to install flow rules.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"dpid"}))
	if err != nil {
		return nil, err
	}
	e.rebuildCount, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sdn_topology_rebuild_total",
		Help: "Number of topology rebuilds.",
	}))
	if err != nil {
		return nil, err
	}
	e.rebuildDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sdn_topology_rebuild_duration_seconds",
		Help:    "Time taken to rebuild the topology.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}))
	if err != nil {
		return nil, err
	}

	e.switchCount, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdn_switches_total",
		Help: "Connected switches by role.",
	}, []string{"type"}))
	if err != nil {
		return nil, err
	}
	e.portCount, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdn_ports_total",
		Help: "Ports per switch by classification.",
	}, []string{"dpid", "port_type"}))
	if err != nil {
		return nil, err
	}
	e.linkCount, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sdn_links_total",
		Help: "Discovered inter-switch links (directed).",
	}))
	if err != nil {
		return nil, err
	}
	e.neighbors, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdn_neighbors_total",
		Help: "Number of neighbor switches.",
	}, []string{"dpid"}))
	if err != nil {
		return nil, err
	}
	e.ecmpBuckets, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdn_ecmp_buckets_total",
		Help: "Buckets in the multipath group.",
	}, []string{"dpid", "group_id"}))
	if err != nil {
		return nil, err
	}
	e.learnedHosts, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sdn_learned_hosts_total",
		Help: "Learned host MAC addresses.",
	}))
	if err != nil {
		return nil, err
	}
	e.learnedIPs, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sdn_learned_ips_total",
		Help: "Learned IP to MAC bindings.",
	}))
	if err != nil {
		return nil, err
	}

	portGauge := func(name, help string) (*prometheus.GaugeVec, error) {
		return registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, []string{"dpid", "port_no"}))
	}
	if e.portRxPackets, err = portGauge("sdn_port_rx_packets", "Received packets per port (absolute device counter)."); err != nil {
		return nil, err
	}
	if e.portTxPackets, err = portGauge("sdn_port_tx_packets", "Transmitted packets per port (absolute device counter)."); err != nil {
		return nil, err
	}
	if e.portRxBytes, err = portGauge("sdn_port_rx_bytes", "Received bytes per port (absolute device counter)."); err != nil {
		return nil, err
	}
	if e.portTxBytes, err = portGauge("sdn_port_tx_bytes", "Transmitted bytes per port (absolute device counter)."); err != nil {
		return nil, err
	}
	if e.portRxErrors, err = portGauge("sdn_port_rx_errors", "Receive errors per port (absolute device counter)."); err != nil {
		return nil, err
	}
	if e.portTxErrors, err = portGauge("sdn_port_tx_errors", "Transmit errors per port (absolute device counter)."); err != nil {
		return nil, err
	}

	e.flowEntries, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdn_flow_entries_total",
		Help: "Installed flow entries per table.",
	}, []string{"dpid", "table_id"}))
	if err != nil {
		return nil, err
	}
	e.flowPackets, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdn_flow_packets_matched",
		Help: "Packets matched per flow priority (absolute device counter).",
	}, []string{"dpid", "table_id", "priority"}))
	if err != nil {
		return nil, err
	}
	e.groupPackets, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdn_ecmp_packets",
		Help: "Packets processed by the multipath group (absolute device counter).",
	}, []string{"dpid", "group_id"}))
	if err != nil {
		return nil, err
	}
	e.groupBytes, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdn_ecmp_bytes",
		Help: "Bytes processed by the multipath group (absolute device counter).",
	}, []string{"dpid", "group_id"}))
	if err != nil {
		return nil, err
	}
	e.bucketPackets, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdn_ecmp_bucket_packets",
		Help: "Packets per multipath bucket (absolute device counter).",
	}, []string{"dpid", "group_id", "bucket_id"}))
	if err != nil {
		return nil, err
	}
	e.bucketByteCount, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sdn_ecmp_bucket_bytes",
		Help: "Bytes per multipath bucket (absolute device counter).",
	}, []string{"dpid", "group_id", "bucket_id"}))
	if err != nil {
		return nil, err
	}

	return e, nil
}

func dpid(sw ofproto.SwitchID) string {
	return strconv.FormatUint(uint64(sw), 10)
}

// NotifyPacketIn implements controller.Metrics.
func (e *Exporter) NotifyPacketIn(sw ofproto.SwitchID, reason string) {
	e.packetIn.WithLabelValues(dpid(sw), reason).Inc()
}

func (e *Exporter) NotifyARP(sw ofproto.SwitchID, op string) {
	e.arpPackets.WithLabelValues(dpid(sw), op).Inc()
}

func (e *Exporter) NotifyRuleInstalled(sw ofproto.SwitchID, duration time.Duration) {
	e.flowInstallDuration.WithLabelValues(dpid(sw)).Observe(duration.Seconds())
}

func (e *Exporter) NotifyGroupInstalled(sw ofproto.SwitchID) {
	e.groupInstalls.WithLabelValues(dpid(sw)).Inc()
}

func (e *Exporter) NotifyTopologyRebuild(duration time.Duration) {
	e.rebuildCount.Inc()
	e.rebuildDuration.Observe(duration.Seconds())
}

func (e *Exporter) NotifyCrossSwitchTraffic(src, dst ofproto.SwitchID, bytes int) {
	e.crossLeafBytes.WithLabelValues(dpid(src), dpid(dst)).Add(float64(bytes))
}

func (e *Exporter) NotifyError(kind string, sw ofproto.SwitchID) {
	e.errors.WithLabelValues(kind, dpid(sw)).Inc()
}

// ObserveTopology refreshes the topology gauges from a snapshot. Vectors are
// reset first so switches that left the fabric do not linger.
func (e *Exporter) ObserveTopology(snap *controller.Snapshot) {
	e.switchCount.Reset()
	e.portCount.Reset()
	e.neighbors.Reset()
	e.ecmpBuckets.Reset()

	var spines, leaves, links float64
	for sw, neighbors := range snap.Neighbors {
		links += float64(len(neighbors))
		e.neighbors.WithLabelValues(dpid(sw)).Set(float64(len(neighbors)))
	}
	seen := map[ofproto.SwitchID]struct{}{}
	for sw := range snap.Uplinks {
		seen[sw] = struct{}{}
	}
	for sw := range snap.HostPorts {
		seen[sw] = struct{}{}
	}
	for sw := range seen {
		uplinks := len(snap.Uplinks[sw])
		hostPorts := len(snap.HostPorts[sw])
		e.portCount.WithLabelValues(dpid(sw), "uplink").Set(float64(uplinks))
		e.portCount.WithLabelValues(dpid(sw), "host").Set(float64(hostPorts))
		role := e.roleHints[uint64(sw)]
		if role == "" {
			role = "spine"
			if hostPorts > 0 {
				role = "leaf"
			}
		}
		if role == "leaf" {
			leaves++
			e.ecmpBuckets.WithLabelValues(dpid(sw), strconv.FormatUint(uint64(controller.ECMPGroupID), 10)).Set(float64(uplinks))
		} else {
			spines++
		}
	}
	e.switchCount.WithLabelValues("spine").Set(spines)
	e.switchCount.WithLabelValues("leaf").Set(leaves)
	e.linkCount.Set(links)
}

func (e *Exporter) ObserveHosts(hosts, ips int) {
	e.learnedHosts.Set(float64(hosts))
	e.learnedIPs.Set(float64(ips))
}

// IngestPortStats publishes absolute port counters as gauges; the devices
// own the counters, so rate() belongs on the scrape side only after an
// irate-style cast, and resets show up as drops.
func (e *Exporter) IngestPortStats(sw ofproto.SwitchID, stats []ofproto.PortStats) {
	d := dpid(sw)
	for _, s := range stats {
		port := strconv.FormatUint(uint64(s.PortNo), 10)
		e.portRxPackets.WithLabelValues(d, port).Set(float64(s.RxPackets))
		e.portTxPackets.WithLabelValues(d, port).Set(float64(s.TxPackets))
		e.portRxBytes.WithLabelValues(d, port).Set(float64(s.RxBytes))
		e.portTxBytes.WithLabelValues(d, port).Set(float64(s.TxBytes))
		e.portRxErrors.WithLabelValues(d, port).Set(float64(s.RxErrors))
		e.portTxErrors.WithLabelValues(d, port).Set(float64(s.TxErrors))
	}
}

func (e *Exporter) IngestFlowStats(sw ofproto.SwitchID, stats []ofproto.FlowStats) {
	d := dpid(sw)
	perTable := map[uint8]int{}
	for _, s := range stats {
		perTable[s.TableID]++
		e.flowPackets.WithLabelValues(d, strconv.Itoa(int(s.TableID)), strconv.Itoa(int(s.Priority))).Set(float64(s.PacketCount))
	}
	for table, count := range perTable {
		e.flowEntries.WithLabelValues(d, strconv.Itoa(int(table))).Set(float64(count))
	}
}

func (e *Exporter) IngestGroupStats(sw ofproto.SwitchID, stats []ofproto.GroupStats) {
	d := dpid(sw)
	for _, s := range stats {
		group := strconv.FormatUint(uint64(s.GroupID), 10)
		e.groupPackets.WithLabelValues(d, group).Set(float64(s.PacketCount))
		e.groupBytes.WithLabelValues(d, group).Set(float64(s.ByteCount))
		for i, b := range s.Buckets {
			bucket := strconv.Itoa(i)
			e.bucketPackets.WithLabelValues(d, group, bucket).Set(float64(b.PacketCount))
			e.bucketByteCount.WithLabelValues(d, group, bucket).Set(float64(b.ByteCount))
		}
	}
}

// register helpers tolerate duplicate registration by reusing the existing
// collector, so multiple constructions against one registry are safe.

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type")
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type")
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type")
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type")
		}
		return nil, err
	}
	return c, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type")
		}
		return nil, err
	}
	return g, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector already registered with incompatible type")
		}
		return nil, err
	}
	return h, nil
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fabron-network/fabron/pkg/controller"
	"github.com/fabron-network/fabron/pkg/ofproto"
)

func newTestExporter(t *testing.T) (*Exporter, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	e, err := NewExporter(reg)
	if err != nil {
		t.Fatalf("NewExporter: %v", err)
	}
	return e, reg
}

func TestExporter_Counters(t *testing.T) {
	e, _ := newTestExporter(t)

	e.NotifyPacketIn(2, "table_miss")
	e.NotifyPacketIn(2, "table_miss")
	e.NotifyARP(2, "request")
	e.NotifyCrossSwitchTraffic(2, 3, 64)
	e.NotifyCrossSwitchTraffic(2, 3, 36)
	e.NotifyError("packet_out", 3)

	if got := promtest.ToFloat64(e.packetIn.WithLabelValues("2", "table_miss")); got != 2 {
		t.Errorf("sdn_packet_in_total = %v, want 2", got)
	}
	if got := promtest.ToFloat64(e.arpPackets.WithLabelValues("2", "request")); got != 1 {
		t.Errorf("sdn_arp_packets_total = %v, want 1", got)
	}
	if got := promtest.ToFloat64(e.crossLeafBytes.WithLabelValues("2", "3")); got != 100 {
		t.Errorf("sdn_cross_leaf_traffic_bytes_total = %v, want 100", got)
	}
	if got := promtest.ToFloat64(e.errors.WithLabelValues("packet_out", "3")); got != 1 {
		t.Errorf("sdn_errors_total = %v, want 1", got)
	}
}

func TestExporter_TopologyGauges(t *testing.T) {
	e, _ := newTestExporter(t)

	switches := map[ofproto.SwitchID][]ofproto.PortNo{
		1: {1, 2, ofproto.PortLocal},
		2: {1, 2, 3, ofproto.PortLocal},
		3: {1, 2, 3, ofproto.PortLocal},
	}
	links := []ofproto.Link{
		{Src: 2, SrcPort: 1, Dst: 1, DstPort: 1},
		{Src: 3, SrcPort: 1, Dst: 1, DstPort: 2},
	}
	e.ObserveTopology(controller.BuildSnapshot(switches, links))

	if got := promtest.ToFloat64(e.switchCount.WithLabelValues("spine")); got != 1 {
		t.Errorf("spines = %v, want 1", got)
	}
	if got := promtest.ToFloat64(e.switchCount.WithLabelValues("leaf")); got != 2 {
		t.Errorf("leaves = %v, want 2", got)
	}
	if got := promtest.ToFloat64(e.portCount.WithLabelValues("2", "host")); got != 2 {
		t.Errorf("leaf 2 host ports = %v, want 2", got)
	}
	if got := promtest.ToFloat64(e.ecmpBuckets.WithLabelValues("2", "100")); got != 1 {
		t.Errorf("leaf 2 buckets = %v, want 1", got)
	}
	// Directed links: each physical cable counts once per direction.
	if got := promtest.ToFloat64(e.linkCount); got != 4 {
		t.Errorf("links = %v, want 4", got)
	}
}

func TestExporter_RoleHintsOverrideHeuristic(t *testing.T) {
	e, _ := newTestExporter(t)
	e.SetRoleHints(map[uint64]string{1: "spine", 2: "leaf", 3: "leaf"})

	// No links discovered yet, so every port still looks host-facing
	// and the heuristic alone would call switch 1 a leaf.
	switches := map[ofproto.SwitchID][]ofproto.PortNo{
		1: {1, 2},
		2: {1, 2, 3},
		3: {1, 2, 3},
	}
	e.ObserveTopology(controller.BuildSnapshot(switches, nil))

	if got := promtest.ToFloat64(e.switchCount.WithLabelValues("spine")); got != 1 {
		t.Errorf("spines = %v, want 1", got)
	}
	if got := promtest.ToFloat64(e.switchCount.WithLabelValues("leaf")); got != 2 {
		t.Errorf("leaves = %v, want 2", got)
	}
}

func TestExporter_TopologyGaugesResetOnShrink(t *testing.T) {
	e, reg := newTestExporter(t)

	switches := map[ofproto.SwitchID][]ofproto.PortNo{
		1: {1, 2},
		2: {1, 2, 3},
	}
	links := []ofproto.Link{{Src: 2, SrcPort: 1, Dst: 1, DstPort: 1}}
	e.ObserveTopology(controller.BuildSnapshot(switches, links))
	e.ObserveTopology(controller.EmptySnapshot())

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() == "sdn_ports_total" && len(fam.GetMetric()) != 0 {
			t.Errorf("sdn_ports_total kept %d stale series after reset", len(fam.GetMetric()))
		}
	}
}

func TestExporter_StatsIngestAbsolute(t *testing.T) {
	e, _ := newTestExporter(t)

	e.IngestPortStats(2, []ofproto.PortStats{{PortNo: 1, RxBytes: 1000, TxBytes: 500}})
	// Second poll with a lower value (device counter reset) must be taken
	// as-is, not accumulated.
	e.IngestPortStats(2, []ofproto.PortStats{{PortNo: 1, RxBytes: 100, TxBytes: 50}})

	if got := promtest.ToFloat64(e.portRxBytes.WithLabelValues("2", "1")); got != 100 {
		t.Errorf("sdn_port_rx_bytes = %v, want 100", got)
	}

	e.IngestFlowStats(2, []ofproto.FlowStats{
		{TableID: 0, Priority: 0, PacketCount: 7},
		{TableID: 0, Priority: 15, PacketCount: 3},
	})
	if got := promtest.ToFloat64(e.flowEntries.WithLabelValues("2", "0")); got != 2 {
		t.Errorf("sdn_flow_entries_total = %v, want 2", got)
	}

	e.IngestGroupStats(2, []ofproto.GroupStats{{
		GroupID:     100,
		PacketCount: 10,
		ByteCount:   640,
		Buckets:     []ofproto.BucketStats{{PacketCount: 6}, {PacketCount: 4}},
	}})
	if got := promtest.ToFloat64(e.bucketPackets.WithLabelValues("2", "100", "1")); got != 4 {
		t.Errorf("sdn_ecmp_bucket_packets = %v, want 4", got)
	}
}

func TestExporter_ReuseOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewExporter(reg)
	if err != nil {
		t.Fatalf("first NewExporter: %v", err)
	}
	first.NotifyPacketIn(1, "table_miss")

	second, err := NewExporter(reg)
	if err != nil {
		t.Fatalf("second NewExporter: %v", err)
	}
	second.NotifyPacketIn(1, "table_miss")

	if got := promtest.ToFloat64(first.packetIn.WithLabelValues("1", "table_miss")); got != 2 {
		t.Errorf("shared counter = %v, want 2", got)
	}
}

func TestServer_Endpoints(t *testing.T) {
	e, _ := newTestExporter(t)
	e.NotifyRuleInstalled(2, 2*time.Millisecond)
	e.ObserveHosts(3, 2)

	srv := NewServer("127.0.0.1:0", e)
	ts := httptest.NewServer(srv.srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read /metrics body: %v", err)
	}
	text := string(body)
	for _, want := range []string{"sdn_flow_install_duration_seconds", "sdn_learned_hosts_total 3"} {
		if !strings.Contains(text, want) {
			t.Errorf("/metrics output missing %q", want)
		}
	}

	health, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d", health.StatusCode)
	}
}

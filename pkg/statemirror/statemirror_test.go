package statemirror

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/fabron-network/fabron/pkg/controller"
	"github.com/fabron-network/fabron/pkg/ofproto"
)

// fakeWriter records writes in memory.
type fakeWriter struct {
	mu      sync.Mutex
	entries map[string]map[string]string
	cleared []string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{entries: make(map[string]map[string]string)}
}

func (f *fakeWriter) setEntry(_ context.Context, table, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[table+"|"+key] = fields
	return nil
}

func (f *fakeWriter) clearTable(_ context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, table)
	for key := range f.entries {
		if len(key) > len(table) && key[:len(table)] == table {
			delete(f.entries, key)
		}
	}
	return nil
}

func (f *fakeWriter) entry(table, key string) (map[string]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, ok := f.entries[table+"|"+key]
	return fields, ok
}

func runMirror(t *testing.T, m *Mirror) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestPublishHost(t *testing.T) {
	w := newFakeWriter()
	m := newWithWriter(w, 8)
	runMirror(t, m)

	m.PublishHost("aa:aa:aa:aa:aa:01", controller.HostLocation{Switch: 2, Port: 3})

	waitFor(t, func() bool {
		fields, ok := w.entry(TableHosts, "aa:aa:aa:aa:aa:01")
		return ok && fields["dpid"] == "2" && fields["port"] == "3"
	})
}

func TestPublishARP(t *testing.T) {
	w := newFakeWriter()
	m := newWithWriter(w, 8)
	runMirror(t, m)

	mac, err := net.ParseMAC("bb:bb:bb:bb:bb:02")
	if err != nil {
		t.Fatal(err)
	}
	m.PublishARP(netip.MustParseAddr("10.0.0.2"), mac)

	waitFor(t, func() bool {
		fields, ok := w.entry(TableIPs, "10.0.0.2")
		return ok && fields["mac"] == "bb:bb:bb:bb:bb:02"
	})
}

func TestPublishTopology(t *testing.T) {
	w := newFakeWriter()
	m := newWithWriter(w, 8)
	runMirror(t, m)

	switches := map[ofproto.SwitchID][]ofproto.PortNo{
		1: {1, 2, ofproto.PortLocal},
		2: {1, 2, 3, ofproto.PortLocal},
		3: {1, 2, 3, ofproto.PortLocal},
	}
	links := []ofproto.Link{
		{Src: 2, SrcPort: 1, Dst: 1, DstPort: 1},
		{Src: 3, SrcPort: 1, Dst: 1, DstPort: 2},
	}
	m.PublishTopology(controller.BuildSnapshot(switches, links))

	waitFor(t, func() bool {
		spine, ok := w.entry(TableTopology, "1")
		if !ok {
			return false
		}
		leaf, ok := w.entry(TableTopology, "2")
		return ok && spine["role"] == "spine" && leaf["role"] == "leaf"
	})

	leaf, _ := w.entry(TableTopology, "2")
	if leaf["uplinks"] != "1" {
		t.Errorf("leaf uplinks = %q, want \"1\"", leaf["uplinks"])
	}
	if leaf["host_ports"] != "2,3" {
		t.Errorf("leaf host_ports = %q, want \"2,3\"", leaf["host_ports"])
	}
	if leaf["neighbors"] != "1:1" {
		t.Errorf("leaf neighbors = %q, want \"1:1\"", leaf["neighbors"])
	}
	spine, _ := w.entry(TableTopology, "1")
	if spine["neighbors"] != "2:1,3:2" {
		t.Errorf("spine neighbors = %q, want \"2:1,3:2\"", spine["neighbors"])
	}

	w.mu.Lock()
	cleared := len(w.cleared)
	w.mu.Unlock()
	if cleared != 1 {
		t.Errorf("topology table cleared %d times, want 1", cleared)
	}
}

func TestDropUnderPressure(t *testing.T) {
	w := newFakeWriter()
	m := newWithWriter(w, 1)
	// No Run goroutine: the queue fills immediately.

	m.PublishHost("aa:aa:aa:aa:aa:01", controller.HostLocation{Switch: 2, Port: 2})
	m.PublishHost("aa:aa:aa:aa:aa:02", controller.HostLocation{Switch: 2, Port: 3})
	m.PublishHost("aa:aa:aa:aa:aa:03", controller.HostLocation{Switch: 3, Port: 2})

	if got := m.Dropped(); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	m := newWithWriter(newFakeWriter(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

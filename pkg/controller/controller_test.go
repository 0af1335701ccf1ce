package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fabron-network/fabron/internal/testutil"
	"github.com/fabron-network/fabron/pkg/ofproto"
)

// chanSource feeds a test-controlled channel into Run.
type chanSource struct {
	ch chan ofproto.Event
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan ofproto.Event, 16)}
}

func (s *chanSource) Events() <-chan ofproto.Event { return s.ch }

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.ReconcileInterval != DefaultReconcileInterval {
		t.Errorf("reconcile = %s, want %s", cfg.ReconcileInterval, DefaultReconcileInterval)
	}
	if cfg.StatsInterval != DefaultStatsInterval {
		t.Errorf("stats = %s, want %s", cfg.StatsInterval, DefaultStatsInterval)
	}
	if cfg.FlowIdleTimeout != DefaultFlowIdleTimeout {
		t.Errorf("idle timeout = %d, want %d", cfg.FlowIdleTimeout, DefaultFlowIdleTimeout)
	}
	if cfg.FlowHardTimeout != 0 {
		t.Errorf("hard timeout = %d, want 0 (permanent)", cfg.FlowHardTimeout)
	}

	custom := Config{ReconcileInterval: time.Minute}
	custom.applyDefaults()
	if custom.ReconcileInterval != time.Minute {
		t.Errorf("explicit reconcile overridden to %s", custom.ReconcileInterval)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	source := newChanSource()
	c := New(Config{}, source, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	source.ch <- ofproto.SwitchConnected{ID: 1, Conn: testutil.NewFakeConn(), Ports: []ofproto.PortNo{1}}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_StopsWhenSourceCloses(t *testing.T) {
	source := newChanSource()
	c := New(Config{}, source, nil, nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	close(source.ch)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on source close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after source close")
	}
}

func TestRun_ProcessesEventsInOrder(t *testing.T) {
	source := newChanSource()
	c := New(Config{}, source, nil, nil)

	conn := testutil.NewFakeConn()
	source.ch <- ofproto.SwitchConnected{ID: 2, Conn: conn, Ports: []ofproto.PortNo{1, 2, ofproto.PortLocal}}
	source.ch <- ofproto.PacketIn{
		ID: 2, InPort: 2, Reason: ofproto.ReasonTableMiss,
		BufferID: ofproto.NoBuffer,
		Data:     testutil.IPv4Frame(t, macAA, macCC),
	}
	close(source.ch)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The packet-in after the connect proves ordering: the switch had to be
	// registered for the frame to be learned.
	if sw, ok := c.hosts.CoarseLocation(macAA); !ok || sw != 2 {
		t.Errorf("coarse location = %d,%v, want 2,true", sw, ok)
	}
}

func TestReconcile_RebuildsPeriodically(t *testing.T) {
	source := newChanSource()
	metrics := newRecorderMetrics()
	c := New(Config{ReconcileInterval: 10 * time.Millisecond, StatsInterval: time.Hour}, source, metrics, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = c.Run(ctx)

	metrics.mu.Lock()
	rebuilds := metrics.rebuilds
	metrics.mu.Unlock()
	if rebuilds == 0 {
		t.Error("no periodic topology rebuilds observed")
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fabron-network/fabron/pkg/util"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fabrond.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Metrics.Listen != DefaultMetricsListen {
		t.Errorf("metrics listen = %q, want %q", cfg.Metrics.Listen, DefaultMetricsListen)
	}
	if cfg.Mirror.QueueSize != DefaultQueueSize {
		t.Errorf("queue size = %d, want %d", cfg.Mirror.QueueSize, DefaultQueueSize)
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
metrics:
  listen: "127.0.0.1:9900"
controller:
  reconcile_interval: 2s
  stats_interval: 30s
  flow_idle_timeout: 120
mirror:
  addr: "localhost:6379"
  db: 4
  queue_size: 64
replay:
  script: "/var/lib/fabron/events.yaml"
roles:
  spines: [1]
  leaves: [2, 3]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9900" {
		t.Errorf("listen = %q", cfg.Metrics.Listen)
	}
	if cfg.Controller.ReconcileInterval != 2*time.Second {
		t.Errorf("reconcile = %s", cfg.Controller.ReconcileInterval)
	}
	if cfg.Controller.StatsInterval != 30*time.Second {
		t.Errorf("stats = %s", cfg.Controller.StatsInterval)
	}
	if cfg.Controller.FlowIdleTimeout != 120 {
		t.Errorf("idle timeout = %d", cfg.Controller.FlowIdleTimeout)
	}
	if cfg.Mirror.Addr != "localhost:6379" || cfg.Mirror.DB != 4 || cfg.Mirror.QueueSize != 64 {
		t.Errorf("mirror = %+v", cfg.Mirror)
	}
	if cfg.Replay.Script != "/var/lib/fabron/events.yaml" {
		t.Errorf("replay script = %q", cfg.Replay.Script)
	}
	hints := cfg.Roles.Hints()
	if hints[1] != "spine" || hints[2] != "leaf" || hints[3] != "leaf" {
		t.Errorf("role hints = %v", hints)
	}
}

func TestRoles_EmptyHintsAreNil(t *testing.T) {
	if hints := (RolesConfig{}).Hints(); hints != nil {
		t.Errorf("Hints() = %v, want nil", hints)
	}
}

func TestLoad_EmptyFileGetsDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Metrics.Listen != DefaultMetricsListen {
		t.Errorf("listen = %q, want default", cfg.Metrics.Listen)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("want error for missing explicit config path")
	}
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := writeConfig(t, "metrics: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Error("want parse error")
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative reconcile", Config{Controller: ControllerConfig{ReconcileInterval: -time.Second}}},
		{"negative stats", Config{Controller: ControllerConfig{StatsInterval: -time.Second}}},
		{"mirror db without addr", Config{Mirror: MirrorConfig{DB: 2}}},
		{"switch in both roles", Config{Roles: RolesConfig{Spines: []uint64{1}, Leaves: []uint64{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, util.ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

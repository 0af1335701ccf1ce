// Package config loads and validates the fabrond configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fabron-network/fabron/pkg/util"
)

// Config is the full fabrond configuration. Zero values select defaults,
// so an empty file is a valid configuration.
type Config struct {
	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Controller configures the control loop timing and rule timeouts.
	Controller ControllerConfig `yaml:"controller"`

	// Mirror configures the optional Redis state mirror. Disabled when the
	// address is empty.
	Mirror MirrorConfig `yaml:"mirror"`

	// Replay names the event script to drive the controller with.
	Replay ReplayConfig `yaml:"replay"`

	// Roles optionally pins switches to a role for metric labeling. Ports
	// are classified from links either way; hints only override the
	// role label while the topology is still converging.
	Roles RolesConfig `yaml:"roles"`
}

// RolesConfig lists datapath ids per role.
type RolesConfig struct {
	Spines []uint64 `yaml:"spines"`
	Leaves []uint64 `yaml:"leaves"`
}

// Hints flattens the role lists into a dpid lookup.
func (r RolesConfig) Hints() map[uint64]string {
	if len(r.Spines) == 0 && len(r.Leaves) == 0 {
		return nil
	}
	hints := make(map[uint64]string, len(r.Spines)+len(r.Leaves))
	for _, dpid := range r.Spines {
		hints[dpid] = "spine"
	}
	for _, dpid := range r.Leaves {
		hints[dpid] = "leaf"
	}
	return hints
}

// MetricsConfig configures the scrape endpoint.
type MetricsConfig struct {
	// Listen is the address of the /metrics and /health endpoints.
	Listen string `yaml:"listen"`
}

// ControllerConfig holds control loop tunables.
type ControllerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	StatsInterval     time.Duration `yaml:"stats_interval"`

	// FlowIdleTimeout and FlowHardTimeout apply to installed rules, in
	// seconds. A hard timeout of zero means the rule is permanent.
	FlowIdleTimeout uint16 `yaml:"flow_idle_timeout"`
	FlowHardTimeout uint16 `yaml:"flow_hard_timeout"`
}

// MirrorConfig configures the Redis state mirror.
type MirrorConfig struct {
	// Addr is the Redis host:port. Empty disables mirroring.
	Addr string `yaml:"addr"`

	// DB is the Redis database number.
	DB int `yaml:"db"`

	// QueueSize bounds the publish queue; excess publications are dropped.
	QueueSize int `yaml:"queue_size"`
}

// ReplayConfig names the scripted event source.
type ReplayConfig struct {
	// Script is the path of a YAML event script.
	Script string `yaml:"script"`
}

// Defaults.
const (
	DefaultMetricsListen = ":9102"
	DefaultQueueSize     = 256
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.Mirror.QueueSize <= 0 {
		c.Mirror.QueueSize = DefaultQueueSize
	}
}

// Load reads a configuration file. An empty path returns defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Controller.ReconcileInterval < 0 {
		return fmt.Errorf("%w: reconcile_interval must not be negative", util.ErrInvalidConfig)
	}
	if c.Controller.StatsInterval < 0 {
		return fmt.Errorf("%w: stats_interval must not be negative", util.ErrInvalidConfig)
	}
	if c.Mirror.Addr == "" && c.Mirror.DB != 0 {
		return fmt.Errorf("%w: mirror.db set without mirror.addr", util.ErrInvalidConfig)
	}
	spines := make(map[uint64]bool, len(c.Roles.Spines))
	for _, dpid := range c.Roles.Spines {
		spines[dpid] = true
	}
	for _, dpid := range c.Roles.Leaves {
		if spines[dpid] {
			return fmt.Errorf("%w: switch %d listed as both spine and leaf", util.ErrInvalidConfig, dpid)
		}
	}
	return nil
}

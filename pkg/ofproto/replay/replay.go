// Package replay drives a controller from a YAML event script instead of a
// live switch connection. It parses scripted protocol events, emits them on
// an EventSource channel with optional pacing, and services switch commands
// with a logging connection. Useful for demos and for exercising the control
// plane without a dataplane.
package replay

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fabron-network/fabron/pkg/ofproto"
	"github.com/fabron-network/fabron/pkg/util"
)

// Script is a parsed event script.
type Script struct {
	Name   string `yaml:"name"`
	Events []Step `yaml:"events"`
}

// Step is a single scripted event. Fields are event-specific; Validate
// checks that the relevant ones are set for each type.
type Step struct {
	Type string `yaml:"type"`

	// switch-connected, switch-disconnected, port-status, packet-in,
	// stats-reply
	DPID uint64 `yaml:"dpid,omitempty"`

	// switch-connected
	Ports []uint32 `yaml:"ports,omitempty"`

	// port-status
	Port uint32 `yaml:"port,omitempty"`
	Up   bool   `yaml:"up,omitempty"`

	// link-added, link-removed
	Src     uint64 `yaml:"src,omitempty"`
	SrcPort uint32 `yaml:"src_port,omitempty"`
	Dst     uint64 `yaml:"dst,omitempty"`
	DstPort uint32 `yaml:"dst_port,omitempty"`

	// packet-in
	InPort uint32 `yaml:"in_port,omitempty"`
	Reason string `yaml:"reason,omitempty"`
	Data   string `yaml:"data,omitempty"` // hex-encoded frame

	// wait
	Duration time.Duration `yaml:"duration,omitempty"`
}

// Step types.
const (
	StepSwitchConnected    = "switch-connected"
	StepSwitchDisconnected = "switch-disconnected"
	StepPortStatus         = "port-status"
	StepLinkAdded          = "link-added"
	StepLinkRemoved        = "link-removed"
	StepPacketIn           = "packet-in"
	StepWait               = "wait"
)

// LoadScript parses and validates a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", path, err)
	}
	s := &Script{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing script %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating script %s: %w", path, err)
	}
	return s, nil
}

// Validate checks each step for the fields its type requires.
func (s *Script) Validate() error {
	for i, step := range s.Events {
		if err := step.validate(); err != nil {
			return fmt.Errorf("event %d (%s): %w", i, step.Type, err)
		}
	}
	return nil
}

func (st *Step) validate() error {
	switch st.Type {
	case StepSwitchConnected:
		if st.DPID == 0 {
			return fmt.Errorf("dpid required")
		}
		if len(st.Ports) == 0 {
			return fmt.Errorf("ports required")
		}
	case StepSwitchDisconnected:
		if st.DPID == 0 {
			return fmt.Errorf("dpid required")
		}
	case StepPortStatus:
		if st.DPID == 0 || st.Port == 0 {
			return fmt.Errorf("dpid and port required")
		}
	case StepLinkAdded, StepLinkRemoved:
		if st.Src == 0 || st.Dst == 0 {
			return fmt.Errorf("src and dst required")
		}
	case StepPacketIn:
		if st.DPID == 0 || st.InPort == 0 {
			return fmt.Errorf("dpid and in_port required")
		}
		if _, err := hex.DecodeString(st.Data); err != nil {
			return fmt.Errorf("data is not valid hex: %w", err)
		}
	case StepWait:
		if st.Duration <= 0 {
			return fmt.Errorf("duration required")
		}
	default:
		return fmt.Errorf("unknown event type %q", st.Type)
	}
	return nil
}

// Source feeds scripted events to a controller. It implements
// ofproto.EventSource.
type Source struct {
	script *Script
	events chan ofproto.Event
	conns  map[uint64]*SwitchConn
}

// NewSource creates a source for the given script.
func NewSource(script *Script) *Source {
	return &Source{
		script: script,
		events: make(chan ofproto.Event),
		conns:  make(map[uint64]*SwitchConn),
	}
}

// Events implements ofproto.EventSource.
func (s *Source) Events() <-chan ofproto.Event {
	return s.events
}

// Conn returns the scripted connection for a switch, or nil if the script
// has not connected it yet. Useful for asserting on installed state after a
// replay.
func (s *Source) Conn(dpid uint64) *SwitchConn {
	return s.conns[dpid]
}

// Run emits the script's events in order, honoring wait steps, then closes
// the event channel. Run returns early if the context is cancelled.
func (s *Source) Run(ctx context.Context) error {
	defer close(s.events)

	for i, step := range s.script.Events {
		if step.Type == StepWait {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(step.Duration):
			}
			continue
		}

		ev, err := s.toEvent(step)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s.events <- ev:
		}
	}

	util.WithOperation("replay").Infof("script complete: %d events", len(s.script.Events))
	return nil
}

func (s *Source) toEvent(step Step) (ofproto.Event, error) {
	switch step.Type {
	case StepSwitchConnected:
		ports := make([]ofproto.PortNo, len(step.Ports))
		for i, p := range step.Ports {
			ports[i] = ofproto.PortNo(p)
		}
		conn := &SwitchConn{id: ofproto.SwitchID(step.DPID)}
		s.conns[step.DPID] = conn
		return ofproto.SwitchConnected{ID: ofproto.SwitchID(step.DPID), Conn: conn, Ports: ports}, nil

	case StepSwitchDisconnected:
		delete(s.conns, step.DPID)
		return ofproto.SwitchDisconnected{ID: ofproto.SwitchID(step.DPID)}, nil

	case StepPortStatus:
		return ofproto.PortStatus{
			ID:   ofproto.SwitchID(step.DPID),
			Port: ofproto.PortNo(step.Port),
			Up:   step.Up,
		}, nil

	case StepLinkAdded:
		return ofproto.LinkAdded{Link: stepLink(step)}, nil

	case StepLinkRemoved:
		return ofproto.LinkRemoved{Link: stepLink(step)}, nil

	case StepPacketIn:
		data, err := hex.DecodeString(step.Data)
		if err != nil {
			return nil, fmt.Errorf("decoding frame: %w", err)
		}
		reason := ofproto.ReasonTableMiss
		if step.Reason == "action" {
			reason = ofproto.ReasonAction
		}
		return ofproto.PacketIn{
			ID:       ofproto.SwitchID(step.DPID),
			InPort:   ofproto.PortNo(step.InPort),
			Reason:   reason,
			BufferID: ofproto.NoBuffer,
			Data:     data,
		}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", step.Type)
}

func stepLink(step Step) ofproto.Link {
	return ofproto.Link{
		Src:     ofproto.SwitchID(step.Src),
		SrcPort: ofproto.PortNo(step.SrcPort),
		Dst:     ofproto.SwitchID(step.Dst),
		DstPort: ofproto.PortNo(step.DstPort),
	}
}

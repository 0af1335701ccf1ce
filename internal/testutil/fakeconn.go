// Package testutil provides test doubles and frame builders shared by the
// package tests: a recording switch connection and Ethernet/ARP frame
// constructors.
package testutil

import (
	"context"
	"sync"

	"github.com/fabron-network/fabron/pkg/ofproto"
)

// FakeConn records every command sent to a switch. Safe for concurrent use
// so tests can inspect it while a controller runs.
type FakeConn struct {
	mu sync.Mutex

	// FailAll makes every command return ErrSendFailed.
	FailAll bool

	Rules      []ofproto.Rule
	Deletes    []ofproto.Match
	PacketOuts []ofproto.PacketOut
	GroupMods  []ofproto.GroupMod
	StatsReqs  []ofproto.StatsKind
}

// ErrSendFailed is returned by a failing FakeConn.
var ErrSendFailed = errSendFailed{}

type errSendFailed struct{}

func (errSendFailed) Error() string { return "send failed" }

// NewFakeConn creates an empty recording connection.
func NewFakeConn() *FakeConn {
	return &FakeConn{}
}

func (f *FakeConn) InstallRule(_ context.Context, rule ofproto.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAll {
		return ErrSendFailed
	}
	f.Rules = append(f.Rules, rule)
	return nil
}

func (f *FakeConn) DeleteRule(_ context.Context, match ofproto.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAll {
		return ErrSendFailed
	}
	f.Deletes = append(f.Deletes, match)
	return nil
}

func (f *FakeConn) SendPacket(_ context.Context, out ofproto.PacketOut) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAll {
		return ErrSendFailed
	}
	f.PacketOuts = append(f.PacketOuts, out)
	return nil
}

func (f *FakeConn) ModifyGroup(_ context.Context, mod ofproto.GroupMod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAll {
		return ErrSendFailed
	}
	f.GroupMods = append(f.GroupMods, mod)
	return nil
}

func (f *FakeConn) RequestStats(_ context.Context, kind ofproto.StatsKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAll {
		return ErrSendFailed
	}
	f.StatsReqs = append(f.StatsReqs, kind)
	return nil
}

// LastRule returns the most recently installed rule, or false if none.
func (f *FakeConn) LastRule() (ofproto.Rule, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Rules) == 0 {
		return ofproto.Rule{}, false
	}
	return f.Rules[len(f.Rules)-1], true
}

// LastGroupMod returns the most recent group modification, or false if none.
func (f *FakeConn) LastGroupMod() (ofproto.GroupMod, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.GroupMods) == 0 {
		return ofproto.GroupMod{}, false
	}
	return f.GroupMods[len(f.GroupMods)-1], true
}

// Snapshot returns copies of all recorded commands.
func (f *FakeConn) Snapshot() (rules []ofproto.Rule, outs []ofproto.PacketOut, mods []ofproto.GroupMod) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rules = append(rules, f.Rules...)
	outs = append(outs, f.PacketOuts...)
	mods = append(mods, f.GroupMods...)
	return rules, outs, mods
}

// Reset clears all recorded commands.
func (f *FakeConn) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Rules = nil
	f.Deletes = nil
	f.PacketOuts = nil
	f.GroupMods = nil
	f.StatsReqs = nil
}

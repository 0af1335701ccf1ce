// Package statemirror publishes learned fabric state into Redis hashes so
// operators can inspect topology and host tables without attaching to the
// controller. Publications are best effort: the forwarding path never blocks
// on Redis, and updates are dropped under pressure.
//
// Table layout follows the key|field convention of switch state databases:
//
//	FABRIC_TOPOLOGY|<dpid>    role, uplinks, host_ports, neighbors
//	FABRIC_HOST_TABLE|<mac>   dpid, port
//	FABRIC_IP_TABLE|<ip>      mac
package statemirror

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fabron-network/fabron/pkg/controller"
	"github.com/fabron-network/fabron/pkg/ofproto"
	"github.com/fabron-network/fabron/pkg/util"
)

// Table names.
const (
	TableTopology = "FABRIC_TOPOLOGY"
	TableHosts    = "FABRIC_HOST_TABLE"
	TableIPs      = "FABRIC_IP_TABLE"
)

const writeTimeout = 2 * time.Second

// writer is the Redis surface the mirror needs; narrowed for testing.
type writer interface {
	setEntry(ctx context.Context, table, key string, fields map[string]string) error
	clearTable(ctx context.Context, table string) error
}

// Mirror implements controller.Mirror on a bounded queue in front of Redis.
type Mirror struct {
	w       writer
	queue   chan update
	dropped atomic.Uint64
}

type update func(ctx context.Context, w writer) error

// New connects a mirror to the Redis instance at addr. The queue holds at
// most queueSize pending updates.
func New(addr string, db, queueSize int) *Mirror {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return newWithWriter(&redisWriter{client: client}, queueSize)
}

func newWithWriter(w writer, queueSize int) *Mirror {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Mirror{w: w, queue: make(chan update, queueSize)}
}

// Run drains the publish queue until the context is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-m.queue:
			opCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			if err := fn(opCtx, m.w); err != nil {
				util.WithOperation("statemirror").Debugf("publish failed: %v", err)
			}
			cancel()
		}
	}
}

// Dropped reports how many updates were discarded because the queue was
// full.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Mirror) enqueue(fn update) {
	select {
	case m.queue <- fn:
	default:
		if n := m.dropped.Add(1); n == 1 || n%100 == 0 {
			util.WithOperation("statemirror").Warnf("publish queue full, %d updates dropped", n)
		}
	}
}

// PublishTopology replaces the topology table with the snapshot's contents.
func (m *Mirror) PublishTopology(snap *controller.Snapshot) {
	entries := topologyEntries(snap)
	m.enqueue(func(ctx context.Context, w writer) error {
		if err := w.clearTable(ctx, TableTopology); err != nil {
			return err
		}
		for key, fields := range entries {
			if err := w.setEntry(ctx, TableTopology, key, fields); err != nil {
				return err
			}
		}
		return nil
	})
}

// PublishHost records a host's attachment point.
func (m *Mirror) PublishHost(mac string, loc controller.HostLocation) {
	fields := map[string]string{
		"dpid": strconv.FormatUint(uint64(loc.Switch), 10),
		"port": strconv.FormatUint(uint64(loc.Port), 10),
	}
	m.enqueue(func(ctx context.Context, w writer) error {
		return w.setEntry(ctx, TableHosts, mac, fields)
	})
}

// PublishARP records an IP to MAC binding.
func (m *Mirror) PublishARP(ip netip.Addr, mac net.HardwareAddr) {
	key := ip.String()
	fields := map[string]string{"mac": mac.String()}
	m.enqueue(func(ctx context.Context, w writer) error {
		return w.setEntry(ctx, TableIPs, key, fields)
	})
}

// topologyEntries flattens a snapshot into per-switch hash fields. Values
// are comma-joined in ascending order so repeated publishes of the same
// topology produce identical entries.
func topologyEntries(snap *controller.Snapshot) map[string]map[string]string {
	entries := make(map[string]map[string]string)

	seen := map[ofproto.SwitchID]struct{}{}
	for sw := range snap.Uplinks {
		seen[sw] = struct{}{}
	}
	for sw := range snap.HostPorts {
		seen[sw] = struct{}{}
	}
	for sw := range snap.Neighbors {
		seen[sw] = struct{}{}
	}

	for sw := range seen {
		role := "spine"
		if snap.HasHostPorts(sw) {
			role = "leaf"
		}

		var neighbors []string
		for peer, port := range snap.Neighbors[sw] {
			neighbors = append(neighbors, fmt.Sprintf("%d:%d", peer, port))
		}
		sort.Strings(neighbors)

		entries[strconv.FormatUint(uint64(sw), 10)] = map[string]string{
			"role":       role,
			"uplinks":    joinPorts(snap.SortedUplinks(sw)),
			"host_ports": joinPorts(snap.SortedHostPorts(sw)),
			"neighbors":  strings.Join(neighbors, ","),
		}
	}
	return entries
}

func joinPorts(ports []ofproto.PortNo) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.FormatUint(uint64(p), 10)
	}
	return strings.Join(parts, ",")
}

// redisWriter talks to a real Redis instance.
type redisWriter struct {
	client *redis.Client
}

func (r *redisWriter) setEntry(ctx context.Context, table, key string, fields map[string]string) error {
	redisKey := fmt.Sprintf("%s|%s", table, key)
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := r.client.HSet(ctx, redisKey, args...).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", redisKey, err)
	}
	return nil
}

func (r *redisWriter) clearTable(ctx context.Context, table string) error {
	pattern := table + "|*"
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scanning %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping verifies the Redis connection.
func (m *Mirror) Ping(ctx context.Context) error {
	r, ok := m.w.(*redisWriter)
	if !ok {
		return nil
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", util.ErrMirrorUnavailable, err)
	}
	return nil
}

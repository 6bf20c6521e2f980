package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hivegrid/hub/internal/fault"
)

// broadcastConcurrency caps parallel transport writes during a broadcast.
const broadcastConcurrency = 16

// Registry tracks every live connection and its node/group bindings.
// All methods are safe for concurrent use.
type Registry struct {
	logger zerolog.Logger

	mu        sync.RWMutex
	conns     map[string]*Conn
	nodeIndex map[string]string              // node id -> connection id
	groups    map[string]map[string]struct{} // group -> connection ids

	now func() time.Time
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		conns:     make(map[string]*Conn),
		nodeIndex: make(map[string]string),
		groups:    make(map[string]map[string]struct{}),
		now:       time.Now,
	}
}

// Accept wraps transport in a connection record, assigns a fresh identifier
// and returns it. Accept never blocks on the transport.
func (r *Registry) Accept(transport Transport) string {
	conn := &Conn{
		id:        uuid.New().String(),
		transport: transport,
		createdAt: r.now(),
	}

	r.mu.Lock()
	r.conns[conn.id] = conn
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Info().
		Str("connection_id", conn.id).
		Int("total_connections", total).
		Msg("connection accepted")

	return conn.id
}

// Bind associates a connection with a node identity and/or group label.
// At most one connection is bound to a given node id: binding a second
// connection supersedes the first, which stays open but is no longer
// addressable by node id (last-bind-wins).
func (r *Registry) Bind(connID, nodeID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return fault.NotFound("connection %s", connID)
	}

	if nodeID != "" {
		if prevConnID, bound := r.nodeIndex[nodeID]; bound && prevConnID != connID {
			if prev, live := r.conns[prevConnID]; live {
				prev.nodeID = ""
			}
			r.logger.Info().
				Str("node_id", nodeID).
				Str("superseded_connection_id", prevConnID).
				Str("connection_id", connID).
				Msg("node binding superseded")
		}
		r.nodeIndex[nodeID] = connID
		conn.nodeID = nodeID
	}

	if group != "" && group != conn.group {
		if conn.group != "" {
			r.removeFromGroupLocked(conn.group, connID)
		}
		if r.groups[group] == nil {
			r.groups[group] = make(map[string]struct{})
		}
		r.groups[group][connID] = struct{}{}
		conn.group = group
	}

	return nil
}

// removeFromGroupLocked drops connID from a group index. Caller holds r.mu.
func (r *Registry) removeFromGroupLocked(group, connID string) {
	members, ok := r.groups[group]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// Touch records a liveness signal (ping or heartbeat) for a connection.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	if conn, ok := r.conns[connID]; ok {
		conn.lastSignal = r.now()
	}
	r.mu.Unlock()
}

// SendTo delivers one message to a specific connection, best effort.
// On transport failure the connection is torn down and the error returned;
// delivery is not retried.
func (r *Registry) SendTo(ctx context.Context, connID string, payload []byte) error {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return fault.NotFound("connection %s", connID)
	}

	if err := conn.send(ctx, payload); err != nil {
		r.logger.Warn().
			Str("connection_id", connID).
			Err(err).
			Msg("send failed, tearing connection down")
		r.Disconnect(connID)
		return fault.Wrap(fault.KindUnavailable, err, "delivery to connection %s failed", connID)
	}
	return nil
}

// SendToNode resolves a node id to its bound connection and delivers.
// A node with no live binding yields an Unavailable error; that is a
// routine condition, not a hub fault.
func (r *Registry) SendToNode(ctx context.Context, nodeID string, payload []byte) error {
	r.mu.RLock()
	connID, ok := r.nodeIndex[nodeID]
	r.mu.RUnlock()
	if !ok {
		return fault.Unavailable("node %s not connected", nodeID)
	}
	return r.SendTo(ctx, connID, payload)
}

// BroadcastToGroup delivers to every connection bound to group, best
// effort. One failed delivery does not halt the others. Returns the count
// of successful deliveries.
func (r *Registry) BroadcastToGroup(ctx context.Context, group string, payload []byte) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.groups[group]))
	for connID := range r.groups[group] {
		ids = append(ids, connID)
	}
	r.mu.RUnlock()

	return r.fanOut(ctx, ids, payload)
}

// BroadcastToAll delivers to every live connection except those listed in
// exclude. Returns the count of successful deliveries.
func (r *Registry) BroadcastToAll(ctx context.Context, payload []byte, exclude []string) int {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for connID := range r.conns {
		if _, excluded := skip[connID]; !excluded {
			ids = append(ids, connID)
		}
	}
	r.mu.RUnlock()

	return r.fanOut(ctx, ids, payload)
}

// fanOut sends payload to each connection concurrently with a bounded
// worker count, counting successes.
func (r *Registry) fanOut(ctx context.Context, connIDs []string, payload []byte) int {
	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(broadcastConcurrency)

	for _, connID := range connIDs {
		id := connID
		g.Go(func() error {
			if err := r.SendTo(gctx, id, payload); err == nil {
				sent.Add(1)
			}
			// Delivery failures are already handled by SendTo; never
			// cancel the group over a single slow or dead client.
			return nil
		})
	}
	g.Wait()

	return int(sent.Load())
}

// Disconnect tears a connection down: all index entries are removed
// atomically with respect to concurrent sends, then the transport is
// closed. Disconnect is idempotent.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	if conn.nodeID != "" && r.nodeIndex[conn.nodeID] == connID {
		delete(r.nodeIndex, conn.nodeID)
	}
	if conn.group != "" {
		r.removeFromGroupLocked(conn.group, connID)
	}
	r.mu.Unlock()

	// Close outside the lock; the transport may block briefly.
	if err := conn.transport.Close(); err != nil {
		r.logger.Debug().
			Str("connection_id", connID).
			Err(err).
			Msg("transport close on disconnect")
	}

	r.logger.Info().
		Str("connection_id", connID).
		Str("node_id", conn.nodeID).
		Msg("connection closed")
}

// NodeConnID returns the connection id currently bound to a node id.
func (r *Registry) NodeConnID(nodeID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.nodeIndex[nodeID]
	return connID, ok
}

// Get returns a snapshot of one connection's registry state.
func (r *Registry) Get(connID string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	if !ok {
		return Info{}, false
	}
	return r.infoLocked(conn), true
}

// List returns snapshots of every live connection.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.conns))
	for _, conn := range r.conns {
		infos = append(infos, r.infoLocked(conn))
	}
	return infos
}

func (r *Registry) infoLocked(conn *Conn) Info {
	return Info{
		ID:         conn.id,
		NodeID:     conn.nodeID,
		Group:      conn.group,
		CreatedAt:  conn.createdAt,
		LastSignal: conn.lastSignal,
	}
}

// Stats summarises the registry for the operator status surface.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	NodeBound        int            `json:"node_connections"`
	Groups           map[string]int `json:"connection_groups"`
}

// Stats returns current connection counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := make(map[string]int, len(r.groups))
	for name, members := range r.groups {
		groups[name] = len(members)
	}
	return Stats{
		TotalConnections: len(r.conns),
		NodeBound:        len(r.nodeIndex),
		Groups:           groups,
	}
}

package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hivegrid/hub/internal/fault"
	"github.com/hivegrid/hub/pkg/store"
)

// Registry manages node records. The Store is the source of truth; the
// in-memory map is a cache rebuilt via Load on startup. Mutations write the
// Store first and update the cache only after the write succeeds, so the
// cache never runs ahead of persisted state.
type Registry struct {
	store  store.Store
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*Info

	now func() time.Time
}

// NewRegistry creates a node registry over the given store.
func NewRegistry(st store.Store, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  st,
		logger: logger,
		cache:  make(map[string]*Info),
		now:    time.Now,
	}
}

// Load rebuilds the cache from the Store. Called once at startup; records
// that fail to decode are skipped with a warning rather than aborting
// recovery.
func (r *Registry) Load(ctx context.Context) error {
	ids, err := r.store.MembersOf(ctx, store.NodesSetKey)
	if err != nil {
		return fmt.Errorf("failed to enumerate nodes: %w", err)
	}

	loaded := make(map[string]*Info, len(ids))
	for _, id := range ids {
		raw, err := r.store.Get(ctx, store.NodeKey(id))
		if err != nil {
			if fault.IsNotFound(err) {
				continue // index entry outlived the record
			}
			return fmt.Errorf("failed to load node %s: %w", id, err)
		}
		var info Info
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			r.logger.Warn().Str("node_id", id).Err(err).Msg("skipping undecodable node record")
			continue
		}
		loaded[id] = &info
	}

	r.mu.Lock()
	r.cache = loaded
	r.mu.Unlock()

	r.logger.Info().Int("nodes", len(loaded)).Msg("node registry loaded")
	return nil
}

// Register creates or updates a node record. Registration is idempotent
// keyed on the caller-supplied identifier; a fresh identifier is generated
// when none is supplied. Re-registering an existing identifier updates its
// fields and resets its timestamps, but claiming an existing identifier
// with a different name is a conflict.
func (r *Registry) Register(ctx context.Context, reg Registration) (Info, error) {
	if err := reg.Validate(); err != nil {
		return Info{}, fault.Wrap(fault.KindInvalidState, err, "invalid registration")
	}

	id := reg.NodeID
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.RLock()
	existing, known := r.cache[id]
	r.mu.RUnlock()

	if known && existing.Name != reg.Name {
		return Info{}, fault.Conflict("node id %s is registered as %q, not %q", id, existing.Name, reg.Name)
	}

	interval := reg.HeartbeatInterval
	if interval == 0 {
		interval = defaultHeartbeatInterval
	}
	capabilities := reg.Capabilities
	if capabilities == nil {
		capabilities = []string{}
	}

	info := &Info{
		ID:                id,
		Name:              reg.Name,
		Type:              reg.Type,
		Capabilities:      capabilities,
		Status:            StatusHealthy,
		HeartbeatInterval: interval,
		Metadata:          reg.Metadata,
		RegisteredAt:      r.now(),
	}
	if known {
		// Re-registration keeps the original registration time so the
		// assignment tie-break stays stable across reconnects.
		info.RegisteredAt = existing.RegisteredAt
		info.LastHeartbeat = r.now()
	}

	if err := r.persist(ctx, info); err != nil {
		return Info{}, err
	}

	r.mu.Lock()
	r.cache[id] = info
	r.mu.Unlock()

	r.logger.Info().
		Str("node_id", id).
		Str("name", info.Name).
		Str("node_type", info.Type).
		Bool("updated", known).
		Msg("node registered")

	return r.snapshot(info), nil
}

// Heartbeat records a liveness report. Returns NotFound if the node was
// never registered or has been purged.
func (r *Registry) Heartbeat(ctx context.Context, nodeID string, hb Heartbeat) error {
	if err := hb.Status.Validate(); err != nil {
		return fault.Wrap(fault.KindInvalidState, err, "invalid heartbeat")
	}

	r.mu.RLock()
	existing, ok := r.cache[nodeID]
	r.mu.RUnlock()
	if !ok {
		return fault.NotFound("node %s", nodeID)
	}

	// Work on a copy so concurrent readers always observe a consistent
	// record; the cache pointer is swapped only after the Store write.
	updated := *existing
	updated.Status = hb.Status
	updated.LastHeartbeat = r.now()
	updated.CPUUsage = hb.CPUUsage
	updated.MemoryUsage = hb.MemoryUsage
	updated.ActiveTasks = hb.ActiveTasks
	updated.ErrorCount = hb.ErrorCount

	if err := r.persist(ctx, &updated); err != nil {
		return err
	}

	r.mu.Lock()
	r.cache[nodeID] = &updated
	r.mu.Unlock()

	r.logger.Debug().
		Str("node_id", nodeID).
		Str("status", string(hb.Status)).
		Msg("heartbeat recorded")
	return nil
}

// Get returns a snapshot of one node. The Stale field is derived from the
// registry clock at read time; the stored status is never altered by it.
func (r *Registry) Get(ctx context.Context, nodeID string) (Info, error) {
	r.mu.RLock()
	info, ok := r.cache[nodeID]
	r.mu.RUnlock()
	if ok {
		return r.snapshot(info), nil
	}

	// Cache miss; the record may exist from a prior process life.
	raw, err := r.store.Get(ctx, store.NodeKey(nodeID))
	if err != nil {
		if fault.IsNotFound(err) {
			return Info{}, fault.NotFound("node %s", nodeID)
		}
		return Info{}, err
	}
	var loaded Info
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		return Info{}, fault.Internal(err, "undecodable node record %s", nodeID)
	}

	r.mu.Lock()
	r.cache[nodeID] = &loaded
	r.mu.Unlock()

	return r.snapshot(&loaded), nil
}

// List returns snapshots of registered nodes matching the filter.
func (r *Registry) List(ctx context.Context, filter Filter) ([]Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.cache))
	for _, info := range r.cache {
		if filter.Type != "" && info.Type != filter.Type {
			continue
		}
		snap := r.snapshot(info)
		if filter.HealthyOnly && (snap.Status != StatusHealthy || snap.Stale) {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Unregister removes a node record. It does not disconnect the node's live
// connection; callers wanting full teardown must also ask the connection
// registry.
func (r *Registry) Unregister(ctx context.Context, nodeID string) error {
	r.mu.RLock()
	_, ok := r.cache[nodeID]
	r.mu.RUnlock()
	if !ok {
		return fault.NotFound("node %s", nodeID)
	}

	if err := r.store.Delete(ctx, store.NodeKey(nodeID)); err != nil {
		return err
	}
	if err := r.store.RemoveFromSet(ctx, store.NodesSetKey, nodeID); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.cache, nodeID)
	r.mu.Unlock()

	r.logger.Info().Str("node_id", nodeID).Msg("node unregistered")
	return nil
}

// Count returns (registered, currently healthy and fresh) node counts for
// the status surface.
func (r *Registry) Count() (total, healthy int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	for _, info := range r.cache {
		total++
		if info.Status == StatusHealthy && !info.IsStale(now) {
			healthy++
		}
	}
	return total, healthy
}

// persist writes the record and its index entry to the Store.
func (r *Registry) persist(ctx context.Context, info *Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fault.Internal(err, "failed to encode node %s", info.ID)
	}
	if err := r.store.Set(ctx, store.NodeKey(info.ID), string(raw), 0); err != nil {
		return err
	}
	return r.store.AddToSet(ctx, store.NodesSetKey, info.ID)
}

// snapshot copies a record and stamps the derived staleness.
func (r *Registry) snapshot(info *Info) Info {
	snap := *info
	snap.Capabilities = append([]string(nil), info.Capabilities...)
	snap.Stale = info.IsStale(r.now())
	return snap
}

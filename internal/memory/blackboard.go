package memory

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hivegrid/hub/internal/fault"
	"github.com/hivegrid/hub/internal/node"
	"github.com/hivegrid/hub/pkg/store"
)

// Blackboard is the scope-gated shared memory surface. Unlike the node and
// mission registries it keeps no in-memory cache: entries carry TTLs and can
// be written by any node at any rate, so every read goes to the store and
// the set indexes are pruned lazily as expired members surface.
type Blackboard struct {
	store  store.Store
	nodes  *node.Registry
	logger zerolog.Logger

	now func() time.Time
}

// NewBlackboard builds a Blackboard. The node registry supplies the
// supervisor-role lookup for scope checks.
func NewBlackboard(st store.Store, nodes *node.Registry, logger zerolog.Logger) *Blackboard {
	return &Blackboard{store: st, nodes: nodes, logger: logger, now: time.Now}
}

// Put stores an entry and indexes it for query. An identifier is generated
// when absent; a supplied identifier overwrites the prior entry in place.
func (b *Blackboard) Put(ctx context.Context, e Entry) (Entry, error) {
	if err := e.Validate(); err != nil {
		return Entry{}, fault.New(fault.KindInvalidState, "%v", err)
	}

	now := b.now()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now) {
		return Entry{}, fault.New(fault.KindInvalidState, "entry expiry must be in the future")
	}

	if err := b.persist(ctx, &e); err != nil {
		return Entry{}, err
	}

	// Index sets are not TTL'd; Query prunes members whose entry has
	// physically expired.
	indexes := b.indexKeys(&e)
	for _, setKey := range indexes {
		if err := b.store.AddToSet(ctx, setKey, e.ID); err != nil {
			return Entry{}, fault.Wrap(fault.KindStoreFailure, err, "indexing entry %s", e.ID)
		}
	}

	b.logger.Debug().
		Str("entry_id", e.ID).
		Str("scope", string(e.Scope)).
		Str("source", e.SourceNodeID).
		Msg("blackboard entry stored")
	return e, nil
}

// Get fetches an entry, enforcing scope access for the requester. A
// successful read increments the access counter.
func (b *Blackboard) Get(ctx context.Context, entryID, requesterNodeID string) (Entry, error) {
	e, err := b.fetch(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if err := b.checkAccess(ctx, e, requesterNodeID); err != nil {
		return Entry{}, err
	}

	e.AccessCount++
	e.LastAccessed = b.now()
	if err := b.persist(ctx, e); err != nil {
		// The read itself succeeded; counter loss is tolerable.
		b.logger.Warn().Str("entry_id", entryID).Err(err).Msg("failed to persist access counter")
	}
	return *e, nil
}

// Query returns entries matching every populated filter, visible to the
// requester and not expired. Filters intersect per-field candidate sets
// before any record is fetched; with no filters the full entry keyspace is
// scanned. Results are newest first.
func (b *Blackboard) Query(ctx context.Context, q Query, requesterNodeID string) ([]Entry, error) {
	ids, err := b.candidates(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e, err := b.fetch(ctx, id)
		if err != nil {
			if fault.IsNotFound(err) {
				// Physically expired; its index memberships decay
				// as their sets are rewritten.
				continue
			}
			return nil, err
		}
		if err := b.checkAccess(ctx, e, requesterNodeID); err != nil {
			if fault.IsKind(err, fault.KindAccessDenied) {
				continue
			}
			return nil, err
		}
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Delete removes an entry. Only the source node or a supervisor may delete.
func (b *Blackboard) Delete(ctx context.Context, entryID, requesterNodeID string) error {
	e, err := b.fetch(ctx, entryID)
	if err != nil {
		return err
	}
	if e.SourceNodeID != requesterNodeID && !b.isSupervisor(ctx, requesterNodeID) {
		return fault.AccessDenied("node %s may not delete entry %s", requesterNodeID, entryID)
	}

	if err := b.store.Delete(ctx, store.MemoryKey(entryID)); err != nil {
		return fault.Wrap(fault.KindStoreFailure, err, "deleting entry %s", entryID)
	}
	for _, setKey := range b.indexKeys(e) {
		if err := b.store.RemoveFromSet(ctx, setKey, entryID); err != nil {
			b.logger.Warn().Str("entry_id", entryID).Err(err).Msg("failed to unindex entry")
		}
	}
	b.logger.Debug().Str("entry_id", entryID).Str("requester", requesterNodeID).Msg("blackboard entry deleted")
	return nil
}

// fetch loads and decodes an entry, applying logical expiry.
func (b *Blackboard) fetch(ctx context.Context, entryID string) (*Entry, error) {
	raw, err := b.store.Get(ctx, store.MemoryKey(entryID))
	if err != nil {
		if fault.IsNotFound(err) {
			return nil, fault.NotFound("memory entry %s not found", entryID)
		}
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fault.Internal(err, "decoding memory entry %s", entryID)
	}
	// A logically expired entry is treated as gone even while the store
	// TTL has yet to purge it.
	if e.Expired(b.now()) {
		return nil, fault.NotFound("memory entry %s has expired", entryID)
	}
	return &e, nil
}

// checkAccess applies the scope rules. DOMAIN is deliberately open to any
// requester; the tag exists for query narrowing.
func (b *Blackboard) checkAccess(ctx context.Context, e *Entry, requesterNodeID string) error {
	switch e.Scope {
	case ScopePrivate:
		if requesterNodeID != e.SourceNodeID {
			return fault.AccessDenied("entry %s is private to node %s", e.ID, e.SourceNodeID)
		}
	case ScopeSupervisor:
		if requesterNodeID != e.SourceNodeID && !b.isSupervisor(ctx, requesterNodeID) {
			return fault.AccessDenied("entry %s requires the supervisor role", e.ID)
		}
	case ScopePublic, ScopeDomain:
	}
	return nil
}

func (b *Blackboard) isSupervisor(ctx context.Context, nodeID string) bool {
	info, err := b.nodes.Get(ctx, nodeID)
	if err != nil {
		return false
	}
	return info.IsSupervisor()
}

// candidates resolves the query's per-field index sets and intersects them.
func (b *Blackboard) candidates(ctx context.Context, q Query) ([]string, error) {
	var setKeys []string
	if q.Domain != "" {
		setKeys = append(setKeys, store.MemoryDomainSetKey(q.Domain))
	}
	if q.Type != "" {
		setKeys = append(setKeys, store.MemoryTypeSetKey(q.Type))
	}
	if q.SourceNodeID != "" {
		setKeys = append(setKeys, store.MemoryNodeSetKey(q.SourceNodeID))
	}
	if q.Tag != "" {
		setKeys = append(setKeys, store.MemoryTagSetKey(q.Tag))
	}

	if len(setKeys) == 0 {
		keys, err := b.store.KeysWithPrefix(ctx, store.MemoryPrefix)
		if err != nil {
			return nil, fault.Wrap(fault.KindStoreFailure, err, "enumerating memory entries")
		}
		ids := make([]string, 0, len(keys))
		for _, k := range keys {
			ids = append(ids, k[len(store.MemoryPrefix):])
		}
		return ids, nil
	}

	var result map[string]bool
	for _, setKey := range setKeys {
		members, err := b.store.MembersOf(ctx, setKey)
		if err != nil {
			return nil, fault.Wrap(fault.KindStoreFailure, err, "reading memory index %s", setKey)
		}
		if result == nil {
			result = make(map[string]bool, len(members))
			for _, m := range members {
				result[m] = true
			}
			continue
		}
		next := make(map[string]bool, len(result))
		for _, m := range members {
			if result[m] {
				next[m] = true
			}
		}
		result = next
		if len(result) == 0 {
			return nil, nil
		}
	}

	ids := make([]string, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *Blackboard) persist(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fault.Internal(err, "encoding memory entry %s", e.ID)
	}
	var ttl time.Duration
	if !e.ExpiresAt.IsZero() {
		ttl = e.ExpiresAt.Sub(b.now())
		if ttl <= 0 {
			ttl = time.Second
		}
	}
	if err := b.store.Set(ctx, store.MemoryKey(e.ID), string(data), ttl); err != nil {
		return fault.Wrap(fault.KindStoreFailure, err, "persisting memory entry %s", e.ID)
	}
	return nil
}

func (b *Blackboard) indexKeys(e *Entry) []string {
	keys := []string{store.MemoryNodeSetKey(e.SourceNodeID)}
	if e.Domain != "" {
		keys = append(keys, store.MemoryDomainSetKey(e.Domain))
	}
	if e.Type != "" {
		keys = append(keys, store.MemoryTypeSetKey(e.Type))
	}
	for _, tag := range e.Tags {
		keys = append(keys, store.MemoryTagSetKey(tag))
	}
	return keys
}

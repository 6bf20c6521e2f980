package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivegrid/hub/internal/fault"
	"github.com/hivegrid/hub/internal/logging"
	"github.com/hivegrid/hub/internal/node"
	"github.com/hivegrid/hub/pkg/store"
)

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func setupBlackboard(t *testing.T) (*Blackboard, *node.Registry) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	st, err := store.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := logging.NewWithWriter(testWriter{t}, "memory", "test")
	nodes := node.NewRegistry(st, logger)
	return NewBlackboard(st, nodes, logger), nodes
}

func registerNode(t *testing.T, nodes *node.Registry, id string, caps ...string) {
	t.Helper()
	_, err := nodes.Register(context.Background(), node.Registration{
		NodeID:       id,
		Name:         id,
		Type:         "drone_control",
		Capabilities: caps,
	})
	require.NoError(t, err)
}

func TestPutAssignsIDAndTimestamps(t *testing.T) {
	bb, _ := setupBlackboard(t)

	e, err := bb.Put(context.Background(), Entry{
		Title:        "terrain map",
		Scope:        ScopePublic,
		SourceNodeID: "n1",
		Content:      json.RawMessage(`{"cells":64}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestPutValidation(t *testing.T) {
	bb, _ := setupBlackboard(t)
	ctx := context.Background()

	_, err := bb.Put(ctx, Entry{Scope: ScopePublic, SourceNodeID: "n1"})
	assert.Error(t, err, "title is required")

	_, err = bb.Put(ctx, Entry{Title: "x", Scope: "secret", SourceNodeID: "n1"})
	assert.Error(t, err, "scope must be a known value")

	_, err = bb.Put(ctx, Entry{
		Title:        "x",
		Scope:        ScopePublic,
		SourceNodeID: "n1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	assert.Error(t, err, "expiry must be in the future")
}

func TestPrivateScopeIsSourceOnly(t *testing.T) {
	bb, _ := setupBlackboard(t)
	ctx := context.Background()

	e, err := bb.Put(ctx, Entry{Title: "notes", Scope: ScopePrivate, SourceNodeID: "owner"})
	require.NoError(t, err)

	got, err := bb.Get(ctx, e.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, "notes", got.Title)

	_, err = bb.Get(ctx, e.ID, "stranger")
	assert.True(t, fault.IsKind(err, fault.KindAccessDenied))
}

func TestPublicScopeIsOpenToUnknownRequesters(t *testing.T) {
	bb, _ := setupBlackboard(t)
	ctx := context.Background()

	e, err := bb.Put(ctx, Entry{Title: "weather", Scope: ScopePublic, SourceNodeID: "n1"})
	require.NoError(t, err)

	// The requester was never registered; public entries do not care.
	_, err = bb.Get(ctx, e.ID, "never-seen-before")
	assert.NoError(t, err)
}

func TestSupervisorScopeChecksNodeRole(t *testing.T) {
	bb, nodes := setupBlackboard(t)
	ctx := context.Background()
	registerNode(t, nodes, "boss", node.CapabilitySupervisor)
	registerNode(t, nodes, "grunt")

	e, err := bb.Put(ctx, Entry{Title: "directive", Scope: ScopeSupervisor, SourceNodeID: "hq"})
	require.NoError(t, err)

	_, err = bb.Get(ctx, e.ID, "boss")
	assert.NoError(t, err)

	_, err = bb.Get(ctx, e.ID, "grunt")
	assert.True(t, fault.IsKind(err, fault.KindAccessDenied))

	// The source itself always reads its own entries.
	_, err = bb.Get(ctx, e.ID, "hq")
	assert.NoError(t, err)
}

func TestGetIncrementsAccessCounter(t *testing.T) {
	bb, _ := setupBlackboard(t)
	ctx := context.Background()

	e, err := bb.Put(ctx, Entry{Title: "popular", Scope: ScopePublic, SourceNodeID: "n1"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = bb.Get(ctx, e.ID, "reader")
		require.NoError(t, err)
	}
	got, err := bb.Get(ctx, e.ID, "reader")
	require.NoError(t, err)
	assert.Equal(t, 4, got.AccessCount)
	assert.False(t, got.LastAccessed.IsZero())
}

func TestLogicalExpiryBeatsPhysicalTTL(t *testing.T) {
	bb, _ := setupBlackboard(t)
	ctx := context.Background()

	base := time.Now()
	bb.now = func() time.Time { return base }

	e, err := bb.Put(ctx, Entry{
		Title:        "ephemeral",
		Scope:        ScopePublic,
		SourceNodeID: "n1",
		ExpiresAt:    base.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = bb.Get(ctx, e.ID, "reader")
	require.NoError(t, err)

	// The record may still sit in the store, but past expires_at it is
	// logically gone.
	bb.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = bb.Get(ctx, e.ID, "reader")
	assert.True(t, fault.IsNotFound(err))

	entries, err := bb.Query(ctx, Query{SourceNodeID: "n1"}, "reader")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueryIntersectsFilters(t *testing.T) {
	bb, _ := setupBlackboard(t)
	ctx := context.Background()

	put := func(title, domain, entryType string, tags ...string) {
		_, err := bb.Put(ctx, Entry{
			Title: title, Scope: ScopePublic, SourceNodeID: "n1",
			Domain: domain, Type: entryType, Tags: tags,
		})
		require.NoError(t, err)
	}
	put("a", "survey", "observation", "urgent")
	put("b", "survey", "telemetry")
	put("c", "logistics", "observation", "urgent")

	got, err := bb.Query(ctx, Query{Domain: "survey"}, "reader")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = bb.Query(ctx, Query{Domain: "survey", Type: "observation"}, "reader")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Title)

	got, err = bb.Query(ctx, Query{Tag: "urgent"}, "reader")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = bb.Query(ctx, Query{Domain: "logistics", Tag: "missing"}, "reader")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryFiltersInvisibleEntries(t *testing.T) {
	bb, _ := setupBlackboard(t)
	ctx := context.Background()

	_, err := bb.Put(ctx, Entry{Title: "secret", Scope: ScopePrivate, SourceNodeID: "owner", Domain: "ops"})
	require.NoError(t, err)
	_, err = bb.Put(ctx, Entry{Title: "open", Scope: ScopePublic, SourceNodeID: "owner", Domain: "ops"})
	require.NoError(t, err)

	got, err := bb.Query(ctx, Query{Domain: "ops"}, "stranger")
	require.NoError(t, err)
	require.Len(t, got, 1, "private entries are silently filtered, not an error")
	assert.Equal(t, "open", got[0].Title)

	got, err = bb.Query(ctx, Query{Domain: "ops"}, "owner")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestQueryWithoutFiltersScansAll(t *testing.T) {
	bb, _ := setupBlackboard(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		_, err := bb.Put(ctx, Entry{Title: title, Scope: ScopePublic, SourceNodeID: "n1"})
		require.NoError(t, err)
	}
	got, err := bb.Query(ctx, Query{}, "reader")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = bb.Query(ctx, Query{Limit: 2}, "reader")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDeleteRequiresSourceOrSupervisor(t *testing.T) {
	bb, nodes := setupBlackboard(t)
	ctx := context.Background()
	registerNode(t, nodes, "boss", node.CapabilitySupervisor)

	e, err := bb.Put(ctx, Entry{Title: "droppable", Scope: ScopePublic, SourceNodeID: "owner", Domain: "ops"})
	require.NoError(t, err)

	err = bb.Delete(ctx, e.ID, "stranger")
	assert.True(t, fault.IsKind(err, fault.KindAccessDenied))

	require.NoError(t, bb.Delete(ctx, e.ID, "owner"))
	_, err = bb.Get(ctx, e.ID, "owner")
	assert.True(t, fault.IsNotFound(err))

	// Index sets no longer surface the deleted entry.
	got, err := bb.Query(ctx, Query{Domain: "ops"}, "owner")
	require.NoError(t, err)
	assert.Empty(t, got)

	e2, err := bb.Put(ctx, Entry{Title: "droppable2", Scope: ScopePublic, SourceNodeID: "owner"})
	require.NoError(t, err)
	require.NoError(t, bb.Delete(ctx, e2.ID, "boss"))
}

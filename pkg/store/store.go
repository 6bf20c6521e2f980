// Package store implements the key-value contract the hub core depends on.
// The production backend is Redis; all keys and channels are namespaced by
// instance name so multiple hub instances can safely share one Redis server.
//
// The hub treats the store as the single source of truth for node, mission
// and memory records. In-memory registries are caches that can be rebuilt
// from here after a restart.
package store

import (
	"context"
	"time"
)

// Store is the persistence contract consumed by the registries.
// Keys are relative; the implementation owns namespacing.
type Store interface {
	// Set writes value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value under key, or a NotFound taxonomy error.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// AddToSet adds member to the set at setKey.
	AddToSet(ctx context.Context, setKey, member string) error

	// RemoveFromSet removes member from the set at setKey.
	RemoveFromSet(ctx context.Context, setKey, member string) error

	// MembersOf returns all members of the set at setKey. An absent set
	// yields an empty slice, not an error.
	MembersOf(ctx context.Context, setKey string) ([]string, error)

	// KeysWithPrefix enumerates keys sharing a prefix. Registries prefer
	// explicit set indexes; this exists for recovery-time rebuilds.
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)

	// Ping verifies backend connectivity, for health checks.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Publisher is the optional event-mirror surface. The coordinator publishes
// coordination events and task assignments here so operators can observe
// the stream without holding a live connection.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Package memory implements the shared blackboard: scoped, filterable
// entries nodes use to exchange results across missions.
package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Scope controls who may read an entry.
type Scope string

const (
	// ScopePrivate entries are readable only by their source node.
	ScopePrivate Scope = "private"

	// ScopeDomain entries are domain-tagged. Reads are currently allowed
	// for any requester; the domain tag narrows queries, not access.
	ScopeDomain Scope = "domain"

	// ScopePublic entries are readable by anyone.
	ScopePublic Scope = "public"

	// ScopeSupervisor entries are readable only by supervisor nodes.
	ScopeSupervisor Scope = "supervisor"
)

// Validate checks that the scope is a known enum value.
func (s Scope) Validate() error {
	switch s {
	case ScopePrivate, ScopeDomain, ScopePublic, ScopeSupervisor:
		return nil
	default:
		return fmt.Errorf("unknown memory scope: %q", s)
	}
}

// Entry is one blackboard record.
type Entry struct {
	ID           string          `json:"entry_id"`
	Title        string          `json:"title"`
	Content      json.RawMessage `json:"content,omitempty"`
	Type         string          `json:"entry_type,omitempty"`
	Scope        Scope           `json:"scope"`
	Domain       string          `json:"domain,omitempty"`
	SourceNodeID string          `json:"source_node_id"`
	Tags         []string        `json:"tags,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed,omitempty"`
}

// Expired reports whether the entry is logically expired at the given time.
// Expiry is enforced here as well as by store TTL because physical deletion
// is asynchronous.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Validate checks an entry submitted for Put.
func (e *Entry) Validate() error {
	if e.Title == "" {
		return fmt.Errorf("entry title cannot be empty")
	}
	if e.SourceNodeID == "" {
		return fmt.Errorf("entry source node cannot be empty")
	}
	return e.Scope.Validate()
}

// Query filters blackboard entries. Populated fields intersect.
type Query struct {
	Domain       string `json:"domain,omitempty"`
	Type         string `json:"entry_type,omitempty"`
	SourceNodeID string `json:"source_node_id,omitempty"`
	Tag          string `json:"tag,omitempty"`

	// Limit caps the result count; zero means no cap.
	Limit int `json:"limit,omitempty"`
}

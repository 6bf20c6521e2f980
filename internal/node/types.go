// Package node implements the registry of participating nodes: Store-backed
// identity records, heartbeat ingestion and derived staleness.
package node

import (
	"fmt"
	"time"
)

// Status is a node's caller-reported operational status. The hub never
// infers it except through derived staleness.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusCritical    Status = "critical"
	StatusMaintenance Status = "maintenance"
	StatusOffline     Status = "offline"
)

// Validate checks that the status is a known enum value.
func (s Status) Validate() error {
	switch s {
	case StatusHealthy, StatusDegraded, StatusCritical, StatusMaintenance, StatusOffline:
		return nil
	default:
		return fmt.Errorf("unknown node status: %q", s)
	}
}

// TypeSupervisor marks supervisor nodes, which may read SUPERVISOR-scoped
// memory entries.
const TypeSupervisor = "supervisor"

// CapabilitySupervisor grants supervisor rights to nodes of any type.
const CapabilitySupervisor = "supervisor"

// defaultHeartbeatInterval applies when a registration omits one.
const defaultHeartbeatInterval = 30 // seconds

// stalenessMultiplier tolerates jitter and one missed beat without the
// derived status flapping.
const stalenessMultiplier = 3

// Info is the complete record of a registered node.
type Info struct {
	ID                string                 `json:"node_id"`
	Name              string                 `json:"name"`
	Type              string                 `json:"node_type"`
	Capabilities      []string               `json:"capabilities"`
	Status            Status                 `json:"status"`
	HeartbeatInterval int                    `json:"heartbeat_interval"` // seconds, node-declared
	Metadata          map[string]interface{} `json:"metadata,omitempty"`

	RegisteredAt  time.Time `json:"registered_at"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`

	// Latest heartbeat metrics.
	CPUUsage    float64 `json:"cpu_usage,omitempty"`
	MemoryUsage float64 `json:"memory_usage,omitempty"`
	ActiveTasks int     `json:"active_tasks,omitempty"`
	ErrorCount  int     `json:"error_count,omitempty"`

	// Stale is derived at read time and never persisted.
	Stale bool `json:"-"`
}

// IsStale reports whether the node has missed enough heartbeats to be
// considered stale at the given time. A node that has never heartbeated is
// measured from its registration time.
func (n *Info) IsStale(now time.Time) bool {
	last := n.LastHeartbeat
	if last.IsZero() {
		last = n.RegisteredAt
	}
	threshold := time.Duration(n.HeartbeatInterval) * time.Second * stalenessMultiplier
	return now.Sub(last) > threshold
}

// HasCapability reports whether the node declared the given capability tag.
func (n *Info) HasCapability(capability string) bool {
	for _, c := range n.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasCapabilities reports whether every required tag is declared.
func (n *Info) HasCapabilities(required []string) bool {
	for _, c := range required {
		if !n.HasCapability(c) {
			return false
		}
	}
	return true
}

// IsSupervisor reports whether the node may access SUPERVISOR-scoped
// memory entries.
func (n *Info) IsSupervisor() bool {
	return n.Type == TypeSupervisor || n.HasCapability(CapabilitySupervisor)
}

// Registration is a node registration request.
type Registration struct {
	// NodeID keys idempotent re-registration; a fresh identifier is
	// generated when absent.
	NodeID            string                 `json:"node_id,omitempty"`
	Name              string                 `json:"name"`
	Type              string                 `json:"node_type"`
	Capabilities      []string               `json:"capabilities,omitempty"`
	HeartbeatInterval int                    `json:"heartbeat_interval,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the registration request.
func (r *Registration) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	if r.Type == "" {
		return fmt.Errorf("node type cannot be empty")
	}
	if r.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeat interval cannot be negative")
	}
	return nil
}

// Heartbeat is one liveness report from a node.
type Heartbeat struct {
	Status      Status  `json:"status"`
	CPUUsage    float64 `json:"cpu_usage,omitempty"`
	MemoryUsage float64 `json:"memory_usage,omitempty"`
	ActiveTasks int     `json:"active_tasks,omitempty"`
	ErrorCount  int     `json:"error_count,omitempty"`
}

// Filter narrows List results.
type Filter struct {
	// Type restricts to nodes of one declared type; empty matches all.
	Type string

	// HealthyOnly restricts to nodes reporting healthy and not stale.
	HealthyOnly bool
}

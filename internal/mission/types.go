// Package mission implements the mission and task lifecycle state machines,
// capability-based task assignment and the staleness-driven task reaper.
package mission

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority orders missions and coordination events.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityCritical  Priority = "critical"
	PriorityEmergency Priority = "emergency"
)

// Rank returns the ordering position of a priority (low is lowest).
// Unknown priorities rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	case PriorityEmergency:
		return 5
	default:
		return 0
	}
}

// Validate checks that the priority is a known enum value.
func (p Priority) Validate() error {
	if p.Rank() == 0 {
		return fmt.Errorf("unknown priority: %q", p)
	}
	return nil
}

// Status is a mission's lifecycle state.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Validate checks that the status is a known enum value.
func (s Status) Validate() error {
	switch s {
	case StatusPlanned, StatusActive, StatusPaused, StatusCompleted,
		StatusFailed, StatusCancelled, StatusExpired:
		return nil
	default:
		return fmt.Errorf("unknown mission status: %q", s)
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the mission state machine permits moving
// from s to next. Transitions only move forward; the one documented
// exception is ACTIVE <-> PAUSED. Any non-terminal state may expire.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusExpired {
		return true
	}
	switch s {
	case StatusPlanned:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusPaused || next == StatusCompleted ||
			next == StatusFailed || next == StatusCancelled
	case StatusPaused:
		return next == StatusActive || next == StatusCancelled
	default:
		return false
	}
}

// TaskStatus is a task's lifecycle state within its mission.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

// Validate checks that the task status is a known enum value.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskPending, TaskAssigned, TaskInProgress, TaskCompleted, TaskFailed, TaskSkipped:
		return nil
	default:
		return fmt.Errorf("unknown task status: %q", s)
	}
}

// Terminal reports whether the task status admits no further transitions.
// A failed task with retry budget left is requeued before it ever settles
// in this state, so Terminal treats failed as final.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped:
		return true
	default:
		return false
	}
}

// Task is one assignable unit of mission work. Tasks are owned exclusively
// by their parent mission; they have no identity outside it.
type Task struct {
	ID                   string          `json:"task_id"`
	Name                 string          `json:"name"`
	Type                 string          `json:"task_type"`
	RequiredCapabilities []string        `json:"required_capabilities,omitempty"`
	Parameters           json.RawMessage `json:"parameters,omitempty"`
	Dependencies         []string        `json:"dependencies,omitempty"`

	Status          TaskStatus `json:"status"`
	AssignedNodeID  string     `json:"assigned_node_id,omitempty"`
	ProgressPercent float64    `json:"progress_percent"`

	MaxRetries int `json:"max_retries"`
	RetryCount int `json:"retry_count"`

	StartedAt   time.Time       `json:"started_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Mission is a coordinated unit of work spanning one or more nodes.
type Mission struct {
	ID       string   `json:"mission_id"`
	Name     string   `json:"name"`
	Type     string   `json:"mission_type"`
	Domain   string   `json:"domain"`
	Priority Priority `json:"priority"`

	Status          Status  `json:"status"`
	ProgressPercent float64 `json:"progress_percent"`

	Tasks          []*Task `json:"tasks"`
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	FailedTasks    int     `json:"failed_tasks"`

	ParticipatingNodes []string `json:"participating_nodes"`
	CoordinatorNodeID  string   `json:"coordinator_node_id,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Deadline    time.Time `json:"deadline,omitempty"`

	// AllowPartialSuccess keeps the mission completable when some tasks
	// exhaust their retries; when false, an exhausted task fails the
	// whole mission.
	AllowPartialSuccess bool `json:"allow_partial_success"`

	CreatedBy string                     `json:"created_by,omitempty"`
	Tags      []string                   `json:"tags,omitempty"`
	Results   map[string]json.RawMessage `json:"results,omitempty"`
}

// task returns the task with the given id, or nil.
func (m *Mission) task(taskID string) *Task {
	for _, t := range m.Tasks {
		if t.ID == taskID {
			return t
		}
	}
	return nil
}

// dependenciesMet reports whether every dependency of t has completed.
func (m *Mission) dependenciesMet(t *Task) bool {
	for _, depID := range t.Dependencies {
		dep := m.task(depID)
		if dep == nil || dep.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// recomputeProgress refreshes the aggregate progress percentage.
func (m *Mission) recomputeProgress() {
	if m.TotalTasks == 0 {
		m.ProgressPercent = 0
		return
	}
	m.ProgressPercent = float64(m.CompletedTasks) / float64(m.TotalTasks) * 100
}

// TaskSpec describes one task in a mission creation request.
type TaskSpec struct {
	ID                   string          `json:"task_id,omitempty"` // generated when absent
	Name                 string          `json:"name"`
	Type                 string          `json:"task_type"`
	RequiredCapabilities []string        `json:"required_capabilities,omitempty"`
	Parameters           json.RawMessage `json:"parameters,omitempty"`
	Dependencies         []string        `json:"dependencies,omitempty"`
	MaxRetries           int             `json:"max_retries,omitempty"`
}

// Spec is a mission creation request.
type Spec struct {
	Name                string     `json:"name"`
	Type                string     `json:"mission_type"`
	Domain              string     `json:"domain"`
	Priority            Priority   `json:"priority,omitempty"`
	Tasks               []TaskSpec `json:"tasks"`
	Deadline            time.Time  `json:"deadline,omitempty"`
	ScheduledStart      time.Time  `json:"scheduled_start,omitempty"`
	AllowPartialSuccess bool       `json:"allow_partial_success,omitempty"`
	CreatedBy           string     `json:"created_by,omitempty"`
	Tags                []string   `json:"tags,omitempty"`
}

// Event is a coordination event relayed between mission participants.
// Relaying mutates no mission state and carries no delivery guarantee
// beyond best effort.
type Event struct {
	EventType     string          `json:"event_type"`
	SourceNodeID  string          `json:"source_node_id,omitempty"`
	Message       string          `json:"message,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Priority      Priority        `json:"priority,omitempty"`
	TargetNodeIDs []string        `json:"target_node_ids,omitempty"`
}

// Progress summarises one mission for the operator status surface.
type Progress struct {
	MissionID       string  `json:"mission_id"`
	Name            string  `json:"name"`
	Status          Status  `json:"status"`
	ProgressPercent float64 `json:"progress_percent"`
	CompletedTasks  int     `json:"completed_tasks"`
	FailedTasks     int     `json:"failed_tasks"`
	TotalTasks      int     `json:"total_tasks"`
}

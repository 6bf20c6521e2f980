package wire

import "encoding/json"

// Payload shapes for the message kinds the core understands. Fields the hub
// does not define are carried opaquely inside Data / Result / Content blobs.

// RegisterPayload is the data of a TypeRegister envelope.
type RegisterPayload struct {
	NodeID            string                 `json:"node_id,omitempty"` // supplied on re-registration
	Name              string                 `json:"name"`
	NodeType          string                 `json:"node_type"`
	Capabilities      []string               `json:"capabilities,omitempty"`
	HeartbeatInterval int                    `json:"heartbeat_interval,omitempty"` // seconds
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// HeartbeatPayload is the data of a TypeHeartbeat envelope.
type HeartbeatPayload struct {
	NodeID      string                 `json:"node_id"`
	Status      string                 `json:"status"`
	CPUUsage    float64                `json:"cpu_usage,omitempty"`
	MemoryUsage float64                `json:"memory_usage,omitempty"`
	ActiveTasks int                    `json:"active_tasks,omitempty"`
	ErrorCount  int                    `json:"error_count,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// WelcomePayload is the data of a TypeConnectionEstablished envelope.
type WelcomePayload struct {
	ConnectionID string `json:"connection_id"`
	ServerTime   string `json:"server_time"`
}

// TaskAssignedPayload is the data of a TypeTaskAssigned envelope.
type TaskAssignedPayload struct {
	MissionID  string          `json:"mission_id"`
	TaskID     string          `json:"task_id"`
	TaskType   string          `json:"task_type"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// TaskResultPayload is the data of a TypeTaskResult envelope.
type TaskResultPayload struct {
	MissionID       string          `json:"mission_id"`
	TaskID          string          `json:"task_id"`
	NodeID          string          `json:"node_id"`
	Status          string          `json:"status"` // in_progress, completed, failed, skipped
	ProgressPercent float64         `json:"progress_percent,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// CoordinationPayload is the data of a TypeCoordinationEvent envelope.
type CoordinationPayload struct {
	MissionID     string          `json:"mission_id"`
	EventType     string          `json:"event_type"`
	Message       string          `json:"message,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	TargetNodeIDs []string        `json:"target_node_ids,omitempty"`
	Broadcast     bool            `json:"broadcast_to_all,omitempty"`
}

// MemoryBroadcastPayload is the data of a TypeMemoryBroadcast envelope.
type MemoryBroadcastPayload struct {
	EntryID      string `json:"entry_id"`
	SourceNodeID string `json:"source_node_id"`
	Domain       string `json:"domain"`
	Title        string `json:"title"`
	TargetGroup  string `json:"target_group,omitempty"` // empty = all connections
}

// ErrorPayload is the data of a TypeError envelope.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Package wire defines the message envelope exchanged between the hub and
// connected nodes. The envelope is transport-agnostic: any duplex channel
// that carries byte frames can move envelopes.
//
// The hub treats the Data payload as opaque except for the message kinds it
// explicitly understands; those are a closed enum. Arbitrary external
// message types belong to protocol bridges outside the core and are ignored
// here rather than dispatched dynamically.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of an envelope. The core dispatches only
// on the constants below; anything else is an unknown type.
type MessageType string

const (
	// TypeRegister carries a node registration request.
	TypeRegister MessageType = "register"

	// TypeHeartbeat carries a node heartbeat with status and metrics.
	TypeHeartbeat MessageType = "heartbeat"

	// TypePing and TypePong implement connection-level liveness probing.
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"

	// TypeConnectionEstablished is the welcome message sent on accept.
	TypeConnectionEstablished MessageType = "connection_established"

	// TypeTaskAssigned notifies a node it has been assigned a mission task.
	TypeTaskAssigned MessageType = "task_assigned"

	// TypeTaskResult carries a node's report of a finished task.
	TypeTaskResult MessageType = "task_result"

	// TypeCoordinationEvent relays a mission coordination event between
	// participants. The hub forwards it without mutating mission state.
	TypeCoordinationEvent MessageType = "coordination_event"

	// TypeMemoryBroadcast announces a blackboard write to interested nodes.
	TypeMemoryBroadcast MessageType = "memory_broadcast"

	// TypeError reports a request failure back to the sender.
	TypeError MessageType = "error"
)

// Known reports whether t is a message type the core dispatches on.
func (t MessageType) Known() bool {
	switch t {
	case TypeRegister, TypeHeartbeat, TypePing, TypePong,
		TypeConnectionEstablished, TypeTaskAssigned, TypeTaskResult,
		TypeCoordinationEvent, TypeMemoryBroadcast, TypeError:
		return true
	default:
		return false
	}
}

// Envelope is the standard message frame.
type Envelope struct {
	Type      MessageType     `json:"message_type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	MessageID string          `json:"message_id,omitempty"`
	SourceID  string          `json:"source_id,omitempty"`
	TargetIDs []string        `json:"target_ids,omitempty"`
}

// New builds an envelope of the given type with payload marshalled into
// Data. The timestamp is set to now and a fresh message id is assigned.
func New(t MessageType, payload interface{}) (*Envelope, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		data = raw
	}
	return &Envelope{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().UTC(),
		MessageID: uuid.New().String(),
	}, nil
}

// Encode serialises the envelope to its wire form.
func (e *Envelope) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return raw, nil
}

// Decode parses an envelope from its wire form.
func Decode(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("envelope missing message_type")
	}
	return &e, nil
}

// DecodePayload unmarshals the envelope data into out.
func (e *Envelope) DecodePayload(out interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope %s has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hivegrid/hub/internal/connection"
	"github.com/hivegrid/hub/internal/fault"
	"github.com/hivegrid/hub/internal/memory"
	"github.com/hivegrid/hub/internal/mission"
	"github.com/hivegrid/hub/internal/node"
	"github.com/hivegrid/hub/pkg/wire"
)

// ServeConnection accepts a transport, sends the welcome envelope and runs
// the receive loop until the peer disconnects or the context is cancelled.
// Teardown is owned here: the connection is always removed from the
// registry before returning.
func (h *Hub) ServeConnection(ctx context.Context, transport connection.Transport) {
	connID := h.conns.Accept(transport)
	defer h.conns.Disconnect(connID)

	logger := h.logger.With().Str("connection_id", connID).Logger()

	welcome, err := wire.New(wire.TypeConnectionEstablished, wire.WelcomePayload{
		ConnectionID: connID,
		ServerTime:   time.Now().UTC().Format(time.RFC3339),
	})
	if err == nil {
		if payload, err := welcome.Encode(); err == nil {
			if err := h.conns.SendTo(ctx, connID, payload); err != nil {
				logger.Debug().Err(err).Msg("welcome not delivered")
				return
			}
		}
	}

	for {
		raw, err := transport.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				logger.Debug().Err(err).Msg("connection closed")
			}
			return
		}
		h.conns.Touch(connID)

		env, err := wire.Decode(raw)
		if err != nil {
			logger.Warn().Err(err).Msg("discarding undecodable message")
			h.sendError(ctx, connID, "bad_envelope", "message could not be decoded")
			continue
		}
		h.dispatch(ctx, connID, env, logger.With().Str("message_type", string(env.Type)).Logger())
	}
}

// dispatch routes one envelope. The message-kind set is closed: anything
// outside the enum is logged and dropped at this boundary.
func (h *Hub) dispatch(ctx context.Context, connID string, env *wire.Envelope, logger zerolog.Logger) {
	var err error
	switch env.Type {
	case wire.TypeRegister:
		err = h.handleRegister(ctx, connID, env)
	case wire.TypeHeartbeat:
		err = h.handleHeartbeat(ctx, env)
	case wire.TypePing:
		err = h.handlePing(ctx, connID)
	case wire.TypePong:
		// Touch already happened on receive.
	case wire.TypeTaskResult:
		err = h.handleTaskResult(ctx, env)
	case wire.TypeCoordinationEvent:
		err = h.handleCoordinationEvent(ctx, env)
	case wire.TypeMemoryBroadcast:
		err = h.handleMemoryBroadcast(ctx, connID, env)
	default:
		logger.Warn().Msg("ignoring message kind the core does not dispatch")
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("message handling failed")
		h.sendError(ctx, connID, string(fault.KindOf(err)), err.Error())
	}
}

func (h *Hub) handleRegister(ctx context.Context, connID string, env *wire.Envelope) error {
	var p wire.RegisterPayload
	if err := env.DecodePayload(&p); err != nil {
		return fault.New(fault.KindInvalidState, "bad register payload: %v", err)
	}
	info, err := h.nodes.Register(ctx, node.Registration{
		NodeID:            p.NodeID,
		Name:              p.Name,
		Type:              p.NodeType,
		Capabilities:      p.Capabilities,
		HeartbeatInterval: p.HeartbeatInterval,
		Metadata:          p.Metadata,
	})
	if err != nil {
		return err
	}
	if err := h.conns.Bind(connID, info.ID, info.Type); err != nil {
		return err
	}

	ack, err := wire.New(wire.TypeRegister, info)
	if err != nil {
		return fault.Internal(err, "building register ack")
	}
	payload, err := ack.Encode()
	if err != nil {
		return fault.Internal(err, "encoding register ack")
	}
	return h.conns.SendTo(ctx, connID, payload)
}

func (h *Hub) handleHeartbeat(ctx context.Context, env *wire.Envelope) error {
	var p wire.HeartbeatPayload
	if err := env.DecodePayload(&p); err != nil {
		return fault.New(fault.KindInvalidState, "bad heartbeat payload: %v", err)
	}
	return h.nodes.Heartbeat(ctx, p.NodeID, node.Heartbeat{
		Status:      node.Status(p.Status),
		CPUUsage:    p.CPUUsage,
		MemoryUsage: p.MemoryUsage,
		ActiveTasks: p.ActiveTasks,
		ErrorCount:  p.ErrorCount,
	})
}

func (h *Hub) handlePing(ctx context.Context, connID string) error {
	pong, err := wire.New(wire.TypePong, nil)
	if err != nil {
		return fault.Internal(err, "building pong")
	}
	payload, err := pong.Encode()
	if err != nil {
		return fault.Internal(err, "encoding pong")
	}
	return h.conns.SendTo(ctx, connID, payload)
}

func (h *Hub) handleTaskResult(ctx context.Context, env *wire.Envelope) error {
	var p wire.TaskResultPayload
	if err := env.DecodePayload(&p); err != nil {
		return fault.New(fault.KindInvalidState, "bad task result payload: %v", err)
	}
	_, err := h.coord.ReportTaskResult(ctx, p.MissionID, p.TaskID, mission.TaskStatus(p.Status), p.ProgressPercent, p.Result, p.Error)
	return err
}

func (h *Hub) handleCoordinationEvent(ctx context.Context, env *wire.Envelope) error {
	var p wire.CoordinationPayload
	if err := env.DecodePayload(&p); err != nil {
		return fault.New(fault.KindInvalidState, "bad coordination payload: %v", err)
	}
	_, err := h.coord.SendCoordinationEvent(ctx, p.MissionID, mission.Event{
		EventType:     p.EventType,
		SourceNodeID:  env.SourceID,
		Message:       p.Message,
		Data:          p.Data,
		TargetNodeIDs: p.TargetNodeIDs,
	})
	return err
}

// handleMemoryBroadcast stores a blackboard entry and fans a lightweight
// notification out to the target group, or to every other connection when
// no group is named.
func (h *Hub) handleMemoryBroadcast(ctx context.Context, connID string, env *wire.Envelope) error {
	var p struct {
		memory.Entry
		TargetGroup string `json:"target_group,omitempty"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return fault.New(fault.KindInvalidState, "bad memory payload: %v", err)
	}
	if p.SourceNodeID == "" {
		p.SourceNodeID = env.SourceID
	}
	stored, err := h.board.Put(ctx, p.Entry)
	if err != nil {
		return err
	}

	note, err := wire.New(wire.TypeMemoryBroadcast, wire.MemoryBroadcastPayload{
		EntryID:      stored.ID,
		SourceNodeID: stored.SourceNodeID,
		Domain:       stored.Domain,
		Title:        stored.Title,
		TargetGroup:  p.TargetGroup,
	})
	if err != nil {
		return fault.Internal(err, "building memory notification")
	}
	payload, err := note.Encode()
	if err != nil {
		return fault.Internal(err, "encoding memory notification")
	}

	if p.TargetGroup != "" {
		h.conns.BroadcastToGroup(ctx, p.TargetGroup, payload)
	} else {
		h.conns.BroadcastToAll(ctx, payload, []string{connID})
	}
	return nil
}

func (h *Hub) sendError(ctx context.Context, connID, code, message string) {
	env, err := wire.New(wire.TypeError, wire.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	payload, err := env.Encode()
	if err != nil {
		return
	}
	if err := h.conns.SendTo(ctx, connID, payload); err != nil {
		h.logger.Debug().Str("connection_id", connID).Err(err).Msg("error reply not delivered")
	}
}

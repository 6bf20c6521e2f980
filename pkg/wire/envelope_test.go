package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := New(TypeHeartbeat, &HeartbeatPayload{NodeID: "n1", Status: "healthy"})
	require.NoError(t, err)

	assert.Equal(t, TypeHeartbeat, env.Type)
	assert.NotEmpty(t, env.MessageID)
	assert.False(t, env.Timestamp.IsZero())

	var hb HeartbeatPayload
	require.NoError(t, env.DecodePayload(&hb))
	assert.Equal(t, "n1", hb.NodeID)
	assert.Equal(t, "healthy", hb.Status)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env, err := New(TypeCoordinationEvent, &CoordinationPayload{
		MissionID: "m1",
		EventType: "progress_update",
		Broadcast: true,
	})
	require.NoError(t, err)

	raw, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, env.Type, decoded.Type)
	assert.Equal(t, env.MessageID, decoded.MessageID)

	var cp CoordinationPayload
	require.NoError(t, decoded.DecodePayload(&cp))
	assert.Equal(t, "m1", cp.MissionID)
	assert.True(t, cp.Broadcast)
}

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestKnown(t *testing.T) {
	assert.True(t, TypeRegister.Known())
	assert.True(t, TypePong.Known())
	assert.False(t, MessageType("mcp_tool_call").Known())
}

func TestDecodePayloadEmpty(t *testing.T) {
	env := &Envelope{Type: TypePing}
	var hb HeartbeatPayload
	assert.Error(t, env.DecodePayload(&hb))
}

//go:build integration

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hivegrid/hub/internal/config"
	"github.com/hivegrid/hub/internal/hub"
	"github.com/hivegrid/hub/internal/node"
	"github.com/hivegrid/hub/pkg/store"
	"github.com/hivegrid/hub/pkg/wire"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

// TestHub_NodeRegistersOverWebsocket exercises the full path: hub serving
// over a real listener, a node connecting via websocket, registering and
// appearing in the status aggregate.
func TestHub_NodeRegistersOverWebsocket(t *testing.T) {
	redisURL := setupRedis(t)

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
version: "1.0"
instance: integration
redis:
  url: %s
server:
  addr: "127.0.0.1:18080"
`, redisURL)))
	require.NoError(t, err)

	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	st, err := store.NewRedisStore(opts, cfg.Instance)
	require.NoError(t, err)
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	h := hub.New(cfg, st)
	errCh := make(chan error, 1)
	go func() { errCh <- h.Run(ctx) }()

	// Wait for the listener to come up.
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18080/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18080/ws", nil)
	require.NoError(t, err)
	defer ws.Close()

	// Welcome arrives first.
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := wire.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeConnectionEstablished, env.Type)

	reg, err := wire.New(wire.TypeRegister, wire.RegisterPayload{
		NodeID:   "int-node",
		Name:     "integration node",
		NodeType: "drone_control",
	})
	require.NoError(t, err)
	payload, err := reg.Encode()
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, payload))

	// The register ack comes back over the same connection.
	_, raw, err = ws.ReadMessage()
	require.NoError(t, err)
	env, err = wire.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeRegister, env.Type)

	resp, err := http.Get("http://127.0.0.1:18080/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status hub.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 1, status.NodesRegistered)
	assert.Equal(t, 1, status.NodesConnected)

	cancel()
	select {
	case <-errCh:
	case <-time.After(10 * time.Second):
		t.Fatal("hub did not shut down")
	}
}

// TestHub_SurvivesRestart verifies node records persist in Redis across a
// hub restart.
func TestHub_SurvivesRestart(t *testing.T) {
	redisURL := setupRedis(t)

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	st, err := store.NewRedisStore(opts, "integration")
	require.NoError(t, err)
	defer st.Close()

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
version: "1.0"
instance: integration
redis:
  url: %s
server:
  addr: "127.0.0.1:18081"
`, redisURL)))
	require.NoError(t, err)

	ctx := context.Background()
	first := hub.New(cfg, st)
	_, err = first.Nodes().Register(ctx, node.Registration{
		NodeID: "persist-node",
		Name:   "persist node",
		Type:   "drone_control",
	})
	require.NoError(t, err)

	// A fresh hub over the same store sees the node after Load, which
	// Run performs; exercise Load directly for determinism.
	second := hub.New(cfg, st)
	require.NoError(t, second.Nodes().Load(ctx))
	info, err := second.Nodes().Get(ctx, "persist-node")
	require.NoError(t, err)
	assert.Equal(t, "persist-node", info.ID)
}

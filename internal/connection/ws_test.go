package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialWSPair upgrades one server-side connection and dials it, returning
// the server transport and the client conn. Both are closed on cleanup.
func dialWSPair(t *testing.T) (*WSTransport, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	transportCh := make(chan *WSTransport, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		transportCh <- NewWSTransport(ws)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case tr := <-transportCh:
		t.Cleanup(func() { tr.Close() })
		return tr, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never upgraded the connection")
		return nil, nil
	}
}

// A connection may sit silent for any stretch between heartbeats; the
// pending read must survive the quiet window and deliver the next frame.
func TestWSReceiveSurvivesIdlePeriod(t *testing.T) {
	tr, client := dialWSPair(t)

	type result struct {
		payload []byte
		err     error
	}
	got := make(chan result, 1)
	go func() {
		payload, err := tr.Receive(context.Background())
		got <- result{payload, err}
	}()

	time.Sleep(700 * time.Millisecond)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"hello":1}`)))

	select {
	case r := <-got:
		require.NoError(t, r.err)
		assert.Equal(t, `{"hello":1}`, string(r.payload))
	case <-time.After(2 * time.Second):
		t.Fatal("frame sent after the idle period was never delivered")
	}
}

func TestWSReceiveUnblocksOnCancel(t *testing.T) {
	tr, _ := dialWSPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan error, 1)
	go func() {
		_, err := tr.Receive(ctx)
		got <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-got:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not observe cancellation")
	}
}

func TestWSReceiveReportsPeerClose(t *testing.T) {
	tr, client := dialWSPair(t)

	got := make(chan error, 1)
	go func() {
		_, err := tr.Receive(context.Background())
		got <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case err := <-got:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not observe the peer closing")
	}
}

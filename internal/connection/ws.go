package connection

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// defaultWriteTimeout bounds each frame write when the caller's context
// carries no earlier deadline.
const defaultWriteTimeout = 10 * time.Second

// WSTransport adapts a gorilla websocket connection to the Transport
// interface. It is the production duplex channel; tests use in-memory
// fakes instead.
type WSTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWSTransport wraps an upgraded websocket connection.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	return &WSTransport{
		conn:         conn,
		writeTimeout: defaultWriteTimeout,
	}
}

// Send writes one text frame. Writes are serialized because gorilla
// supports at most one concurrent writer.
func (t *WSTransport) Send(ctx context.Context, payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// Receive blocks until the next frame arrives, the transport fails, or ctx
// is cancelled. There is no idle limit here: liveness is enforced by the
// registry's sweeper, which closes stale connections and thereby unblocks
// the pending read. Read errors on a gorilla connection are terminal, so
// every error return means the connection is done.
func (t *WSTransport) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Closing the conn is the only way to interrupt a blocked read.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			t.Close()
		case <-done:
		}
	}()

	_, payload, err := t.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return payload, nil
}

// Close closes the underlying websocket. Safe to call more than once.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

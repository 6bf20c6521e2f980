// Package connection owns the set of live connections and provides the
// hub's message delivery primitives: send-to-one, send-to-node,
// group broadcast and full broadcast, plus the periodic liveness sweep.
//
// The registry is the only component holding connection references. Index
// mutations happen under one registry lock; the blocking transport I/O
// itself happens outside it so one slow client cannot serialize all sends.
package connection

import (
	"context"
	"sync"
	"time"
)

// Transport is a duplex byte-frame channel to one external party.
// Implementations must be safe for one concurrent Send and one concurrent
// Receive; the registry serializes Sends per connection itself.
type Transport interface {
	// Send delivers one frame. It must respect ctx deadlines.
	Send(ctx context.Context, payload []byte) error

	// Receive blocks until the next frame, a transport error, or ctx
	// cancellation. Errors are terminal for the channel.
	Receive(ctx context.Context) ([]byte, error)

	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// Conn is the registry's record of one live connection.
// Identity fields (nodeID, group) and lastSignal are guarded by the
// registry lock; only the transport reference escapes it.
type Conn struct {
	id        string
	transport Transport
	createdAt time.Time

	nodeID     string
	group      string
	lastSignal time.Time // zero until the first ping/heartbeat arrives

	// sendMu serializes writes so per-connection FIFO ordering holds.
	sendMu sync.Mutex
}

// ID returns the connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// send performs the actual transport write, serialized per connection.
func (c *Conn) send(ctx context.Context, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.transport.Send(ctx, payload)
}

// Info is a read-only snapshot of a connection's registry state.
type Info struct {
	ID         string    `json:"connection_id"`
	NodeID     string    `json:"node_id,omitempty"`
	Group      string    `json:"group,omitempty"`
	CreatedAt  time.Time `json:"connected_at"`
	LastSignal time.Time `json:"last_signal,omitempty"`
}

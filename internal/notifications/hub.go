// Package notifications provides real-time event delivery to connected websocket clients.
package notifications

import (
	"context"
	"errors"
	"log"
	"sync"

	"codezen/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// Max total connections per process
const maxTotalConns = 10000

// ErrConnectionLimit is returned by Register when the hub is full.
var ErrConnectionLimit = errors.New("server connection limit reached")

// ErrHubClosed is returned by Register after Shutdown.
var ErrHubClosed = errors.New("hub is shut down")

// Hub tracks every connected client; forum events go to all of them.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*Client]struct{}
	closed bool
	done   chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*Client]struct{}),
		done:  make(chan struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "forum hub" }

// Register adds a connection and returns its Client. A nil conn registers a
// socketless client whose Send channel can be read directly.
func (h *Hub) Register(conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if len(h.conns) >= maxTotalConns {
		return nil, ErrConnectionLimit
	}

	client := NewClient(h, conn)
	h.conns[client] = struct{}{}
	observability.WebSocketConnectionsTotal.Inc()
	return client, nil
}

// UnregisterClient removes the client. Safe to call more than once.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[client]; ok {
		delete(h.conns, client)
		observability.WebSocketConnectionsTotal.Dec()
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// BroadcastAll sends message to every connected websocket client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for c := range h.conns {
		c.TrySend(data)
	}
}

// StartWiring subscribes the hub to the shared event channel so events
// published by any instance reach the clients connected here.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.Subscribe(ctx, h.BroadcastAll)
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true

	for client := range h.conns {
		if client.Conn == nil {
			continue
		}
		if err := client.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
			log.Printf("failed to write close message for client %s: %v", client.ID, err)
		}
		if err := client.Conn.Close(); err != nil {
			log.Printf("failed to close websocket for client %s: %v", client.ID, err)
		}
	}
	observability.WebSocketConnectionsTotal.Sub(float64(len(h.conns)))
	h.conns = make(map[*Client]struct{})
	h.mu.Unlock()

	close(h.done)
	return nil
}

// Done is closed once Shutdown has finished.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

package notifications

import (
	"log"
	"time"

	"codezen/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Forum clients only listen, so inbound frames stay small.
	maxMessageSize = 4096

	sendBufferSize = 256
)

// EventEventsDropped tells a client its buffer overflowed and it should
// re-fetch the posts it shows.
const EventEventsDropped = "eventsDropped"

var eventsDroppedNotice = []byte(`{"type":"` + EventEventsDropped + `","payload":{"reason":"buffer_full"}}`)

// WSHub is the side of a hub a Client reports back to.
type WSHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is one subscribed websocket connection. Events are queued on Send
// and written by WritePump; whatever the peer sends is discarded.
type Client struct {
	Hub WSHub

	// Nil for clients registered without a socket.
	Conn *websocket.Conn

	Send chan []byte

	ID string
}

func NewClient(hub WSHub, conn *websocket.Conn) *Client {
	return &Client{
		Hub:  hub,
		Conn: conn,
		ID:   uuid.NewString(),
		Send: make(chan []byte, sendBufferSize),
	}
}

// ReadPump keeps the read side alive for pongs and close frames. It returns
// when the peer goes away, after unregistering the client.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("%s: client %s read error: %v", c.Hub.Name(), c.ID, err)
			}
			return
		}
	}
}

// WritePump writes queued events one frame each and pings the peer. It
// returns when Send is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues message without blocking. A full buffer drops the event and
// queues an eventsDropped notice if there is still room; a closed client
// drops it silently.
func (c *Client) TrySend(message []byte) {
	defer func() {
		if recover() != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "closed").Inc()
		}
	}()

	select {
	case c.Send <- message:
		return
	default:
	}

	observability.WebSocketBackpressureDrops.WithLabelValues(c.Hub.Name(), "full").Inc()
	log.Printf("%s: client %s buffer full, dropped event", c.Hub.Name(), c.ID)
	select {
	case c.Send <- eventsDroppedNotice:
	default:
	}
}

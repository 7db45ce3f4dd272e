package server

import (
	"encoding/json"
	"log"

	"codezen/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// EventConnected is sent to a websocket client once it is registered.
const EventConnected = "connected"

// WebsocketUpgrade rejects plain HTTP requests to the websocket endpoint.
func (s *Server) WebsocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// WebsocketHandler subscribes a client to every forum event: newPost,
// newComment and postLiked.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		client, err := s.hub.Register(conn)
		if err != nil {
			log.Printf("WebSocket: failed to register client: %v", err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		hello, err := json.Marshal(notifications.Event{
			Type:    EventConnected,
			Payload: fiber.Map{"clientId": client.ID},
		})
		if err == nil {
			client.TrySend(hello)
		}

		done := make(chan struct{})
		go func() {
			client.WritePump()
			close(done)
		}()
		client.ReadPump()

		// ReadPump has unregistered the client; closing Send stops WritePump
		// before the connection is handed back to fiber.
		close(client.Send)
		<-done
	})
}

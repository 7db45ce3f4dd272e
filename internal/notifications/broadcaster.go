package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"codezen/internal/observability"
)

// Event is the envelope every websocket client receives.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Broadcaster delivers forum events to all connected clients. With Redis the
// event goes through pub/sub, so every instance (this one included, via its
// subscription) fans it out exactly once; without Redis it goes straight to
// the local hub.
type Broadcaster struct {
	hub      *Hub
	notifier *Notifier
}

// NewBroadcaster creates a Broadcaster. A nil or disabled notifier means local delivery only.
func NewBroadcaster(hub *Hub, notifier *Notifier) *Broadcaster {
	return &Broadcaster{hub: hub, notifier: notifier}
}

// Emit sends event with payload to every connected client. It does not wait
// for clients to receive it.
func (b *Broadcaster) Emit(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(Event{Type: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	observability.BroadcastEvents.WithLabelValues(event).Inc()

	if b.notifier.Enabled() {
		if err := b.notifier.Publish(ctx, string(data)); err != nil {
			// Local clients still get the event when Redis is down.
			b.local(string(data))
			return fmt.Errorf("publish %s event: %w", event, err)
		}
		return nil
	}
	b.local(string(data))
	return nil
}

func (b *Broadcaster) local(message string) {
	if b.hub != nil {
		b.hub.BroadcastAll(message)
	}
}

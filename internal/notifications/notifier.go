package notifications

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"

	"github.com/redis/go-redis/v9"
)

// BroadcastChannel carries every forum event between instances.
const BroadcastChannel = "forum:events"

// Notifier moves serialized events between server instances over Redis
// pub/sub. A Notifier without a client is valid and does nothing.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether the notifier has a Redis connection to publish on.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// Publish sends a serialized event to every subscribed instance, this one included.
func (n *Notifier) Publish(ctx context.Context, payload string) error {
	if !n.Enabled() {
		return nil
	}
	if err := n.rdb.Publish(ctx, BroadcastChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", BroadcastChannel, err)
	}
	return nil
}

// Subscribe calls handle for every event published on BroadcastChannel until
// ctx is cancelled. It returns once Redis has confirmed the subscription, so
// nothing published afterwards is missed.
func (n *Notifier) Subscribe(ctx context.Context, handle func(payload string)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, BroadcastChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", BroadcastChannel, err)
	}

	go func() {
		defer func() { _ = sub.Close() }()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				deliver(handle, msg.Payload)
			}
		}
	}()
	return nil
}

// deliver keeps one bad event from ending the subscription.
func deliver(handle func(string), payload string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC delivering %s event: %v\n%s", BroadcastChannel, r, debug.Stack())
		}
	}()
	handle(payload)
}

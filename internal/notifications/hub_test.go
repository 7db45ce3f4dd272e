package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(testEventuallyTimeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNothingQueued(t *testing.T, c *Client) {
	t.Helper()
	assert.Never(t, func() bool { return len(c.Send) > 0 }, 10*testPollInterval, testPollInterval)
}

func TestHub_BroadcastAllReachesEveryClient(t *testing.T) {
	hub := NewHub()
	a, err := hub.Register(nil)
	require.NoError(t, err)
	b, err := hub.Register(nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, hub.Count())

	hub.BroadcastAll(`{"type":"postLiked","payload":{"postId":"p1","likes":1}}`)

	assert.Equal(t, "postLiked", receive(t, a).Type)
	assert.Equal(t, "postLiked", receive(t, b).Type)
}

func TestHub_UnregisteredClientStopsReceiving(t *testing.T) {
	hub := NewHub()
	a, err := hub.Register(nil)
	require.NoError(t, err)

	hub.UnregisterClient(a)
	hub.UnregisterClient(a)
	assert.Equal(t, 0, hub.Count())

	hub.BroadcastAll(`{"type":"newPost"}`)
	assertNothingQueued(t, a)
}

func TestHub_ShutdownRejectsNewClients(t *testing.T) {
	hub := NewHub()
	_, err := hub.Register(nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.Count())

	select {
	case <-hub.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}

	_, err = hub.Register(nil)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(nil)
	require.NoError(t, err)

	for i := 0; i < sendBufferSize; i++ {
		c.TrySend([]byte("x"))
	}
	assert.NotPanics(t, func() { c.TrySend([]byte("overflow")) })
	assert.Len(t, c.Send, sendBufferSize)

	close(c.Send)
	assert.NotPanics(t, func() { c.TrySend([]byte("after close")) })
}

func TestBroadcaster_LocalDelivery(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(nil)
	require.NoError(t, err)

	b := NewBroadcaster(hub, NewNotifier(nil))
	require.NoError(t, b.Emit(context.Background(), "postLiked", map[string]any{"postId": "p1", "likes": 2}))

	ev := receive(t, c)
	assert.Equal(t, "postLiked", ev.Type)
	payload, ok := ev.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "p1", payload["postId"])
	assert.Equal(t, float64(2), payload["likes"])
}

func TestBroadcaster_RedisFanOutDeliversOncePerClient(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two instances sharing one Redis.
	hubA, hubB := NewHub(), NewHub()
	notifierA, notifierB := NewNotifier(newClient()), NewNotifier(newClient())
	require.NoError(t, hubA.StartWiring(ctx, notifierA))
	require.NoError(t, hubB.StartWiring(ctx, notifierB))

	clientA, err := hubA.Register(nil)
	require.NoError(t, err)
	clientB, err := hubB.Register(nil)
	require.NoError(t, err)

	require.NoError(t, NewBroadcaster(hubA, notifierA).Emit(ctx, "newComment", map[string]string{"postId": "p1"}))

	assert.Equal(t, "newComment", receive(t, clientA).Type)
	assert.Equal(t, "newComment", receive(t, clientB).Type)
	assertNothingQueued(t, clientA)
	assertNothingQueued(t, clientB)
}

func TestBroadcaster_PublishFailureFallsBackToLocal(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := NewHub()
	c, err := hub.Register(nil)
	require.NoError(t, err)

	mr.Close()
	err = NewBroadcaster(hub, NewNotifier(rdb)).Emit(context.Background(), "newPost", map[string]string{"id": "p1"})
	assert.Error(t, err)
	assert.Equal(t, "newPost", receive(t, c).Type)
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Publish(context.Background(), "payload"))
	assert.NoError(t, n.Subscribe(context.Background(), func(string) {}))
}

func TestNotifier_SubscriberStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())

	payloads := make(chan string, 4)
	require.NoError(t, n.Subscribe(ctx, func(payload string) {
		payloads <- payload
	}))

	require.NoError(t, n.Publish(context.Background(), "before-cancel"))
	select {
	case p := <-payloads:
		assert.Equal(t, "before-cancel", p)
	case <-time.After(testEventuallyTimeout):
		t.Fatal("subscriber did not receive message")
	}

	cancel()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, n.Publish(context.Background(), "after-cancel"))
	assert.Never(t, func() bool { return len(payloads) > 0 }, 20*testPollInterval, testPollInterval)
}

func TestNotifier_HandlerPanicKeepsSubscription(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	payloads := make(chan string, 4)
	require.NoError(t, n.Subscribe(ctx, func(payload string) {
		if payload == "boom" {
			panic("bad event")
		}
		payloads <- payload
	}))

	require.NoError(t, n.Publish(context.Background(), "boom"))
	require.NoError(t, n.Publish(context.Background(), "fine"))
	select {
	case p := <-payloads:
		assert.Equal(t, "fine", p)
	case <-time.After(testEventuallyTimeout):
		t.Fatal("subscriber stopped after a panicking handler")
	}
}

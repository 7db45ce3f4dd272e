// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codezen_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// StoreOperationLatency records post store latency by driver and operation.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codezen_store_operation_latency_seconds",
		Help:    "Post store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"driver", "operation"})

	// CommentsAdded counts appended comments, split into top-level comments and replies.
	CommentsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codezen_comments_added_total",
		Help: "Total number of comments appended to posts",
	}, []string{"kind"})

	// ReplyDepth observes how deep new replies land in their thread.
	ReplyDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "codezen_reply_depth",
		Help:    "Depth of the parent comment a reply is appended to",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})

	// PostLikes counts like operations.
	PostLikes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codezen_post_likes_total",
		Help: "Total number of post likes",
	})

	// BroadcastEvents counts emitted broadcast events by event name.
	BroadcastEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codezen_broadcast_events_total",
		Help: "Total broadcast events emitted by event name",
	}, []string{"event"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codezen_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codezen_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// TrackStore returns a function that records store latency when called (e.g. defer).
func TrackStore(driver, operation string) func() {
	start := time.Now()
	return func() {
		StoreOperationLatency.WithLabelValues(driver, operation).Observe(time.Since(start).Seconds())
	}
}

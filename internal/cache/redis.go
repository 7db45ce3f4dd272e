// Package cache holds the process-wide Redis client and the cache-aside
// helpers the post service reads through. Every helper is a no-op without a
// client, so the forum runs unchanged when Redis is absent.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"codezen/internal/observability"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

var client *redis.Client

// errorCounter counts failed commands per command name. Cache misses are not failures.
type errorCounter struct{}

func failed(err error) bool {
	return err != nil && !errors.Is(err, redis.Nil)
}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if failed(err) {
			observability.RedisErrorRate.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if failed(err) {
			observability.RedisErrorRate.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// ParseAddr accepts either a redis:// URL or a bare host:port.
func ParseAddr(addr string) (*redis.Options, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("empty redis address")
	}
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL %q: %w", addr, err)
	}
	return opts, nil
}

// InitRedis connects to addr and installs the client. When addr is empty,
// invalid or unreachable the package is left without a client.
func InitRedis(addr string) {
	client = nil
	if strings.TrimSpace(addr) == "" {
		log.Println("Redis not configured, running single-instance without cache")
		return
	}

	opts, err := ParseAddr(addr)
	if err != nil {
		log.Printf("Redis disabled: %v", err)
		return
	}
	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unreachable at %s, running single-instance without cache: %v", opts.Addr, err)
		_ = c.Close()
		return
	}

	c.AddHook(errorCounter{})
	client = c
	log.Printf("Redis connected at %s", opts.Addr)
}

// SetClient installs a client built by the caller, typically a test.
func SetClient(c *redis.Client) {
	if c != nil {
		c.AddHook(errorCounter{})
	}
	client = c
}

func GetClient() *redis.Client {
	return client
}

// Close closes and forgets the installed client.
func Close() {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		log.Printf("Error closing Redis: %v", err)
	}
	client = nil
}

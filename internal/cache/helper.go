package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	postKeyPrefix       = "post:%s:v%d"
	postVersionKey      = "post:%s:version"
	postsListVersionKey = "posts:list:version"
	postsListKeyPrefix  = "posts:list:v%d:%d:%d"
)

const (
	PostTTL = 30 * time.Second
	ListTTL = 30 * time.Second

	// versionTTL outlives any entry keyed by the version, so an expired
	// counter restarting at zero can only hit entries that are already gone.
	versionTTL = 24 * time.Hour
)

func version(ctx context.Context, key string) int64 {
	if client == nil {
		return 0
	}
	v, err := client.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return v
}

func bump(ctx context.Context, key string) {
	if client == nil {
		return
	}
	_, _ = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, versionTTL)
		return nil
	})
}

// PostKey returns the cache key of a single post at its current version.
// Callers must build the key before fetching from the store: a fetch that
// races a write then lands under the old version, which nobody reads again.
func PostKey(ctx context.Context, postID string) string {
	return fmt.Sprintf(postKeyPrefix, postID, version(ctx, fmt.Sprintf(postVersionKey, postID)))
}

// PostsListKey returns the key of one page of the newest-first post listing.
// The key embeds the current list version, so bumping the version with
// InvalidatePostsList orphans every cached page at once.
func PostsListKey(ctx context.Context, limit, offset int) string {
	return fmt.Sprintf(postsListKeyPrefix, version(ctx, postsListVersionKey), limit, offset)
}

// InvalidatePostsList bumps the listing version.
func InvalidatePostsList(ctx context.Context) {
	bump(ctx, postsListVersionKey)
}

// Invalidate deletes key from the cache.
func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

// InvalidatePost drops the cached post and every cached listing page.
func InvalidatePost(ctx context.Context, postID string) {
	Invalidate(ctx, PostKey(ctx, postID))
	bump(ctx, fmt.Sprintf(postVersionKey, postID))
	InvalidatePostsList(ctx)
}

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if client == nil {
		return false, nil
	}
	s, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, b, ttl).Err()
}

// Aside tries Redis first, on miss it calls fetch (which should populate dest),
// then stores the result in Redis with ttl. fetch must write into dest.
// Redis read failures fall through to fetch; the source of truth stays reachable.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	found, err := GetJSON(ctx, key, dest)
	if err == nil && found {
		return nil
	}

	if err := fetch(); err != nil {
		return err
	}

	// Store into cache (best-effort)
	_ = SetJSON(ctx, key, dest, ttl)
	return nil
}

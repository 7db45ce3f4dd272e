package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedPost struct {
	ID    string `json:"id"`
	Likes int    `json:"likes"`
}

func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(Close)
	return mr
}

func TestAside_FetchesOnceThenServesFromCache(t *testing.T) {
	mr := setupMiniRedis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *cachedPost) func() error {
		return func() error {
			calls++
			*dest = cachedPost{ID: "p1", Likes: 3}
			return nil
		}
	}

	var first cachedPost
	require.NoError(t, Aside(ctx, PostKey(ctx, "p1"), &first, PostTTL, fetch(&first)))
	assert.Equal(t, cachedPost{ID: "p1", Likes: 3}, first)
	assert.True(t, mr.Exists("post:p1:v0"))

	var second cachedPost
	require.NoError(t, Aside(ctx, PostKey(ctx, "p1"), &second, PostTTL, fetch(&second)))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	mr.FastForward(PostTTL + time.Second)
	var third cachedPost
	require.NoError(t, Aside(ctx, PostKey(ctx, "p1"), &third, PostTTL, fetch(&third)))
	assert.Equal(t, 2, calls)
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	mr := setupMiniRedis(t)
	boom := errors.New("boom")

	var dest cachedPost
	ctx := context.Background()
	err := Aside(ctx, PostKey(ctx, "p2"), &dest, PostTTL, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("post:p2:v0"))
}

func TestAside_WithoutClientCallsFetch(t *testing.T) {
	Close()
	calls := 0
	var dest cachedPost
	ctx := context.Background()
	err := Aside(ctx, PostKey(ctx, "p3"), &dest, PostTTL, func() error {
		calls++
		dest.ID = "p3"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "p3", dest.ID)
}

func TestInvalidatePost_BumpsListVersion(t *testing.T) {
	mr := setupMiniRedis(t)
	ctx := context.Background()

	before := PostsListKey(ctx, 20, 0)
	require.NoError(t, SetJSON(ctx, PostKey(ctx, "p1"), cachedPost{ID: "p1"}, PostTTL))

	InvalidatePost(ctx, "p1")

	assert.False(t, mr.Exists("post:p1:v0"))
	assert.Equal(t, "post:p1:v1", PostKey(ctx, "p1"))
	after := PostsListKey(ctx, 20, 0)
	assert.NotEqual(t, before, after)
	assert.Equal(t, "posts:list:v1:20:0", after)
}

func TestAside_FetchRacingInvalidationIsNotServed(t *testing.T) {
	setupMiniRedis(t)
	ctx := context.Background()

	// A reader builds its key and fetches the old post, then a writer saves
	// and invalidates before the reader gets to store what it fetched.
	readerKey := PostKey(ctx, "p1")
	var stale cachedPost
	require.NoError(t, Aside(ctx, readerKey, &stale, PostTTL, func() error {
		stale = cachedPost{ID: "p1", Likes: 1}
		InvalidatePost(ctx, "p1")
		return nil
	}))

	calls := 0
	var fresh cachedPost
	require.NoError(t, Aside(ctx, PostKey(ctx, "p1"), &fresh, PostTTL, func() error {
		calls++
		fresh = cachedPost{ID: "p1", Likes: 2}
		return nil
	}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, fresh.Likes)
}

func TestErrorCounter_IgnoresMisses(t *testing.T) {
	setupMiniRedis(t)
	var dest cachedPost
	found, err := GetJSON(context.Background(), "post:missing", &dest)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestParseAddr(t *testing.T) {
	opts, err := ParseAddr("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts, err = ParseAddr("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	_, err = ParseAddr("  ")
	assert.Error(t, err)

	_, err = ParseAddr("redis://cache:6379/not-a-db")
	assert.Error(t, err)
}

func TestInitRedis_UnreachableLeavesNoClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	InitRedis(addr)
	t.Cleanup(Close)
	assert.Nil(t, GetClient())
}

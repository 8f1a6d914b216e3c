package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(true)
	c.now = func() time.Time { return now }

	etag := c.Set(ctx, "matches/live", []byte(`[]`), TTLListing)
	data, got, ok := c.Get(ctx, "matches/live")
	require.True(t, ok)
	assert.Equal(t, `[]`, string(data))
	assert.Equal(t, etag, got)

	now = now.Add(TTLListing)
	_, _, ok = c.Get(ctx, "matches/live")
	assert.False(t, ok, "an entry expires exactly at its TTL")

	assert.Equal(t, Stats{Enabled: true, Keys: 1, Expired: 1}, c.Stats())
	assert.Equal(t, 1, c.evict())
	assert.Zero(t, c.Stats().Keys)
}

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	c := New(false)
	etag := c.Set(ctx, "k", []byte("v"), time.Hour)
	assert.Equal(t, ETag([]byte("v")), etag)
	_, _, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Keys)
}

func TestMatches(t *testing.T) {
	etag := ETag([]byte("scorecard"))
	assert.True(t, Matches(etag, etag))
	assert.True(t, Matches("*", etag))
	assert.False(t, Matches("", etag))
	assert.False(t, Matches(`W/"other"`, etag))
	assert.NotEqual(t, etag, ETag([]byte("scorecard2")))
}

func TestSharedTier(t *testing.T) {
	url := os.Getenv("CRICKET_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CRICKET_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	prefix := "cricket-test:" + t.Name() + ":"
	t.Cleanup(func() { rdb.Del(ctx, prefix+"scorecard/91805") })

	a := New(true).WithRedis(rdb, prefix)
	b := New(true).WithRedis(rdb, prefix)

	etag := a.Set(ctx, "scorecard/91805", []byte(`{"match_id":91805}`), TTLScorecard)
	data, got, ok := b.Get(ctx, "scorecard/91805")
	require.True(t, ok, "another instance sees the entry")
	assert.JSONEq(t, `{"match_id":91805}`, string(data))
	assert.Equal(t, etag, got)
	assert.True(t, b.Stats().Shared)
	assert.Equal(t, 1, b.Stats().Active, "a shared hit is kept in memory")
}

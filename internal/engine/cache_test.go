package engine

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func bundle(id string) VideoBundle {
	return VideoBundle{VideoID: id, Metadata: VideoMetadata{Title: "title " + id}}
}

func TestTieredCacheGetPut(t *testing.T) {
	c := NewTieredCache(CachePolicy{})
	defer c.Close()
	ctx := context.Background()

	_, _, ok := c.Get(ctx, "dQw4w9WgXcQ")
	assert.False(t, ok)

	c.Put(ctx, "dQw4w9WgXcQ", bundle("dQw4w9WgXcQ"), AnalysisResult{Summary: "s"})
	b, a, ok := c.Get(ctx, "dQw4w9WgXcQ")
	require.True(t, ok)
	assert.Equal(t, "title dQw4w9WgXcQ", b.Metadata.Title)
	assert.Equal(t, "s", a.Summary)
	assert.Equal(t, 1, c.Len())

	c.Evict(ctx, "dQw4w9WgXcQ")
	_, _, ok = c.Get(ctx, "dQw4w9WgXcQ")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestTieredCacheMaxEntriesEvictsOldest(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewTieredCache(CachePolicy{MaxEntries: 2}, withClock(clk.Now))
	defer c.Close()
	ctx := context.Background()

	c.Put(ctx, "a", bundle("a"), AnalysisResult{})
	clk.Advance(time.Second)
	c.Put(ctx, "b", bundle("b"), AnalysisResult{})
	clk.Advance(time.Second)
	c.Put(ctx, "c", bundle("c"), AnalysisResult{})

	assert.Equal(t, 2, c.Len())
	_, _, ok := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, _, ok = c.Get(ctx, "c")
	assert.True(t, ok)

	// overwriting an existing key does not evict
	c.Put(ctx, "b", bundle("b"), AnalysisResult{Summary: "v2"})
	assert.Equal(t, 2, c.Len())
	_, a, ok := c.Get(ctx, "b")
	require.True(t, ok)
	assert.Equal(t, "v2", a.Summary)
}

func TestTieredCacheTTL(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewTieredCache(CachePolicy{TTL: time.Minute, CleanupInterval: time.Hour}, withClock(clk.Now))
	defer c.Close()
	ctx := context.Background()

	c.Put(ctx, "a", bundle("a"), AnalysisResult{})
	clk.Advance(30 * time.Second)
	_, _, ok := c.Get(ctx, "a")
	assert.True(t, ok)

	clk.Advance(31 * time.Second)
	_, _, ok = c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestTieredCachePurgeExpired(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewTieredCache(CachePolicy{TTL: time.Minute, CleanupInterval: time.Hour}, withClock(clk.Now))
	defer c.Close()
	ctx := context.Background()

	c.Put(ctx, "a", bundle("a"), AnalysisResult{})
	clk.Advance(2 * time.Minute)
	c.Put(ctx, "b", bundle("b"), AnalysisResult{})

	c.purgeExpired()
	assert.Equal(t, 1, c.Len())
}

func TestTieredCacheRedisNeedsTTL(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	rdb, err := ConnectRedis(context.Background(), url)
	require.NoError(t, err)

	c := NewTieredCache(CachePolicy{}, WithRedis(rdb))
	defer c.Close()
	assert.Nil(t, c.rdb)
}

func TestTieredCacheRedisRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()
	rdb, err := ConnectRedis(ctx, url)
	require.NoError(t, err)

	writer := NewTieredCache(CachePolicy{TTL: time.Minute}, WithRedis(rdb))
	writer.Put(ctx, "rEdIsTeSt01", bundle("rEdIsTeSt01"), AnalysisResult{Summary: "from redis"})

	rdb2, err := ConnectRedis(ctx, url)
	require.NoError(t, err)
	reader := NewTieredCache(CachePolicy{TTL: time.Minute}, WithRedis(rdb2))
	defer reader.Close()

	_, a, ok := reader.Get(ctx, "rEdIsTeSt01")
	require.True(t, ok)
	assert.Equal(t, "from redis", a.Summary)
	assert.Equal(t, 1, reader.Len())

	// the writer removes its keys on exit
	require.NoError(t, writer.Close())
	rdb3, err := ConnectRedis(ctx, url)
	require.NoError(t, err)
	after := NewTieredCache(CachePolicy{TTL: time.Minute}, WithRedis(rdb3))
	defer after.Close()
	_, _, ok = after.Get(ctx, "rEdIsTeSt01")
	assert.False(t, ok)
}

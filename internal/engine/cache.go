package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// VideoCache stores processed videos keyed by video id.
type VideoCache interface {
	Get(ctx context.Context, videoID string) (VideoBundle, AnalysisResult, bool)
	Put(ctx context.Context, videoID string, bundle VideoBundle, analysis AnalysisResult)
	Evict(ctx context.Context, videoID string)
	Len() int
}

// CachePolicy bounds the in-process tier. Zero values mean unbounded and
// never expiring.
type CachePolicy struct {
	MaxEntries      int
	TTL             time.Duration
	CleanupInterval time.Duration
}

// CachedVideo is the stored form of a processed video.
type CachedVideo struct {
	Bundle   VideoBundle    `json:"bundle"`
	Analysis AnalysisResult `json:"analysis"`
}

type cacheEntry struct {
	value     CachedVideo
	storedAt  time.Time
	expiresAt time.Time // zero = never
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// TieredCache implements VideoCache with L1 (memory) and optional L2 (Redis).
// L2 is shared between replicas while they run. Keys written by this process
// are removed on Close and otherwise expire with the policy TTL.
type TieredCache struct {
	mu      sync.Mutex
	l1      map[string]*cacheEntry
	rdb     *redis.Client       // nil if L2 disabled
	written map[string]struct{} // L2 keys set by this process
	policy  CachePolicy
	now     func() time.Time
	stop    chan struct{}
	stopped sync.Once
}

// CacheOption configures a TieredCache.
type CacheOption func(*TieredCache)

// WithRedis enables the L2 tier and hands rdb to the cache. Without a policy
// TTL the client is closed and L2 stays off.
func WithRedis(rdb *redis.Client) CacheOption {
	return func(c *TieredCache) { c.rdb = rdb }
}

// withClock overrides time.Now in tests.
func withClock(now func() time.Time) CacheOption {
	return func(c *TieredCache) { c.now = now }
}

// NewTieredCache builds the cache and starts the L1 cleanup loop when the
// policy has a TTL. Call Close to stop it.
func NewTieredCache(policy CachePolicy, opts ...CacheOption) *TieredCache {
	c := &TieredCache{
		l1:      make(map[string]*cacheEntry),
		written: make(map[string]struct{}),
		policy:  policy,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.rdb != nil && policy.TTL <= 0 {
		slog.Warn("cache: redis tier needs CACHE_TTL > 0, L2 disabled")
		c.rdb.Close()
		c.rdb = nil
	}
	if policy.TTL > 0 {
		go c.cleanupLoop()
	}
	slog.Info("cache: initialized",
		slog.Duration("ttl", policy.TTL),
		slog.Int("max_entries", policy.MaxEntries),
		slog.Bool("redis", c.rdb != nil))
	return c
}

// ConnectRedis parses url and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	slog.Info("cache: L2 redis connected", slog.String("addr", opts.Addr))
	return rdb, nil
}

func redisKey(videoID string) string {
	return "ytchat:video:" + videoID
}

// Get tries L1, then L2. On L2 hit, populates L1.
func (c *TieredCache) Get(ctx context.Context, videoID string) (VideoBundle, AnalysisResult, bool) {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.l1[videoID]; ok {
		if !e.expired(now) {
			c.mu.Unlock()
			slog.Debug("cache: L1 hit", slog.String("video_id", videoID))
			metrics.CacheHits.Add(1)
			return e.value.Bundle, e.value.Analysis, true
		}
		delete(c.l1, videoID)
	}
	c.mu.Unlock()

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, redisKey(videoID)).Bytes()
		if err == nil {
			var v CachedVideo
			if json.Unmarshal(data, &v) == nil {
				slog.Debug("cache: L2 hit", slog.String("video_id", videoID))
				metrics.CacheHits.Add(1)
				c.store(videoID, v)
				return v.Bundle, v.Analysis, true
			}
		} else if err != redis.Nil {
			slog.Debug("cache: L2 get failed", slog.Any("error", err))
		}
	}

	metrics.CacheMisses.Add(1)
	return VideoBundle{}, AnalysisResult{}, false
}

// Put stores the video in both tiers.
func (c *TieredCache) Put(ctx context.Context, videoID string, bundle VideoBundle, analysis AnalysisResult) {
	v := CachedVideo{Bundle: bundle, Analysis: analysis}
	c.store(videoID, v)

	if c.rdb != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		if err := c.rdb.Set(ctx, redisKey(videoID), data, c.policy.TTL).Err(); err != nil {
			slog.Debug("cache: L2 set failed", slog.Any("error", err))
			return
		}
		c.mu.Lock()
		c.written[redisKey(videoID)] = struct{}{}
		c.mu.Unlock()
	}
}

// Evict removes the video from both tiers.
func (c *TieredCache) Evict(ctx context.Context, videoID string) {
	c.mu.Lock()
	delete(c.l1, videoID)
	delete(c.written, redisKey(videoID))
	c.mu.Unlock()
	if c.rdb != nil {
		c.rdb.Del(ctx, redisKey(videoID))
	}
}

// Len returns the number of L1 entries, expired ones included until cleanup.
func (c *TieredCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.l1)
}

// Close stops the cleanup loop, deletes the L2 keys this process wrote and
// closes the Redis client.
func (c *TieredCache) Close() error {
	var err error
	c.stopped.Do(func() {
		close(c.stop)
		if c.rdb == nil {
			return
		}
		c.mu.Lock()
		keys := make([]string, 0, len(c.written))
		for k := range c.written {
			keys = append(keys, k)
		}
		c.written = make(map[string]struct{})
		c.mu.Unlock()
		if len(keys) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if derr := c.rdb.Del(ctx, keys...).Err(); derr != nil {
				slog.Debug("cache: L2 cleanup failed", slog.Any("error", derr))
			}
			cancel()
		}
		err = c.rdb.Close()
	})
	return err
}

func (c *TieredCache) store(videoID string, v CachedVideo) {
	now := c.now()
	e := &cacheEntry{value: v, storedAt: now}
	if c.policy.TTL > 0 {
		e.expiresAt = now.Add(c.policy.TTL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.l1[videoID]; !exists {
		c.evictLocked(now)
	}
	c.l1[videoID] = e
}

// evictLocked makes room for one entry: expired entries go first, then the
// oldest until under MaxEntries.
func (c *TieredCache) evictLocked(now time.Time) {
	if c.policy.MaxEntries <= 0 || len(c.l1) < c.policy.MaxEntries {
		return
	}
	for k, e := range c.l1 {
		if e.expired(now) {
			delete(c.l1, k)
			metrics.CacheEvictions.Add(1)
		}
	}
	for len(c.l1) >= c.policy.MaxEntries {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.l1 {
			if oldestKey == "" || e.storedAt.Before(oldestAt) {
				oldestKey, oldestAt = k, e.storedAt
			}
		}
		delete(c.l1, oldestKey)
		metrics.CacheEvictions.Add(1)
	}
}

// purgeExpired removes expired L1 entries.
func (c *TieredCache) purgeExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.l1 {
		if e.expired(now) {
			delete(c.l1, k)
		}
	}
}

// cleanupLoop periodically removes expired L1 entries.
func (c *TieredCache) cleanupLoop() {
	interval := c.policy.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.stop:
			return
		}
	}
}

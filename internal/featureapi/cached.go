package featureapi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/viewport-layers/internal/cache"
	"github.com/mohammed-shakir/viewport-layers/internal/cache/keys"
	"github.com/mohammed-shakir/viewport-layers/internal/core/observability"
)

type entry struct {
	body []byte
	exp  time.Time
}

type CacheConfig struct {
	LRUSize   int
	OpTimeout time.Duration
	TTL       func(layer string) time.Duration
}

// Cached serves repeated queries from an in-process LRU and, when a store is
// configured, from Redis. Cache failures fall through to the API.
type Cached struct {
	next   RawFetcher
	store  cache.Store
	lru    *lru.Cache[string, entry]
	cfg    CacheConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewCached wraps next. store may be nil for an LRU-only cache.
func NewCached(next RawFetcher, store cache.Store, cfg CacheConfig, logger *slog.Logger) (*Cached, error) {
	if cfg.LRUSize <= 0 {
		cfg.LRUSize = 64
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if cfg.TTL == nil {
		cfg.TTL = func(string) time.Duration { return time.Minute }
	}
	l, err := lru.New[string, entry](cfg.LRUSize)
	if err != nil {
		return nil, fmt.Errorf("new lru: %w", err)
	}
	return &Cached{next: next, store: store, lru: l, cfg: cfg, logger: logger, now: time.Now}, nil
}

func (c *Cached) Features(ctx context.Context, q Query) (*geojson.FeatureCollection, error) {
	b, fc, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if fc != nil {
		return fc, nil
	}
	return Decode(b)
}

func (c *Cached) FetchRaw(ctx context.Context, q Query) ([]byte, error) {
	b, _, err := c.fetch(ctx, q)
	return b, err
}

// fetch also returns the decoded collection when it had to decode on a miss.
func (c *Cached) fetch(ctx context.Context, q Query) ([]byte, *geojson.FeatureCollection, error) {
	key := keys.Key(keys.Query{
		Layer: q.Layer, Endpoint: q.Endpoint, Table: q.Table,
		BBox: q.BBox, Limit: q.Limit, Offset: q.Offset,
	})
	ttl := c.cfg.TTL(q.Layer)

	if e, ok := c.lru.Get(key); ok {
		if c.now().Before(e.exp) {
			observability.IncCacheResult("lru", "hit")
			return e.body, nil, nil
		}
		c.lru.Remove(key)
	}
	observability.IncCacheResult("lru", "miss")

	if c.store != nil {
		opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
		b, found, err := c.store.Get(opCtx, key)
		cancel()
		switch {
		case err != nil:
			observability.IncCacheResult("redis", "error")
			c.warn(ctx, "cache get failed", key, err)
		case found:
			observability.IncCacheResult("redis", "hit")
			c.lru.Add(key, entry{body: b, exp: c.now().Add(ttl)})
			return b, nil, nil
		default:
			observability.IncCacheResult("redis", "miss")
		}
	}

	b, err := c.next.FetchRaw(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	// only well-formed collections are worth keeping
	fc, err := Decode(b)
	if err != nil {
		return nil, nil, err
	}
	c.lru.Add(key, entry{body: b, exp: c.now().Add(ttl)})
	if c.store != nil && ttl > 0 {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.OpTimeout)
		if err := c.store.Set(opCtx, key, b, ttl); err != nil {
			observability.IncCacheResult("redis", "error")
			c.warn(ctx, "cache set failed", key, err)
		}
		cancel()
	}
	return b, fc, nil
}

// Invalidate drops every cached response for layer.
func (c *Cached) Invalidate(ctx context.Context, layer string) error {
	prefix := keys.LayerPrefix(layer)
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
	if c.store == nil {
		return nil
	}
	n, err := c.store.DelPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", layer, err)
	}
	if c.logger != nil {
		c.logger.InfoContext(ctx, "cache invalidated", "layer", layer, "redis_keys", n)
	}
	return nil
}

func (c *Cached) warn(ctx context.Context, msg, key string, err error) {
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, "key", key, "err", err)
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/viewport-layers/internal/cache"
	"github.com/mohammed-shakir/viewport-layers/internal/cache/redisstore"
	"github.com/mohammed-shakir/viewport-layers/internal/core/health"
	"github.com/mohammed-shakir/viewport-layers/internal/core/httpclient"
	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/engine"
	"github.com/mohammed-shakir/viewport-layers/internal/featureapi"
	"github.com/mohammed-shakir/viewport-layers/internal/layer"
	"github.com/mohammed-shakir/viewport-layers/internal/render"
)

type stack struct {
	eng    *engine.Engine
	specs  []layer.Spec
	checks map[string]health.Check
	close  func()
}

// buildStack wires the features API client, the optional cache tiers and
// the engine.
func buildStack(ctx context.Context, log *slog.Logger, obs engine.Observer, hook func(model.Snapshot)) (*stack, error) {
	client, err := featureapi.New(log, httpclient.NewOutbound(), cfg.FeaturesAPIURL)
	if err != nil {
		return nil, fmt.Errorf("features api: %w", err)
	}

	st := &stack{checks: map[string]health.Check{}, close: func() {}}
	var (
		fetcher featureapi.Fetcher = client
		inval   engine.CacheInvalidator
	)
	if cfg.CacheEnabled {
		var store cache.Store
		rs, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, using in-process cache only", "addr", cfg.RedisAddr, "err", err)
		} else {
			store = rs
			st.close = func() { _ = rs.Close() }
			st.checks["redis"] = func(ctx context.Context) error {
				_, _, err := rs.Get(ctx, "readyz")
				return err
			}
		}
		cached, err := featureapi.NewCached(client, store, featureapi.CacheConfig{
			LRUSize:   cfg.CacheLRUSize,
			OpTimeout: cfg.CacheOpTimeout,
			TTL:       cfg.TTLFor,
		}, log)
		if err != nil {
			st.close()
			return nil, err
		}
		fetcher, inval = cached, cached
	}

	st.specs = layer.Override(layer.Catalog(), cfg.LayerBands, cfg.LayerPads)
	eng, err := engine.New(engine.Options{
		Specs:      st.specs,
		Fetcher:    fetcher,
		Zonal:      client,
		Cache:      inval,
		Observer:   obs,
		BatchSize:  cfg.RenderBatchSize,
		Scheduler:  render.FrameScheduler{Delay: cfg.RenderFrameDelay},
		Logger:     log,
		OnSnapshot: hook,
	})
	if err != nil {
		st.close()
		return nil, err
	}
	st.eng = eng
	closeStore := st.close
	st.close = func() {
		eng.Close()
		closeStore()
	}
	return st, nil
}

// activeLayers lists the layers whose zoom band holds zoom.
func activeLayers(specs []layer.Spec, zoom int) []string {
	var out []string
	for _, s := range specs {
		if s.Active(zoom) {
			out = append(out, s.ID)
		}
	}
	return out
}

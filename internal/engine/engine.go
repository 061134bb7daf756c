// Package engine owns every layer controller and drives them from one
// viewport stream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/coverage"
	"github.com/mohammed-shakir/viewport-layers/internal/featureapi"
	"github.com/mohammed-shakir/viewport-layers/internal/layer"
	"github.com/mohammed-shakir/viewport-layers/internal/logger"
	"github.com/mohammed-shakir/viewport-layers/internal/render"
	"github.com/mohammed-shakir/viewport-layers/internal/scene"
	"github.com/mohammed-shakir/viewport-layers/internal/style"
	"github.com/mohammed-shakir/viewport-layers/internal/viewport"
	"github.com/mohammed-shakir/viewport-layers/internal/zonal"
)

type (
	Observer    = layer.Observer
	NopObserver = layer.NopObserver
)

var (
	ErrUnknownLayer = errors.New("unknown layer")
	ErrNoZonal      = errors.New("layer has no zonal statistics")
)

// ZonalClient is the zonal statistics side of the features API.
type ZonalClient interface {
	Zonal(ctx context.Context, endpoint, table string, g orb.Geometry) (featureapi.ZonalStats, error)
}

// CacheInvalidator drops cached responses of a layer.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, layer string) error
}

type Options struct {
	Specs    []layer.Spec
	Fetcher  featureapi.Fetcher
	Zonal    ZonalClient
	Cache    CacheInvalidator
	Observer Observer

	BatchSize int
	Scheduler render.Scheduler
	Logger    *slog.Logger

	// OnSnapshot runs after every controller has seen a snapshot.
	OnSnapshot func(model.Snapshot)
}

type Engine struct {
	log      *slog.Logger
	surface  *scene.Surface
	coverage *coverage.Registry
	zonal    ZonalClient
	cache    CacheInvalidator
	hook     func(model.Snapshot)

	order  []*layer.Controller
	layers map[string]*layer.Controller

	mu      sync.Mutex
	last    model.Snapshot
	hasLast bool
	unsub   []func()
	closed  bool
}

func New(opts Options) (*Engine, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("engine: fetcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	e := &Engine{
		log:      opts.Logger.With("component", "engine"),
		surface:  scene.NewSurface(),
		coverage: coverage.NewRegistry(),
		zonal:    opts.Zonal,
		cache:    opts.Cache,
		hook:     opts.OnSnapshot,
		layers:   make(map[string]*layer.Controller, len(opts.Specs)),
	}
	for _, spec := range opts.Specs {
		if _, dup := e.layers[spec.ID]; dup {
			e.closeLayers()
			return nil, fmt.Errorf("engine: duplicate layer %q", spec.ID)
		}
		c, err := layer.NewController(spec, layer.Deps{
			Fetcher:   opts.Fetcher,
			Surface:   e.surface,
			Coverage:  e.coverage,
			Observer:  opts.Observer,
			BatchSize: opts.BatchSize,
			Scheduler: opts.Scheduler,
			Logger:    opts.Logger,
		})
		if err != nil {
			e.closeLayers()
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.order = append(e.order, c)
		e.layers[spec.ID] = c
	}
	return e, nil
}

// Attach subscribes the engine to t. Snapshots reach the layers in catalog
// order.
func (e *Engine) Attach(t *viewport.Tracker) {
	off := t.Subscribe(e.OnViewport)
	e.mu.Lock()
	e.unsub = append(e.unsub, off)
	e.mu.Unlock()
}

func (e *Engine) OnViewport(s model.Snapshot) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.last, e.hasLast = s, true
	e.mu.Unlock()

	for _, c := range e.order {
		c.OnViewport(s)
	}
	if e.hook != nil {
		e.hook(s)
	}
}

// Snapshot returns the last viewport seen.
func (e *Engine) Snapshot() (model.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

func (e *Engine) Layer(id string) (*layer.Controller, bool) {
	c, ok := e.layers[id]
	return c, ok
}

func (e *Engine) lookup(id string) (*layer.Controller, error) {
	c, ok := e.layers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, id)
	}
	return c, nil
}

func (e *Engine) Layers() []layer.Status {
	out := make([]layer.Status, 0, len(e.order))
	for _, c := range e.order {
		out = append(out, c.State())
	}
	return out
}

func (e *Engine) Surface() *scene.Surface { return e.surface }

func (e *Engine) Toggle(id string, on bool) error {
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	c.SetEnabled(on)
	return nil
}

func (e *Engine) SetMode(id string, m style.Mode) error {
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	return c.SetMode(m)
}

func (e *Engine) SetTable(id, table string) error {
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	c.SetTable(table)
	return nil
}

func (e *Engine) Click(id string, pt orb.Point) (*geojson.Feature, bool, error) {
	c, err := e.lookup(id)
	if err != nil {
		return nil, false, err
	}
	f, ok := c.Click(pt)
	return f, ok, nil
}

// Zonal computes statistics of layer id inside shape, using the layer's
// current table.
func (e *Engine) Zonal(ctx context.Context, id string, shape zonal.Shape) (featureapi.ZonalStats, error) {
	c, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	endpoint := c.Spec().ZonalEndpoint
	if endpoint == "" || e.zonal == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoZonal, id)
	}
	g, err := shape.Geometry()
	if err != nil {
		return nil, err
	}
	stats, err := e.zonal.Zonal(ctx, endpoint, c.Table(), g)
	if err != nil {
		return nil, fmt.Errorf("zonal %s: %w", id, err)
	}
	return stats, nil
}

// Invalidate drops cached data of layer id and forgets its coverage when
// bbox is nil or touches it. It reports whether coverage was reset.
func (e *Engine) Invalidate(ctx context.Context, id string, bbox *model.BBox) (bool, error) {
	c, err := e.lookup(id)
	if err != nil {
		return false, err
	}
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, id); err != nil {
			// coverage still resets; the next fetch may hit a stale redis entry
			e.log.WarnContext(ctx, "cache invalidation failed", "layer", id, "err", err)
		}
	}
	return c.Invalidate(bbox), nil
}

func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsub := e.unsub
	e.unsub = nil
	e.mu.Unlock()

	for _, off := range unsub {
		off()
	}
	e.closeLayers()
}

func (e *Engine) closeLayers() {
	for _, c := range e.order {
		c.Close()
	}
}

// Wait blocks until no layer pipeline is running.
func (e *Engine) Wait() {
	for _, c := range e.order {
		c.Wait()
	}
}

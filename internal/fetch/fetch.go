// Package fetch plans padded, budgeted feature requests and keeps at most
// one request in flight per layer.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/featureapi"
)

// ErrCanceled marks a fetch superseded by a newer viewport or torn down.
// It is never a failure.
var ErrCanceled = errors.New("fetch canceled")

func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// Budget caps features by zoom: Max at FullZoom and above, halved for every
// level below, never under Min. A zero Max means no limit.
type Budget struct {
	Max      int
	Min      int
	FullZoom int
}

func (b Budget) Limit(zoom int) int {
	if b.Max <= 0 {
		return 0
	}
	if zoom >= b.FullZoom {
		return b.Max
	}
	shift := min(b.FullZoom-zoom, 30)
	n := b.Max >> shift
	return max(n, b.Min, 1)
}

type PlanConfig struct {
	Layer    string
	Endpoint string
	Table    string
	Pad      float64
	Budget   Budget
}

// Plan pads the viewport rectangle and sizes the request for zoom.
func Plan(rect model.BBox, zoom int, cfg PlanConfig) featureapi.Query {
	return featureapi.Query{
		Layer:    cfg.Layer,
		Endpoint: cfg.Endpoint,
		Table:    cfg.Table,
		BBox:     rect.Pad(cfg.Pad),
		Limit:    cfg.Budget.Limit(zoom),
	}
}

// Ticket identifies one Begin call.
type Ticket uint64

type Coordinator struct {
	src      featureapi.Fetcher
	pageSize int

	mu     sync.Mutex
	gen    uint64
	active bool
	cancel context.CancelFunc
}

// NewCoordinator pages through results when pageSize > 0.
func NewCoordinator(src featureapi.Fetcher, pageSize int) *Coordinator {
	return &Coordinator{src: src, pageSize: pageSize}
}

// Begin cancels any active fetch and starts a new one.
func (c *Coordinator) Begin(parent context.Context) (context.Context, Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.active = true
	return ctx, Ticket(c.gen)
}

func (c *Coordinator) IsCurrent(t Ticket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && uint64(t) == c.gen
}

// Finish releases t if it is still current.
func (c *Coordinator) Finish(t Ticket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || uint64(t) != c.gen {
		return false
	}
	c.active = false
	c.cancel()
	c.cancel = nil
	return true
}

// Cancel aborts the active fetch; its ticket stops being current.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.active = false
}

func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Fetch runs q under ctx. A cancelled ctx yields an ErrCanceled error.
func (c *Coordinator) Fetch(ctx context.Context, q featureapi.Query) (*geojson.FeatureCollection, error) {
	var (
		fc  *geojson.FeatureCollection
		err error
	)
	if c.pageSize > 0 {
		fc, err = featureapi.All(ctx, c.src, q, c.pageSize)
	} else {
		fc, err = c.src.Features(ctx, q)
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, fmt.Errorf("%w: %w", ErrCanceled, cerr)
	}
	if err != nil {
		return nil, err
	}
	return fc, nil
}

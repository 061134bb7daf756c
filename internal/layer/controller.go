package layer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/core/observability"
	"github.com/mohammed-shakir/viewport-layers/internal/coverage"
	"github.com/mohammed-shakir/viewport-layers/internal/featureapi"
	"github.com/mohammed-shakir/viewport-layers/internal/fetch"
	"github.com/mohammed-shakir/viewport-layers/internal/logger"
	"github.com/mohammed-shakir/viewport-layers/internal/render"
	"github.com/mohammed-shakir/viewport-layers/internal/scene"
	"github.com/mohammed-shakir/viewport-layers/internal/style"
	"github.com/mohammed-shakir/viewport-layers/internal/swap"
)

var ErrNoModes = errors.New("layer has no color modes")

// Observer receives the layer's outputs. Calls are made while the
// controller holds its lock: implementations must not block and must not
// call back into the controller.
type Observer interface {
	LayerLoading(id string, loading bool)
	LayerError(id string, err error)
	LegendChanged(id string, bins style.Bins)
	FeatureClicked(id string, f *geojson.Feature)
}

type NopObserver struct{}

func (NopObserver) LayerLoading(string, bool) {}
func (NopObserver) LayerError(string, error) {}
func (NopObserver) LegendChanged(string, style.Bins) {}
func (NopObserver) FeatureClicked(string, *geojson.Feature) {}

type Deps struct {
	Fetcher   featureapi.Fetcher
	Surface   *scene.Surface
	Coverage  *coverage.Registry
	Observer  Observer
	BatchSize int
	Scheduler render.Scheduler
	Logger    *slog.Logger
}

type Status struct {
	ID          string      `json:"id"`
	Enabled     bool        `json:"enabled"`
	Active      bool        `json:"active"`
	Loading     bool        `json:"loading"`
	Zoom        int         `json:"zoom"`
	Band        Band        `json:"band"`
	Displayed   int         `json:"displayed"`
	Coverage    *model.BBox `json:"coverage,omitempty"`
	Mode        style.Mode  `json:"mode,omitempty"`
	Table       string      `json:"table,omitempty"`
	Legend      style.Bins  `json:"legend,omitempty"`
	PaneOpacity float64     `json:"pane_opacity"`
}

type Controller struct {
	spec  Spec
	deps  Deps
	log   *slog.Logger
	obs   Observer
	coord *fetch.Coordinator
	swap  *swap.Manager
	pane  *scene.Pane

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// read by materializers outside mu
	zoom atomic.Int64
	mode atomic.Value

	mu      sync.Mutex
	enabled bool
	active  bool
	loading bool
	closed  bool
	last    model.Snapshot
	hasLast bool
	table   string
	legend  style.Bins
}

func NewController(spec Spec, deps Deps) (*Controller, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil || deps.Surface == nil {
		return nil, fmt.Errorf("layer %s: fetcher and surface are required", spec.ID)
	}
	if deps.Coverage == nil {
		deps.Coverage = coverage.NewRegistry()
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	policy, err := coverage.New(spec.Coverage, coverage.Options{Threshold: spec.Threshold, Resolution: spec.CellRes})
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", spec.ID, err)
	}
	deps.Coverage.Register(spec.ID, policy)

	paneName := spec.Pane
	if paneName == "" {
		paneName = spec.ID + "-pane"
	}
	pane := deps.Surface.Pane(paneName, spec.Z)

	base, stop := context.WithCancel(context.Background())
	c := &Controller{
		spec:    spec,
		deps:    deps,
		log:     deps.Logger.With("layer", spec.ID),
		obs:     deps.Observer,
		coord:   fetch.NewCoordinator(deps.Fetcher, spec.PageSize),
		swap:    swap.New(pane, spec.ID, swap.Options{FadeOpacity: spec.FadeOpacity, Accumulate: spec.Accumulate}),
		pane:    pane,
		base:    base,
		stop:    stop,
		enabled: true,
		table:   spec.Table,
	}
	c.mode.Store(spec.Mode)
	c.zoom.Store(-1)
	return c, nil
}

func (c *Controller) ID() string { return c.spec.ID }
func (c *Controller) Spec() Spec { return c.spec }

// OnViewport runs the pipeline for one settled snapshot.
func (c *Controller) OnViewport(s model.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.last, c.hasLast = s, true
	c.applyLocked(s)
}

func (c *Controller) applyLocked(s model.Snapshot) {
	if !c.enabled || !c.spec.Active(s.Zoom) {
		if c.active {
			reason := "zoom"
			if !c.enabled {
				reason = "disabled"
			}
			c.deactivateLocked(reason)
		} else {
			observability.IncFetchSkipped(c.spec.ID, "inactive")
		}
		return
	}
	if !c.active {
		c.active = true
		c.log.Debug("layer activated", "zoom", s.Zoom)
	}

	if prev := c.zoom.Swap(int64(s.Zoom)); prev != int64(s.Zoom) && c.spec.Radius != nil {
		c.restyleRadiusLocked(s.Zoom)
	}

	q := fetch.Plan(s.BBox, s.Zoom, fetch.PlanConfig{
		Layer:    c.spec.ID,
		Endpoint: c.spec.Endpoint,
		Table:    c.table,
		Pad:      c.spec.Pad,
		Budget:   c.spec.Budget,
	})
	if !c.deps.Coverage.ShouldFetch(c.spec.ID, q.BBox) {
		observability.IncFetchSkipped(c.spec.ID, "covered")
		// a fetch for an older viewport must not commit over this one
		if c.coord.Active() {
			c.coord.Cancel()
			c.swap.Abort()
			c.setLoadingLocked(false)
		}
		return
	}
	c.startLocked(s, q)
}

func (c *Controller) startLocked(s model.Snapshot, q featureapi.Query) {
	ctx, t := c.coord.Begin(c.base)
	pending := c.swap.Begin()
	c.setLoadingLocked(true)

	ctx = logger.WithFetch(logger.WithViewport(ctx, s), "", uint64(t))
	c.wg.Add(1)
	go c.run(ctx, t, q, pending)
}

func (c *Controller) run(ctx context.Context, t fetch.Ticket, q featureapi.Query, pending *scene.Layer) {
	defer c.wg.Done()
	start := time.Now()

	fc, err := c.coord.Fetch(ctx, q)
	if err != nil {
		c.finishFailed(ctx, t, pending, err, start)
		return
	}
	feats := withGeometry(fc.Features)
	if len(feats) == 0 {
		c.finishEmpty(t, pending, q.BBox, start)
		return
	}

	var adaptive *style.Palette
	if n := c.spec.Color.Adaptive; n > 0 {
		if p, ok := (style.Adaptive{Attribute: c.spec.Color.Attribute, N: n}).Compute(feats); ok {
			adaptive = &p
		}
	}

	r := render.Renderer{
		BatchSize:   c.deps.BatchSize,
		Scheduler:   c.deps.Scheduler,
		Materialize: c.materializer(adaptive),
		OnBatch:     func(int) { observability.IncRenderBatch(c.spec.ID) },
	}
	if err := r.Render(ctx, feats, pending); err != nil {
		c.finishFailed(ctx, t, pending, err, start)
		return
	}
	c.finishCommitted(ctx, t, pending, q.BBox, adaptive, len(feats), start)
}

func (c *Controller) finishFailed(ctx context.Context, t fetch.Ticket, pending *scene.Layer, err error, start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	canceled := fetch.IsCanceled(err) || ctx.Err() != nil
	if canceled {
		observability.ObserveFetch(c.spec.ID, "canceled", 0)
	}
	// a superseded run owns nothing anymore
	if !c.coord.Finish(t) {
		return
	}
	c.swap.Discard(pending)
	c.setLoadingLocked(false)
	if canceled {
		return
	}
	observability.ObserveFetch(c.spec.ID, "error", time.Since(start).Seconds())
	c.log.WarnContext(ctx, "layer fetch failed", "err", err, "duration", time.Since(start))
	c.obs.LayerError(c.spec.ID, err)
}

func (c *Controller) finishEmpty(t fetch.Ticket, pending *scene.Layer, rect model.BBox, start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.coord.Finish(t) {
		return
	}
	c.deps.Coverage.RecordFetched(c.spec.ID, rect)
	c.swap.KeepCurrent(pending)
	c.setLoadingLocked(false)
	observability.ObserveFetch(c.spec.ID, "empty", time.Since(start).Seconds())
	c.log.Debug("layer fetch empty, keeping displayed", "bbox", rect.String())
}

func (c *Controller) finishCommitted(ctx context.Context, t fetch.Ticket, pending *scene.Layer, rect model.BBox, adaptive *style.Palette, n int, start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.coord.Finish(t) {
		return
	}
	c.deps.Coverage.RecordFetched(c.spec.ID, rect)

	kind := "replace"
	if c.spec.Accumulate && c.swap.Displayed() != nil {
		kind = "absorb"
	}
	c.swap.Commit(pending)
	c.setLoadingLocked(false)

	observability.IncSwap(c.spec.ID, kind)
	observability.ObserveFetch(c.spec.ID, "ok", time.Since(start).Seconds())
	displayed := 0
	if d := c.swap.Displayed(); d != nil {
		displayed = d.Len()
	}
	observability.SetDisplayed(c.spec.ID, displayed)

	if adaptive != nil {
		c.legend = adaptive.Bins
		c.obs.LegendChanged(c.spec.ID, adaptive.Bins)
	}
	c.log.InfoContext(ctx, "layer swapped",
		"features", n, "displayed", displayed, "kind", kind, "duration", time.Since(start))
}

func (c *Controller) deactivateLocked(reason string) {
	c.coord.Cancel()
	c.swap.Teardown()
	c.deps.Coverage.Reset(c.spec.ID)
	c.active = false
	c.legend = nil
	c.zoom.Store(-1)
	c.setLoadingLocked(false)
	observability.SetDisplayed(c.spec.ID, 0)
	c.log.Debug("layer deactivated", "reason", reason)
}

func (c *Controller) setLoadingLocked(v bool) {
	if c.loading == v {
		return
	}
	c.loading = v
	observability.SetLoading(c.spec.ID, v)
	c.obs.LayerLoading(c.spec.ID, v)
}

func (c *Controller) SetEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.enabled == on {
		return
	}
	c.enabled = on
	if !on {
		if c.active {
			c.deactivateLocked("disabled")
		}
		return
	}
	if c.hasLast {
		c.applyLocked(c.last)
	}
}

// SetMode switches the palette of a mode-colored layer and restyles what is
// already drawn. No refetch happens.
func (c *Controller) SetMode(m style.Mode) error {
	if len(c.spec.Color.ByMode) == 0 {
		return fmt.Errorf("layer %s: %w", c.spec.ID, ErrNoModes)
	}
	pal, ok := c.spec.Color.ByMode[m]
	if !ok {
		return fmt.Errorf("layer %s: no palette for mode %q", c.spec.ID, m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.mode.Store(m)
	attr := c.spec.Color.Attribute
	recolor := func(p *scene.Primitive) { p.Color = pal.ColorOf(p.Feature, attr) }
	if d := c.swap.Displayed(); d != nil {
		d.Restyle(recolor)
	}
	if p := c.swap.Pending(); p != nil {
		p.Restyle(recolor)
	}
	c.legend = pal.Bins
	c.obs.LegendChanged(c.spec.ID, pal.Bins)
	return nil
}

// SetTable changes the dataset. Coverage is reset and an active layer
// refetches at once; the displayed layer stays until the new data commits.
func (c *Controller) SetTable(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || table == c.table {
		return
	}
	c.table = table
	c.coord.Cancel()
	c.swap.Abort()
	c.setLoadingLocked(false)
	c.deps.Coverage.Reset(c.spec.ID)
	if c.spec.Accumulate {
		c.swap.Teardown()
	}
	if c.active && c.hasLast {
		c.applyLocked(c.last)
	}
}

// Invalidate forgets coverage after an upstream data change. With a bbox,
// nothing happens unless it touches the covered extent. It reports whether
// coverage was reset.
func (c *Controller) Invalidate(bbox *model.BBox) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	if bbox != nil {
		ext, ok := c.deps.Coverage.Extent(c.spec.ID)
		if !ok || !ext.Intersects(*bbox) {
			return false
		}
	}
	c.deps.Coverage.Reset(c.spec.ID)
	if c.active && c.hasLast {
		c.applyLocked(c.last)
	}
	return true
}

// HitTest finds the displayed feature under pt.
func (c *Controller) HitTest(pt orb.Point) (*geojson.Feature, bool) {
	if !c.spec.Interactive {
		return nil, false
	}
	d := c.swap.Displayed()
	if d == nil {
		return nil, false
	}
	zoom := int(c.zoom.Load())
	px := 3.0
	if c.spec.Radius != nil && zoom >= 0 {
		px = math.Max(px, c.spec.Radius.At(zoom))
	}
	p, ok := d.HitTest(pt, px*degreesPerPixel(max(zoom, 0)))
	if !ok {
		return nil, false
	}
	return p.Feature, true
}

// Click reports the feature under pt to the observer.
func (c *Controller) Click(pt orb.Point) (*geojson.Feature, bool) {
	f, ok := c.HitTest(pt)
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs.FeatureClicked(c.spec.ID, f)
	return f, true
}

// Close cancels in-flight work, removes the layer and waits for the
// pipeline goroutines to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.active {
		c.deactivateLocked("closed")
	} else {
		c.coord.Cancel()
	}
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
}

func (c *Controller) Table() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table
}

func (c *Controller) State() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		ID:          c.spec.ID,
		Enabled:     c.enabled,
		Active:      c.active,
		Loading:     c.loading,
		Zoom:        c.last.Zoom,
		Band:        c.spec.Band,
		Table:       c.table,
		Legend:      c.legend,
		PaneOpacity: c.pane.Opacity(),
	}
	if m, _ := c.mode.Load().(style.Mode); m != "" {
		st.Mode = m
	}
	if d := c.swap.Displayed(); d != nil {
		st.Displayed = d.Len()
	}
	if ext, ok := c.deps.Coverage.Extent(c.spec.ID); ok {
		st.Coverage = &ext
	}
	return st
}

// Displayed exports the displayed layer, empty when nothing is shown.
func (c *Controller) Displayed() *geojson.FeatureCollection {
	if d := c.swap.Displayed(); d != nil {
		return d.FeatureCollection()
	}
	return geojson.NewFeatureCollection()
}

// Wait blocks until no pipeline goroutine is running.
func (c *Controller) Wait() { c.wg.Wait() }

func (c *Controller) materializer(adaptive *style.Palette) render.Materializer {
	return func(f *geojson.Feature) scene.Primitive {
		p := scene.Primitive{Feature: f, Kind: kindOf(f.Geometry)}
		p.Color = c.colorFor(f, adaptive)
		if p.Kind == scene.KindPoint && c.spec.Radius != nil {
			p.Radius = c.spec.Radius.At(int(c.zoom.Load()))
		}
		return p
	}
}

func (c *Controller) colorFor(f *geojson.Feature, adaptive *style.Palette) string {
	col := c.spec.Color
	switch {
	case col.Static != "":
		return col.Static
	case adaptive != nil:
		return adaptive.ColorOf(f, col.Attribute)
	case len(col.ByMode) > 0:
		m, _ := c.mode.Load().(style.Mode)
		return col.ByMode[m].ColorOf(f, col.Attribute)
	case col.Palette != nil:
		return col.Palette.ColorOf(f, col.Attribute)
	default:
		return style.Neutral
	}
}

func (c *Controller) restyleRadiusLocked(zoom int) {
	r := c.spec.Radius.At(zoom)
	resize := func(p *scene.Primitive) {
		if p.Kind == scene.KindPoint {
			p.Radius = r
		}
	}
	if d := c.swap.Displayed(); d != nil {
		d.Restyle(resize)
	}
	if p := c.swap.Pending(); p != nil {
		p.Restyle(resize)
	}
}

func kindOf(g orb.Geometry) scene.Kind {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return scene.KindPoint
	default:
		return scene.KindShape
	}
}

func withGeometry(fs []*geojson.Feature) []*geojson.Feature {
	out := fs[:0:0]
	for _, f := range fs {
		if f != nil && f.Geometry != nil {
			out = append(out, f)
		}
	}
	return out
}

// web mercator degrees of longitude per 256px-tile pixel
func degreesPerPixel(zoom int) float64 {
	return 360 / (256 * math.Exp2(float64(zoom)))
}

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/coverage"
	"github.com/mohammed-shakir/viewport-layers/internal/featureapi"
	"github.com/mohammed-shakir/viewport-layers/internal/layer"
	"github.com/mohammed-shakir/viewport-layers/internal/render"
	"github.com/mohammed-shakir/viewport-layers/internal/viewport"
	"github.com/mohammed-shakir/viewport-layers/internal/zonal"
)

type fetcher struct {
	mu     sync.Mutex
	layers []string
}

func (f *fetcher) Features(_ context.Context, q featureapi.Query) (*geojson.FeatureCollection, error) {
	f.mu.Lock()
	f.layers = append(f.layers, q.Layer)
	f.mu.Unlock()
	fc := geojson.NewFeatureCollection()
	feat := geojson.NewFeature(orb.Polygon{{{-3.70, 40.40}, {-3.69, 40.40}, {-3.69, 40.41}, {-3.70, 40.40}}})
	feat.ID = q.Layer
	fc.Append(feat)
	return fc, nil
}

func (f *fetcher) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.layers...)
}

type zonalClient struct {
	endpoint, table string
	geom            orb.Geometry
}

func (z *zonalClient) Zonal(_ context.Context, endpoint, table string, g orb.Geometry) (featureapi.ZonalStats, error) {
	z.endpoint, z.table, z.geom = endpoint, table, g
	return featureapi.ZonalStats{"count": 12.0}, nil
}

type cacheSpy struct {
	layers []string
	err    error
}

func (c *cacheSpy) Invalidate(_ context.Context, l string) error {
	c.layers = append(c.layers, l)
	return c.err
}

func specs() []layer.Spec {
	return []layer.Spec{
		{
			ID: "low", Endpoint: "/low", Band: layer.Band{Min: 10, Max: 16},
			Coverage: coverage.StrategyUnion, FadeOpacity: 1, Interactive: true,
			Color: layer.Color{Static: "#111111"},
		},
		{
			ID: "high", Endpoint: "/high", ZonalEndpoint: "/high/zonal", Table: "t1",
			Band: layer.Band{Min: 15, Max: 19}, Pad: 0.1,
			Coverage: coverage.StrategyMovement, FadeOpacity: 1,
			Color: layer.Color{Static: "#222222"},
		},
	}
}

var view = model.BBox{X1: -3.70, Y1: 40.40, X2: -3.69, Y2: 40.41}

func newEngine(t *testing.T, opts Options) (*Engine, *fetcher) {
	t.Helper()
	f := &fetcher{}
	if opts.Specs == nil {
		opts.Specs = specs()
	}
	opts.Fetcher = f
	opts.Scheduler = render.SchedulerFunc(func(context.Context) error { return nil })
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e, f
}

func TestEngine_TrackerDrivesActiveLayers(t *testing.T) {
	var hooked []model.Snapshot
	e, f := newEngine(t, Options{OnSnapshot: func(s model.Snapshot) { hooked = append(hooked, s) }})

	m := viewport.NewManual(view, 16)
	tr := viewport.New(m, time.Millisecond, nil)
	e.Attach(tr)
	tr.Start()
	defer tr.Stop()
	e.Wait()

	got := f.seen()
	if len(got) != 2 {
		t.Fatalf("both layers are active at z16, fetched %v", got)
	}
	if len(hooked) != 1 || hooked[0].Zoom != 16 {
		t.Fatalf("hook got %v", hooked)
	}
	st := e.Layers()
	if st[0].ID != "low" || st[1].ID != "high" || st[0].Displayed != 1 || st[1].Displayed != 1 {
		t.Fatalf("unexpected statuses %+v", st)
	}

	e.OnViewport(model.Snapshot{BBox: view, Zoom: 18})
	e.Wait()
	st = e.Layers()
	if st[0].Active || st[0].Displayed != 0 || !st[1].Active {
		t.Fatalf("low must be gated out at z18: %+v", st)
	}
	if s, ok := e.Snapshot(); !ok || s.Zoom != 18 {
		t.Fatalf("snapshot got %+v", s)
	}
}

func TestEngine_UnknownLayer(t *testing.T) {
	e, _ := newEngine(t, Options{})
	if err := e.Toggle("nope", false); !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("Toggle: %v", err)
	}
	if err := e.SetTable("nope", "x"); !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("SetTable: %v", err)
	}
	if _, _, err := e.Click("nope", orb.Point{}); !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("Click: %v", err)
	}
	if _, err := e.Invalidate(context.Background(), "nope", nil); !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("Invalidate: %v", err)
	}
}

func TestEngine_Zonal(t *testing.T) {
	zc := &zonalClient{}
	e, _ := newEngine(t, Options{Zonal: zc})

	stats, err := e.Zonal(context.Background(), "high", zonal.Circle(orb.Point{-3.7, 40.4}, 100))
	if err != nil {
		t.Fatalf("Zonal: %v", err)
	}
	if stats.Count() != 12 || zc.endpoint != "/high/zonal" || zc.table != "t1" {
		t.Fatalf("unexpected call %+v stats=%v", zc, stats)
	}
	if _, ok := zc.geom.(orb.Polygon); !ok {
		t.Fatalf("circle must be sent as polygon, got %T", zc.geom)
	}

	if _, err := e.Zonal(context.Background(), "low", zonal.Circle(orb.Point{}, 100)); !errors.Is(err, ErrNoZonal) {
		t.Fatalf("want ErrNoZonal, got %v", err)
	}
	if _, err := e.Zonal(context.Background(), "high", zonal.Circle(orb.Point{}, -1)); !errors.Is(err, zonal.ErrInvalidShape) {
		t.Fatalf("want ErrInvalidShape, got %v", err)
	}
}

func TestEngine_InvalidateDropsCacheAndRefetches(t *testing.T) {
	spy := &cacheSpy{err: errors.New("redis down")}
	e, f := newEngine(t, Options{Cache: spy})
	e.OnViewport(model.Snapshot{BBox: view, Zoom: 16})
	e.Wait()

	reset, err := e.Invalidate(context.Background(), "high", nil)
	if err != nil || !reset {
		t.Fatalf("Invalidate reset=%v err=%v", reset, err)
	}
	e.Wait()
	if len(spy.layers) != 1 || spy.layers[0] != "high" {
		t.Fatalf("cache invalidation got %v", spy.layers)
	}
	if n := len(f.seen()); n != 3 {
		t.Fatalf("expected one refetch, got %d fetches", n)
	}
}

func TestEngine_ToggleAndClick(t *testing.T) {
	e, f := newEngine(t, Options{})
	e.OnViewport(model.Snapshot{BBox: view, Zoom: 16})
	e.Wait()

	feat, ok, err := e.Click("low", orb.Point{-3.692, 40.401})
	if err != nil || !ok || feat.ID != "low" {
		t.Fatalf("click got %v ok=%v err=%v", feat, ok, err)
	}

	if err := e.Toggle("low", false); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if st := e.Layers()[0]; st.Enabled || st.Displayed != 0 {
		t.Fatalf("toggled off layer must be cleared: %+v", st)
	}
	if err := e.Toggle("low", true); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	e.Wait()
	if n := len(f.seen()); n != 3 {
		t.Fatalf("toggle on must refetch, got %d", n)
	}
}

func TestNew_RejectsDuplicates(t *testing.T) {
	s := specs()
	_, err := New(Options{Specs: append(s, s[0]), Fetcher: &fetcher{}})
	if err == nil {
		t.Fatalf("duplicate ids must fail")
	}
}

func TestEngine_ClosedIgnoresViewports(t *testing.T) {
	e, f := newEngine(t, Options{})
	e.Close()
	e.OnViewport(model.Snapshot{BBox: view, Zoom: 16})
	e.Wait()
	if n := len(f.seen()); n != 0 {
		t.Fatalf("closed engine fetched %d times", n)
	}
}

package scene

import (
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func point(id any, x, y float64) Primitive {
	f := geojson.NewFeature(orb.Point{x, y})
	f.ID = id
	return Primitive{Feature: f, Kind: KindPoint, Color: "#000", Radius: 1.5}
}

func square(id any, x, y, size float64) Primitive {
	f := geojson.NewFeature(orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}})
	f.ID = id
	f.Properties = geojson.Properties{"ref": id}
	return Primitive{Feature: f, Kind: KindShape, Color: "#f00"}
}

func TestLayer_AppendRestyleAbsorb(t *testing.T) {
	l := NewLayer("displayed")
	l.Append([]Primitive{point(1, 0, 0), point(2, 1, 1)})
	if l.Len() != 2 {
		t.Fatalf("len=%d", l.Len())
	}
	l.Restyle(func(p *Primitive) { p.Radius = 2.6 })
	for _, p := range l.Primitives() {
		if p.Radius != 2.6 {
			t.Fatalf("restyle not applied: %+v", p)
		}
	}

	other := NewLayer("pending")
	updated := point(2, 1, 1)
	updated.Color = "#fff"
	other.Append([]Primitive{updated, point(3, 2, 2), point(nil, 3, 3)})
	if n := l.Absorb(other); n != 2 {
		t.Fatalf("absorb added %d want 2 (id 2 is a duplicate)", n)
	}
	if l.Len() != 4 {
		t.Fatalf("len after absorb=%d", l.Len())
	}
	if got := l.Primitives()[1]; got.Feature.ID != 2 || got.Color != "#fff" {
		t.Fatalf("duplicate id must be replaced in place, got %+v", got)
	}
}

func TestLayer_HitTest(t *testing.T) {
	l := NewLayer("parcels")
	l.Append([]Primitive{square("a", 0, 0, 10), square("b", 5, 5, 10)})

	p, ok := l.HitTest(orb.Point{7, 7}, 0)
	if !ok || p.Feature.ID != "b" {
		t.Fatalf("overlap must resolve to topmost, got %+v ok=%v", p.Feature, ok)
	}
	if p, ok := l.HitTest(orb.Point{1, 1}, 0); !ok || p.Feature.ID != "a" {
		t.Fatalf("expected a, got ok=%v", ok)
	}
	if _, ok := l.HitTest(orb.Point{50, 50}, 0); ok {
		t.Fatalf("expected miss")
	}

	pts := NewLayer("points")
	pts.Append([]Primitive{point("far", 0, 0), point("near", 0.9, 0)})
	if p, ok := pts.HitTest(orb.Point{1, 0}, 0.5); !ok || p.Feature.ID != "near" {
		t.Fatalf("nearest point within tolerance expected")
	}
	if _, ok := pts.HitTest(orb.Point{5, 5}, 0.5); ok {
		t.Fatalf("point beyond tolerance must miss")
	}
}

func TestLayer_FeatureCollectionCarriesStyle(t *testing.T) {
	l := NewLayer("x")
	l.Append([]Primitive{square("a", 0, 0, 1), point("p", 0, 0)})
	fc := l.FeatureCollection()
	if len(fc.Features) != 2 {
		t.Fatalf("features=%d", len(fc.Features))
	}
	if fc.Features[0].Properties["_color"] != "#f00" || fc.Features[0].Properties["ref"] != "a" {
		t.Fatalf("props=%v", fc.Features[0].Properties)
	}
	if _, ok := fc.Features[0].Properties["_radius"]; ok {
		t.Fatalf("shapes carry no radius")
	}
	if fc.Features[1].Properties["_radius"] != 1.5 {
		t.Fatalf("props=%v", fc.Features[1].Properties)
	}
	if _, ok := l.Primitives()[0].Feature.Properties["_color"]; ok {
		t.Fatalf("export must not mutate source features")
	}
}

func TestPaneAndSurface(t *testing.T) {
	s := NewSurface()
	top := s.Pane("irradiance-pane", 650)
	bottom := s.Pane("parcels-pane", 430)
	if again := s.Pane("parcels-pane", 999); again != bottom || again.Z() != 430 {
		t.Fatalf("pane must be reused with original z")
	}
	if ps := s.Panes(); ps[0] != bottom || ps[1] != top {
		t.Fatalf("panes must sort by z")
	}

	top.SetOpacity(2)
	if top.Opacity() != 1 {
		t.Fatalf("opacity must clamp, got %v", top.Opacity())
	}
	top.SetOpacity(-1)
	if top.Opacity() != 0 {
		t.Fatalf("opacity must clamp, got %v", top.Opacity())
	}

	l := NewLayer("a")
	top.Attach(l)
	top.Attach(l)
	if len(top.Layers()) != 1 || !top.Has(l) {
		t.Fatalf("attach must be idempotent")
	}
	if !top.Detach(l) || top.Detach(l) {
		t.Fatalf("detach must report presence")
	}
	if _, ok := s.Lookup("missing"); ok {
		t.Fatalf("unexpected pane")
	}
}

func TestLayer_ConcurrentReadWhileWriting(t *testing.T) {
	l := NewLayer("race")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 200 {
			l.Append([]Primitive{point(i, float64(i), 0)})
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			_ = l.Len()
			_, _ = l.HitTest(orb.Point{1, 0}, 0.1)
		}
	}()
	wg.Wait()
	if l.Len() != 200 {
		t.Fatalf("len=%d", l.Len())
	}
}

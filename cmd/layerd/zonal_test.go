package main

import (
	"testing"

	"github.com/mohammed-shakir/viewport-layers/internal/layer"
	"github.com/mohammed-shakir/viewport-layers/internal/zonal"
)

func resetZonalFlags() {
	optZonalCircle, optZonalBBox, optZonalShape = "", "", ""
}

func TestZonalShape_Circle(t *testing.T) {
	t.Cleanup(resetZonalFlags)
	optZonalCircle = "-3.70, 40.41, 150"
	s, err := zonalShape()
	if err != nil {
		t.Fatalf("zonalShape: %v", err)
	}
	if s.Kind != zonal.KindCircle || s.Radius != 150 || s.Center[1] != 40.41 {
		t.Fatalf("circle got %+v", s)
	}
}

func TestZonalShape_BBoxAndJSON(t *testing.T) {
	t.Cleanup(resetZonalFlags)
	optZonalBBox = "-3.701,40.401,-3.699,40.403"
	s, err := zonalShape()
	if err != nil || s.Kind != zonal.KindRect {
		t.Fatalf("rect got %+v %v", s, err)
	}

	resetZonalFlags()
	optZonalShape = `{"type":"circle","center":[-3.7,40.41],"radius":50}`
	s, err = zonalShape()
	if err != nil || s.Kind != zonal.KindCircle || s.Radius != 50 {
		t.Fatalf("json got %+v %v", s, err)
	}
}

func TestZonalShape_Rejects(t *testing.T) {
	t.Cleanup(resetZonalFlags)
	for _, c := range []string{"1,2", "a,40,10"} {
		optZonalCircle = c
		if _, err := zonalShape(); err == nil {
			t.Fatalf("%q: want error", c)
		}
	}
	resetZonalFlags()
	optZonalBBox = "1,1,0,0"
	if _, err := zonalShape(); err == nil {
		t.Fatal("inverted bbox: want error")
	}
}

func TestActiveLayers(t *testing.T) {
	specs := layer.Catalog()
	got := activeLayers(specs, 19)
	want := map[string]bool{layer.Parcels: true, layer.Shadows: true, layer.Irradiance: true}
	if len(got) != len(want) {
		t.Fatalf("z19 active got %v", got)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected active layer %q", id)
		}
	}
	if got := activeLayers(specs, 10); len(got) != 0 {
		t.Fatalf("z10 active got %v", got)
	}
}

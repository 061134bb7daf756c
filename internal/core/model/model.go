// Package model defines core domain types shared across the engine.
package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BBox is a geographic rectangle in degrees: X1=west, Y1=south, X2=east, Y2=north.
type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
}

// String representation matching the features api bbox parameter
func (b BBox) String() string {
	return strings.Join([]string{
		strconv.FormatFloat(b.X1, 'f', -1, 64),
		strconv.FormatFloat(b.Y1, 'f', -1, 64),
		strconv.FormatFloat(b.X2, 'f', -1, 64),
		strconv.FormatFloat(b.Y2, 'f', -1, 64),
	}, ",")
}

func (b BBox) Valid() bool {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

func (b BBox) Width() float64  { return b.X2 - b.X1 }
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// Pad expands every side by ratio of the width/height.
func (b BBox) Pad(ratio float64) BBox {
	if ratio == 0 {
		return b
	}
	dx, dy := b.Width()*ratio, b.Height()*ratio
	return BBox{X1: b.X1 - dx, Y1: b.Y1 - dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Contains reports full containment of o, edges inclusive.
func (b BBox) Contains(o BBox) bool {
	return o.X1 >= b.X1 && o.Y1 >= b.Y1 && o.X2 <= b.X2 && o.Y2 <= b.Y2
}

func (b BBox) Intersects(o BBox) bool {
	return o.X1 <= b.X2 && o.X2 >= b.X1 && o.Y1 <= b.Y2 && o.Y2 >= b.Y1
}

func (b BBox) Union(o BBox) BBox {
	return FromBound(b.Bound().Union(o.Bound()))
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.X1, b.Y1}, Max: orb.Point{b.X2, b.Y2}}
}

func FromBound(bd orb.Bound) BBox {
	return BBox{X1: bd.Min[0], Y1: bd.Min[1], X2: bd.Max[0], Y2: bd.Max[1]}
}

// ParseBBox parses "west,south,east,north" in EPSG:4326 degrees.
func ParseBBox(raw string) (BBox, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 4 {
		return BBox{}, errors.New("expected 4 comma-separated values: west,south,east,north")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("value %d: parse float: %w", i, err)
		}
		v[i] = f
	}
	b := BBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
	if !(b.X1 >= -180 && b.X1 <= 180 && b.X2 >= -180 && b.X2 <= 180) {
		return BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(b.Y1 >= -90 && b.Y1 <= 90 && b.Y2 >= -90 && b.Y2 <= 90) {
		return BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if !b.Valid() {
		return BBox{}, errors.New("coordinates must satisfy east>west and north>south")
	}
	return b, nil
}

// Snapshot is the settled map viewport.
type Snapshot struct {
	BBox BBox
	Zoom int
}

func (s Snapshot) String() string {
	return fmt.Sprintf("z%d[%s]", s.Zoom, s.BBox)
}

// Package zonal turns user-drawn shapes into geometries for zonal
// statistics queries.
package zonal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

type Kind string

const (
	KindPolygon Kind = "polygon"
	KindRect    Kind = "rectangle"
	KindCircle  Kind = "circle"
)

// CircleSteps is the vertex count of an expanded circle.
const CircleSteps = 64

var ErrInvalidShape = errors.New("invalid shape")

// Shape is a drawn area. Only the fields of its Kind are read.
type Shape struct {
	Kind Kind `json:"type"`

	Polygon orb.Polygon `json:"-"`
	Rect    model.BBox  `json:"-"`
	Center  orb.Point   `json:"-"`
	// Radius in meters.
	Radius float64 `json:"-"`
}

func Polygon(p orb.Polygon) Shape { return Shape{Kind: KindPolygon, Polygon: p} }

func Rect(b model.BBox) Shape { return Shape{Kind: KindRect, Rect: b} }

func Circle(c orb.Point, meters float64) Shape {
	return Shape{Kind: KindCircle, Center: c, Radius: meters}
}

// Geometry returns the polygon sent to the zonal endpoint.
func (s Shape) Geometry() (orb.Geometry, error) {
	switch s.Kind {
	case KindPolygon:
		if len(s.Polygon) == 0 || len(s.Polygon[0]) < 3 {
			return nil, fmt.Errorf("%w: polygon needs at least 3 vertices", ErrInvalidShape)
		}
		p := s.Polygon.Clone()
		for i := range p {
			p[i] = closeRing(p[i])
		}
		return p, nil
	case KindRect:
		if !s.Rect.Valid() {
			return nil, fmt.Errorf("%w: rectangle %s", ErrInvalidShape, s.Rect)
		}
		return s.Rect.Bound().ToPolygon(), nil
	case KindCircle:
		if !(s.Radius > 0) || math.IsInf(s.Radius, 0) {
			return nil, fmt.Errorf("%w: circle radius must be > 0", ErrInvalidShape)
		}
		return circle(s.Center, s.Radius, CircleSteps), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidShape, s.Kind)
	}
}

func circle(c orb.Point, meters float64, steps int) orb.Polygon {
	ring := make(orb.Ring, 0, steps+1)
	for i := range steps {
		bearing := 360 * float64(i) / float64(steps)
		ring = append(ring, geo.PointAtBearingAndDistance(c, bearing, meters))
	}
	return orb.Polygon{closeRing(ring)}
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) > 0 && !r.Closed() {
		r = append(r, r[0])
	}
	return r
}

type wire struct {
	Type        string          `json:"type"`
	BBox        string          `json:"bbox,omitempty"`
	Center      *orb.Point      `json:"center,omitempty"`
	Radius      float64         `json:"radius,omitempty"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

// UnmarshalJSON accepts {"type":"circle","center":[x,y],"radius":m},
// {"type":"rectangle","bbox":"w,s,e,n"} or a GeoJSON Polygon.
func (s *Shape) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch Kind(w.Type) {
	case KindCircle:
		if w.Center == nil {
			return fmt.Errorf("%w: circle needs a center", ErrInvalidShape)
		}
		*s = Circle(*w.Center, w.Radius)
	case KindRect:
		r, err := model.ParseBBox(w.BBox)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidShape, err)
		}
		*s = Rect(r)
	case KindPolygon, "Polygon":
		var p orb.Polygon
		if err := json.Unmarshal(w.Coordinates, &p); err != nil {
			return fmt.Errorf("%w: polygon coordinates: %w", ErrInvalidShape, err)
		}
		*s = Polygon(p)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidShape, w.Type)
	}
	return nil
}

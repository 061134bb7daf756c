// Package invalidation decodes upstream data-change events.
package invalidation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

var ErrInvalidEvent = errors.New("invalid invalidation event")

// Event says features of Layer changed inside BBox or Geometry. A full
// layer refresh carries neither.
type Event struct {
	Version   int             `json:"version"`
	Op        string          `json:"op"`
	Layer     string          `json:"layer"`
	TS        time.Time       `json:"ts"`
	FeatureID any             `json:"feature_id,omitempty"`
	Source    string          `json:"source,omitempty"`
	Table     string          `json:"table,omitempty"`
	BBox      *BBox           `json:"bbox,omitempty"`
	Geometry  json.RawMessage `json:"geometry,omitempty"`
}

type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func Decode(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (e Event) Validate() error {
	if err := e.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return nil
}

func (e Event) validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete", "refresh":
	default:
		return errors.New("op must be insert|update|delete|refresh")
	}
	if strings.TrimSpace(e.Layer) == "" {
		return errors.New("layer is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	hasBBox, hasGeom := e.BBox != nil, len(e.Geometry) > 0
	if hasBBox && hasGeom {
		return errors.New("at most one of bbox or geometry is allowed")
	}
	if e.Op != "refresh" && !hasBBox && !hasGeom {
		return errors.New("bbox or geometry is required")
	}
	_, err := e.Extent()
	return err
}

// Extent is the changed area in EPSG:4326, nil for a whole-layer change.
func (e Event) Extent() (*model.BBox, error) {
	switch {
	case e.BBox != nil:
		bb := *e.BBox
		if bb.SRID != "" && bb.SRID != "EPSG:4326" {
			return nil, errors.New("bbox.srid must be EPSG:4326")
		}
		r := model.BBox{X1: bb.X1, Y1: bb.Y1, X2: bb.X2, Y2: bb.Y2}
		if !(r.X1 >= -180 && r.X2 <= 180 && r.Y1 >= -90 && r.Y2 <= 90) {
			return nil, errors.New("bbox out of range")
		}
		if !r.Valid() {
			return nil, errors.New("bbox must satisfy x2>x1 and y2>y1")
		}
		return &r, nil
	case len(e.Geometry) > 0:
		g, err := geojson.UnmarshalGeometry(e.Geometry)
		if err != nil {
			return nil, fmt.Errorf("geometry parse: %w", err)
		}
		switch g.Geometry().(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, errors.New("geometry.type must be Polygon or MultiPolygon")
		}
		r := model.FromBound(g.Geometry().Bound())
		return &r, nil
	default:
		return nil, nil
	}
}

// DedupeKey identifies the changed feature; empty when the event names
// none.
func (e Event) DedupeKey() string {
	if e.FeatureID == nil {
		return ""
	}
	return fmt.Sprintf("%s|%v", e.Layer, e.FeatureID)
}

// Package layer runs one logical map layer: zoom gating, coverage, fetch,
// progressive render and swap.
package layer

import (
	"fmt"

	"github.com/mohammed-shakir/viewport-layers/internal/coverage"
	"github.com/mohammed-shakir/viewport-layers/internal/fetch"
	"github.com/mohammed-shakir/viewport-layers/internal/style"
)

// Band is an inclusive zoom range.
type Band struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (b Band) Contains(zoom int) bool { return zoom >= b.Min && zoom <= b.Max }

// Color chooses how primitives are colored. Exactly one of Static,
// Palette, ByMode or Adaptive should be set.
type Color struct {
	Attribute string
	Static    string
	Palette   *style.Palette
	ByMode    map[style.Mode]style.Palette
	Adaptive  int
}

type Spec struct {
	ID       string
	Endpoint string
	// ZonalEndpoint is empty for layers without zonal statistics.
	ZonalEndpoint string
	Table         string

	Band      Band
	Pad       float64
	Budget    fetch.Budget
	PageSize  int
	Coverage  coverage.Strategy
	Threshold float64
	CellRes   int

	Pane        string
	Z           int
	FadeOpacity float64
	Accumulate  bool
	Interactive bool

	Color  Color
	Radius style.Radius
	Mode   style.Mode
}

// Active reports whether the layer participates at zoom.
func (s Spec) Active(zoom int) bool { return s.Band.Contains(zoom) }

func (s Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("layer id is required")
	}
	if s.Endpoint == "" {
		return fmt.Errorf("layer %s: endpoint is required", s.ID)
	}
	if s.Band.Min > s.Band.Max {
		return fmt.Errorf("layer %s: zoom band %d-%d is inverted", s.ID, s.Band.Min, s.Band.Max)
	}
	if s.Pad < 0 {
		return fmt.Errorf("layer %s: pad must be >= 0", s.ID)
	}
	if s.FadeOpacity < 0 || s.FadeOpacity > 1 {
		return fmt.Errorf("layer %s: fade opacity must be in [0,1]", s.ID)
	}
	if len(s.Color.ByMode) > 0 {
		if _, ok := s.Color.ByMode[s.Mode]; !ok {
			return fmt.Errorf("layer %s: no palette for mode %q", s.ID, s.Mode)
		}
	}
	return nil
}

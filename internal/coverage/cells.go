package coverage

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

const DefaultCellResolution = 9

// Cells tracks coverage as a set of H3 cells. A rectangle counts as covered
// when every cell it touches has been recorded, so precision is bounded by
// the cell size at Resolution.
type Cells struct {
	Resolution int

	covered map[h3.Cell]struct{}
	ext     model.BBox
	ok      bool
}

func NewCells(res int) (*Cells, error) {
	if res == 0 {
		res = DefaultCellResolution
	}
	if res < 0 || res > 15 {
		return nil, fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return &Cells{Resolution: res, covered: map[h3.Cell]struct{}{}}, nil
}

func (c *Cells) ShouldFetch(rect model.BBox) bool {
	if !c.ok {
		return true
	}
	cells, err := touching(rect, c.Resolution)
	if err != nil || len(cells) == 0 {
		return true
	}
	for _, cell := range cells {
		if _, ok := c.covered[cell]; !ok {
			return true
		}
	}
	return false
}

func (c *Cells) Record(rect model.BBox) {
	cells, err := touching(rect, c.Resolution)
	if err != nil {
		return
	}
	for _, cell := range cells {
		c.covered[cell] = struct{}{}
	}
	if !c.ok {
		c.ext, c.ok = rect, true
	} else {
		c.ext = c.ext.Union(rect)
	}
}

func (c *Cells) Reset() {
	c.covered = map[h3.Cell]struct{}{}
	c.ext, c.ok = model.BBox{}, false
}

func (c *Cells) Extent() (model.BBox, bool) { return c.ext, c.ok }

// Len is the number of covered cells.
func (c *Cells) Len() int { return len(c.covered) }

// touching returns the cells whose centers fall inside rect plus the cells
// holding its corners, so rectangles smaller than a cell still map somewhere.
func touching(rect model.BBox, res int) ([]h3.Cell, error) {
	outer := h3.GeoLoop{
		{Lat: rect.Y1, Lng: rect.X1},
		{Lat: rect.Y1, Lng: rect.X2},
		{Lat: rect.Y2, Lng: rect.X2},
		{Lat: rect.Y2, Lng: rect.X1},
	}
	inner, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	seen := make(map[h3.Cell]struct{}, len(inner)+4)
	out := make([]h3.Cell, 0, len(inner)+4)
	add := func(c h3.Cell) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, c := range inner {
		add(c)
	}
	for _, ll := range outer {
		c, err := h3.LatLngToCell(ll, res)
		if err != nil {
			return nil, fmt.Errorf("h3 corner cell: %w", err)
		}
		add(c)
	}
	return out, nil
}

// Package coverage decides whether a layer already holds the data for a rectangle.
//
// Policies are not safe for concurrent use on their own; Registry serializes
// access when a policy is shared.
package coverage

import (
	"fmt"
	"math"
	"strings"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

type Policy interface {
	// ShouldFetch reports whether rect needs a network fetch.
	ShouldFetch(rect model.BBox) bool
	// Record marks rect as successfully fetched and rendered.
	Record(rect model.BBox)
	Reset()
	Extent() (model.BBox, bool)
}

type Strategy string

const (
	StrategyUnion    Strategy = "union"
	StrategyMovement Strategy = "movement"
	StrategyCells    Strategy = "cells"
)

const DefaultThreshold = 0.12

type Options struct {
	// Threshold is the movement fraction for StrategyMovement.
	Threshold float64
	// Resolution is the H3 resolution for StrategyCells.
	Resolution int
}

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyUnion, "":
		return StrategyUnion, nil
	case StrategyMovement:
		return StrategyMovement, nil
	case StrategyCells:
		return StrategyCells, nil
	default:
		return "", fmt.Errorf("unknown coverage strategy %q", s)
	}
}

func New(s Strategy, opts Options) (Policy, error) {
	switch s {
	case StrategyUnion, "":
		return &Union{}, nil
	case StrategyMovement:
		return NewMovement(opts.Threshold), nil
	case StrategyCells:
		return NewCells(opts.Resolution)
	default:
		return nil, fmt.Errorf("unknown coverage strategy %q", s)
	}
}

// Union accumulates every fetched rectangle into one growing extent.
type Union struct {
	ext model.BBox
	ok  bool
}

func (u *Union) ShouldFetch(rect model.BBox) bool {
	return !u.ok || !u.ext.Contains(rect)
}

func (u *Union) Record(rect model.BBox) {
	if !u.ok {
		u.ext, u.ok = rect, true
		return
	}
	u.ext = u.ext.Union(rect)
}

func (u *Union) Reset() { u.ext, u.ok = model.BBox{}, false }

func (u *Union) Extent() (model.BBox, bool) { return u.ext, u.ok }

// Movement refetches once any edge has moved more than Threshold of the
// previous rectangle's width (west/east) or height (south/north).
type Movement struct {
	Threshold float64
	prev      model.BBox
	ok        bool
}

func NewMovement(threshold float64) *Movement {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DefaultThreshold
	}
	return &Movement{Threshold: threshold}
}

func (m *Movement) ShouldFetch(rect model.BBox) bool {
	if !m.ok {
		return true
	}
	w := math.Max(m.prev.Width(), 1e-9)
	h := math.Max(m.prev.Height(), 1e-9)
	tx, ty := m.Threshold*w, m.Threshold*h
	return math.Abs(rect.X1-m.prev.X1) > tx ||
		math.Abs(rect.X2-m.prev.X2) > tx ||
		math.Abs(rect.Y1-m.prev.Y1) > ty ||
		math.Abs(rect.Y2-m.prev.Y2) > ty
}

// Record replaces the reference rectangle, nothing accumulates.
func (m *Movement) Record(rect model.BBox) { m.prev, m.ok = rect, true }

func (m *Movement) Reset() { m.prev, m.ok = model.BBox{}, false }

func (m *Movement) Extent() (model.BBox, bool) { return m.prev, m.ok }

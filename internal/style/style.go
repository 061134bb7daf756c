// Package style maps feature attributes to colors and zoom levels to marker radii.
package style

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Neutral is the sentinel color for missing, non-numeric or out-of-scale values.
const Neutral = "#cccccc"

// Bin covers [Min, Max). A bin with Min == Max matches exactly that value.
type Bin struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Color string  `json:"color"`
}

// Bins are ordered ascending by Min.
type Bins []Bin

// Lookup returns the first bin with min <= v < max. Values at or beyond the
// last bin's Max clamp to the last bin. Values below the first Min, or in a
// gap between bins, report false.
func (bs Bins) Lookup(v float64) (Bin, bool) {
	if len(bs) == 0 || !finite(v) {
		return Bin{}, false
	}
	for _, b := range bs {
		if b.Min == b.Max && v == b.Min {
			return b, true
		}
		if v >= b.Min && v < b.Max {
			return b, true
		}
	}
	if last := bs[len(bs)-1]; v >= last.Max {
		return last, true
	}
	return Bin{}, false
}

// Palette resolves values to colors. Under is used below the first bin;
// empty means Neutral.
type Palette struct {
	Bins  Bins
	Under string
}

func (p Palette) ColorFor(v float64) string {
	if !finite(v) {
		return Neutral
	}
	if b, ok := p.Bins.Lookup(v); ok {
		return b.Color
	}
	if len(p.Bins) > 0 && v < p.Bins[0].Min && p.Under != "" {
		return p.Under
	}
	return Neutral
}

// ColorOf resolves the feature's attr.
func (p Palette) ColorOf(f *geojson.Feature, attr string) string {
	return p.ColorFor(Value(f, attr))
}

// Value reads a numeric attribute; anything missing or non-numeric is NaN.
func Value(f *geojson.Feature, attr string) float64 {
	if f == nil || f.Properties == nil {
		return math.NaN()
	}
	switch v := f.Properties[attr].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return math.NaN()
		}
		return n
	default:
		return math.NaN()
	}
}

// Ramp is the low-to-high hue progression for computed bins.
var Ramp = []string{"#053bd3", "#28b6f6", "#6ee7b7", "#f7e52b", "#ffaa00", "#ff7043", "#d32f2f"}

// ShadowBins color shadow-hour counts in grays.
var ShadowBins = Palette{Bins: Bins{
	{Min: 2, Max: 4, Color: "#d1d5db"},
	{Min: 4, Max: 6, Color: "#9ca3af"},
	{Min: 6, Max: 8, Color: "#6b7280"},
	{Min: 8, Max: 10, Color: "#4b5563"},
	{Min: 10, Max: 17, Color: "#111827"},
}}

// ShadowIrradianceBins recolor the same shadow ranges from red (little
// shade) to blue (heavy shade).
var ShadowIrradianceBins = Palette{Bins: Bins{
	{Min: 2, Max: 4, Color: "#d32f2f"},
	{Min: 4, Max: 6, Color: "#ff7043"},
	{Min: 6, Max: 8, Color: "#f7e52b"},
	{Min: 8, Max: 10, Color: "#6ee7b7"},
	{Min: 10, Max: 17, Color: "#053bd3"},
}}

// IrradianceBins are annual irradiance classes in kWh/m².
var IrradianceBins = Palette{Bins: Bins{
	{Min: 183.78, Max: 1112.49, Color: "#053bd3"},
	{Min: 1112.49, Max: 1491.41, Color: "#28b6f6"},
	{Min: 1491.41, Max: 1735.46, Color: "#6ee7b7"},
	{Min: 1735.46, Max: 1925.95, Color: "#f7e52b"},
	{Min: 1925.95, Max: 2087.72, Color: "#ffaa00"},
	{Min: 2087.72, Max: 2237.07, Color: "#ff7043"},
	{Min: 2237.07, Max: 2663.09, Color: "#d32f2f"},
}}

// EqualBins splits [min,max] into n equal-width bins colored along Ramp.
// The last bin ends exactly at max. A degenerate or non-finite range yields
// a single neutral bin.
func EqualBins(lo, hi float64, n int) Palette {
	if n <= 0 {
		n = len(Ramp)
	}
	if !finite(lo) || !finite(hi) || lo == hi {
		v := lo
		if !finite(v) {
			v = 0
		}
		return Palette{Bins: Bins{{Min: v, Max: v, Color: Neutral}}}
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	step := (hi - lo) / float64(n)
	bins := make(Bins, n)
	for i := range bins {
		bins[i] = Bin{
			Min:   lo + float64(i)*step,
			Max:   lo + float64(i+1)*step,
			Color: rampAt(i, n),
		}
	}
	bins[n-1].Max = hi
	return Palette{Bins: bins, Under: bins[0].Color}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func rampAt(i, n int) string {
	if n == 1 {
		return Ramp[len(Ramp)-1]
	}
	idx := int(math.Round(float64(i) * float64(len(Ramp)-1) / float64(n-1)))
	return Ramp[idx]
}

// Adaptive recomputes equal-interval bins from the features in view.
type Adaptive struct {
	Attribute string
	N         int
}

// Compute reports false when no feature has a finite value.
func (a Adaptive) Compute(fs []*geojson.Feature) (Palette, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, f := range fs {
		v := Value(f, a.Attribute)
		if !finite(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return Palette{}, false
	}
	return EqualBins(lo, hi, a.N), true
}

// Mode selects which palette a shadow-count layer uses.
type Mode string

const (
	ModeShadow     Mode = "shadow"
	ModeIrradiance Mode = "irradiance"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeShadow, ModeIrradiance:
		return m, nil
	default:
		return "", fmt.Errorf("unknown color mode %q", s)
	}
}

package style

import "math"

// Radius maps a zoom level to a point marker radius in pixels.
type Radius interface {
	At(zoom int) float64
}

// Linear is clamp(Base + (zoom-Origin)*Slope, Min, Max).
type Linear struct {
	Origin   int
	Base     float64
	Slope    float64
	Min, Max float64
}

func (l Linear) At(zoom int) float64 {
	r := l.Base + float64(zoom-l.Origin)*l.Slope
	return math.Min(math.Max(r, l.Min), l.Max)
}

type Step struct {
	Zoom   int
	Radius float64
}

// Steps picks the radius of the last step at or below zoom. Below the first
// step the first radius applies.
type Steps []Step

func (s Steps) At(zoom int) float64 {
	if len(s) == 0 {
		return 0
	}
	r := s[0].Radius
	for _, st := range s {
		if zoom >= st.Zoom {
			r = st.Radius
		}
	}
	return r
}

// IrradianceRadius grows 0.9px per zoom level from 0.6px at z15.
var IrradianceRadius = Linear{Origin: 15, Base: 0.6, Slope: 0.9, Min: 1.2, Max: 3.5}

var ShadowRadius = Steps{{Zoom: 0, Radius: 1.5}, {Zoom: 19, Radius: 2.6}}

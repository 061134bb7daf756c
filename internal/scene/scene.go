// Package scene is the in-memory map surface: panes stacked by z-index, each
// holding layers of styled primitives.
package scene

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

type Kind int

const (
	KindShape Kind = iota
	KindPoint
)

// Primitive is one drawable feature.
type Primitive struct {
	Feature *geojson.Feature
	Kind    Kind
	Color   string
	Radius  float64
}

// Layer is an ordered, appendable set of primitives. Safe for concurrent
// readers while a render writes.
type Layer struct {
	name string

	mu    sync.RWMutex
	prims []Primitive
	// feature id -> index in prims
	ids map[string]int
}

func NewLayer(name string) *Layer {
	return &Layer{name: name, ids: map[string]int{}}
}

func (l *Layer) Name() string { return l.name }

func (l *Layer) Append(batch []Primitive) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range batch {
		if id, ok := featureID(p.Feature); ok {
			l.ids[id] = len(l.prims)
		}
		l.prims = append(l.prims, p)
	}
}

func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.prims)
}

// Primitives returns a copy.
func (l *Layer) Primitives() []Primitive {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Primitive(nil), l.prims...)
}

// Restyle applies fn to every primitive in place.
func (l *Layer) Restyle(fn func(*Primitive)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.prims {
		fn(&l.prims[i])
	}
}

// Absorb merges other's primitives into l. A feature whose id is already
// present replaces the old primitive in place. It returns the number of new
// primitives.
func (l *Layer) Absorb(other *Layer) int {
	if other == nil || other == l {
		return 0
	}
	src := other.Primitives()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range src {
		if id, ok := featureID(p.Feature); ok {
			if at, dup := l.ids[id]; dup {
				l.prims[at] = p
				continue
			}
			l.ids[id] = len(l.prims)
		}
		l.prims = append(l.prims, p)
		n++
	}
	return n
}

// HitTest finds the primitive under pt. Shapes match by containment, points
// by distance within tolerance (degrees). Later primitives draw on top and
// win ties.
func (l *Layer) HitTest(pt orb.Point, tolerance float64) (Primitive, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	best := -1
	bestDist := math.Inf(1)
	for i := len(l.prims) - 1; i >= 0; i-- {
		p := l.prims[i]
		if p.Feature == nil || p.Feature.Geometry == nil {
			continue
		}
		switch g := p.Feature.Geometry.(type) {
		case orb.Polygon:
			if planar.PolygonContains(g, pt) {
				return p, true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(g, pt) {
				return p, true
			}
		case orb.Point:
			if d := planar.Distance(g, pt); d <= tolerance && d < bestDist {
				best, bestDist = i, d
			}
		case orb.MultiPoint:
			for _, q := range g {
				if d := planar.Distance(q, pt); d <= tolerance && d < bestDist {
					best, bestDist = i, d
				}
			}
		}
	}
	if best < 0 {
		return Primitive{}, false
	}
	return l.prims[best], true
}

// FeatureCollection exports the layer, adding the resolved style to each
// feature's properties under "_color" and "_radius".
func (l *Layer) FeatureCollection() *geojson.FeatureCollection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fc := geojson.NewFeatureCollection()
	for _, p := range l.prims {
		if p.Feature == nil {
			continue
		}
		f := geojson.NewFeature(p.Feature.Geometry)
		f.ID = p.Feature.ID
		f.Properties = p.Feature.Properties.Clone()
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		f.Properties["_color"] = p.Color
		if p.Kind == KindPoint {
			f.Properties["_radius"] = p.Radius
		}
		fc.Append(f)
	}
	return fc
}

func featureID(f *geojson.Feature) (string, bool) {
	if f == nil || f.ID == nil {
		return "", false
	}
	return fmt.Sprint(f.ID), true
}

// Pane is an isolated drawing group with its own opacity.
type Pane struct {
	name string
	z    int

	mu      sync.RWMutex
	opacity float64
	layers  []*Layer
}

func (p *Pane) Name() string { return p.name }
func (p *Pane) Z() int       { return p.z }

func (p *Pane) Opacity() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opacity
}

// SetOpacity clamps to [0,1].
func (p *Pane) SetOpacity(v float64) {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opacity = v
}

// Attach is a no-op for a layer already in the pane.
func (p *Pane) Attach(l *Layer) {
	if l == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, have := range p.layers {
		if have == l {
			return
		}
	}
	p.layers = append(p.layers, l)
}

func (p *Pane) Detach(l *Layer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, have := range p.layers {
		if have == l {
			p.layers = append(p.layers[:i:i], p.layers[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Pane) Has(l *Layer) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, have := range p.layers {
		if have == l {
			return true
		}
	}
	return false
}

func (p *Pane) Layers() []*Layer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Layer(nil), p.layers...)
}

// Surface owns the panes of one map.
type Surface struct {
	mu    sync.Mutex
	panes map[string]*Pane
}

func NewSurface() *Surface {
	return &Surface{panes: map[string]*Pane{}}
}

// Pane returns the named pane, creating it at full opacity if needed. z is
// only applied on creation.
func (s *Surface) Pane(name string, z int) *Pane {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.panes[name]; ok {
		return p
	}
	p := &Pane{name: name, z: z, opacity: 1}
	s.panes[name] = p
	return p
}

func (s *Surface) Lookup(name string) (*Pane, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panes[name]
	return p, ok
}

// Panes are ordered bottom to top.
func (s *Surface) Panes() []*Pane {
	s.mu.Lock()
	out := make([]*Pane, 0, len(s.panes))
	for _, p := range s.panes {
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].z != out[j].z {
			return out[i].z < out[j].z
		}
		return out[i].name < out[j].name
	})
	return out
}

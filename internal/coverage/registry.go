package coverage

import (
	"sync"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

// Registry owns one Policy per layer id.
type Registry struct {
	mu       sync.Mutex
	policies map[string]Policy
}

func NewRegistry() *Registry {
	return &Registry{policies: map[string]Policy{}}
}

// Register installs p for layerID, replacing any previous policy.
func (r *Registry) Register(layerID string, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[layerID] = p
}

// ShouldFetch is true for unknown layers.
func (r *Registry) ShouldFetch(layerID string, rect model.BBox) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.policies[layerID]
	if !ok {
		return true
	}
	return p.ShouldFetch(rect)
}

func (r *Registry) RecordFetched(layerID string, rect model.BBox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.policies[layerID]
	if !ok {
		p = &Union{}
		r.policies[layerID] = p
	}
	p.Record(rect)
}

func (r *Registry) Reset(layerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.policies[layerID]; ok {
		p.Reset()
	}
}

func (r *Registry) Extent(layerID string) (model.BBox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.policies[layerID]; ok {
		return p.Extent()
	}
	return model.BBox{}, false
}

package viewport

import (
	"sync"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

// Manual is a Map whose state is pushed by the caller, e.g. the daemon's
// POST /viewport handler.
type Manual struct {
	mu        sync.Mutex
	bbox      model.BBox
	zoom      int
	listeners map[int]func()
	next      int
}

func NewManual(bbox model.BBox, zoom int) *Manual {
	return &Manual{bbox: bbox, zoom: zoom, listeners: map[int]func(){}}
}

func (m *Manual) Bounds() model.BBox {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bbox
}

func (m *Manual) Zoom() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

func (m *Manual) OnSettle(fn func()) (off func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := m.next
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Set moves the map and fires a settle event.
func (m *Manual) Set(bbox model.BBox, zoom int) {
	m.mu.Lock()
	m.bbox, m.zoom = bbox, zoom
	fns := make([]func(), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Listeners reports how many settle listeners are attached.
func (m *Manual) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

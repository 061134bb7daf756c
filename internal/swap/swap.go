// Package swap promotes fully rendered layers into a pane without ever
// showing an empty or partial layer.
package swap

import (
	"strconv"
	"sync"

	"github.com/mohammed-shakir/viewport-layers/internal/scene"
)

type Options struct {
	// FadeOpacity is the pane opacity while a pending layer fills. Values
	// below 1 attach the pending layer to the dimmed pane; 1 keeps it
	// off-screen until commit.
	FadeOpacity float64
	// Accumulate merges each committed layer into the displayed one instead
	// of replacing it.
	Accumulate bool
}

type Manager struct {
	pane *scene.Pane
	name string
	opts Options

	mu        sync.Mutex
	displayed *scene.Layer
	pending   *scene.Layer
	seq       int
}

func New(pane *scene.Pane, name string, opts Options) *Manager {
	if opts.FadeOpacity < 0 || opts.FadeOpacity > 1 {
		opts.FadeOpacity = 1
	}
	return &Manager{pane: pane, name: name, opts: opts}
}

// Begin discards any previous pending layer and returns a fresh one.
func (m *Manager) Begin() *scene.Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pane.Detach(m.pending)
	}
	m.seq++
	m.pending = scene.NewLayer(m.name + "#" + strconv.Itoa(m.seq))
	if m.opts.FadeOpacity < 1 {
		m.pane.SetOpacity(m.opts.FadeOpacity)
		m.pane.Attach(m.pending)
	}
	return m.pending
}

// Commit promotes p. It reports false when p is no longer the pending layer.
func (m *Manager) Commit(p *scene.Layer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil || p != m.pending {
		return false
	}
	m.pending = nil

	if m.opts.Accumulate && m.displayed != nil {
		m.pane.Detach(p)
		m.displayed.Absorb(p)
	} else {
		m.pane.Attach(p)
		if m.displayed != nil {
			m.pane.Detach(m.displayed)
		}
		m.displayed = p
	}
	m.pane.SetOpacity(1)
	return true
}

// Discard drops p, leaving the displayed layer untouched.
func (m *Manager) Discard(p *scene.Layer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil || p != m.pending {
		return false
	}
	m.pane.Detach(p)
	m.pending = nil
	m.pane.SetOpacity(1)
	return true
}

// KeepCurrent is the zero-feature outcome: nothing to show, keep what is there.
func (m *Manager) KeepCurrent(p *scene.Layer) bool { return m.Discard(p) }

// Abort discards whatever is pending.
func (m *Manager) Abort() {
	m.mu.Lock()
	p := m.pending
	m.mu.Unlock()
	if p != nil {
		m.Discard(p)
	}
}

// Teardown removes both layers from the pane.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pane.Detach(m.pending)
		m.pending = nil
	}
	if m.displayed != nil {
		m.pane.Detach(m.displayed)
		m.displayed = nil
	}
	m.pane.SetOpacity(1)
}

func (m *Manager) Displayed() *scene.Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.displayed
}

func (m *Manager) Pending() *scene.Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *Manager) Pane() *scene.Pane { return m.pane }

// Package viewport turns map settle events into debounced viewport snapshots.
package viewport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

const DefaultDebounce = 280 * time.Millisecond

// Map is the surface being watched. OnSettle fires after a move or zoom
// ends, never during a continuous drag.
type Map interface {
	Bounds() model.BBox
	Zoom() int
	OnSettle(fn func()) (off func())
}

type timer interface{ Stop() bool }

type subscriber struct {
	id int
	fn func(model.Snapshot)
}

type Tracker struct {
	m        Map
	debounce time.Duration
	logger   *slog.Logger

	// afterFunc is swapped in tests
	afterFunc func(time.Duration, func()) timer

	emitMu sync.Mutex

	mu      sync.Mutex
	subs    []subscriber
	nextID  int
	seq     uint64
	pending timer
	off     func()
	started bool
	stopped bool
}

func New(m Map, debounce time.Duration, logger *slog.Logger) *Tracker {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Tracker{
		m:        m,
		debounce: debounce,
		logger:   logger,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}

// Subscribe registers fn for every emitted snapshot. Callbacks run one at a
// time in subscription order.
func (t *Tracker) Subscribe(fn func(model.Snapshot)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscriber{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// Start attaches to the map and emits the initial snapshot synchronously.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	off := t.m.OnSettle(t.settle)

	t.mu.Lock()
	t.off = off
	t.mu.Unlock()

	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	t.mu.Lock()
	t.seq++
	t.deliverLocked()
}

// Stop detaches from the map and drops any pending emission.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	if t.off != nil {
		t.off()
		t.off = nil
	}
}

func (t *Tracker) settle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.seq++
	seq := t.seq
	if t.pending != nil {
		t.pending.Stop()
	}
	t.pending = t.afterFunc(t.debounce, func() { t.fire(seq) })
}

func (t *Tracker) fire(seq uint64) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	t.mu.Lock()
	if seq != t.seq || t.stopped {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.deliverLocked()
}

// deliverLocked is entered with t.mu held and emitMu held; it releases t.mu
// before invoking subscribers.
func (t *Tracker) deliverLocked() {
	snap := model.Snapshot{BBox: t.m.Bounds(), Zoom: t.m.Zoom()}
	subs := append([]subscriber(nil), t.subs...)
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Debug("viewport settled", "viewport", snap.String(), "subscribers", len(subs))
	}
	for _, s := range subs {
		s.fn(snap)
	}
}

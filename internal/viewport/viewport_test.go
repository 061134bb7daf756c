package viewport

import (
	"sync"
	"testing"
	"time"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	was := !f.stopped
	f.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every timer, including stopped ones, the way a late
// time.AfterFunc callback could.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	ts := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range ts {
		t.f()
	}
}

func (c *fakeClock) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

var (
	rectA = model.BBox{X1: -3.70, Y1: 40.30, X2: -3.69, Y2: 40.31}
	rectB = model.BBox{X1: -3.69, Y1: 40.30, X2: -3.68, Y2: 40.31}
	rectC = model.BBox{X1: -3.68, Y1: 40.30, X2: -3.67, Y2: 40.31}
)

func newTracked(t *testing.T) (*Tracker, *Manual, *fakeClock, *[]model.Snapshot) {
	t.Helper()
	m := NewManual(rectA, 18)
	clk := &fakeClock{}
	tr := New(m, 0, nil)
	tr.afterFunc = clk.afterFunc
	var got []model.Snapshot
	tr.Subscribe(func(s model.Snapshot) { got = append(got, s) })
	return tr, m, clk, &got
}

func TestStart_EmitsInitialSnapshotImmediately(t *testing.T) {
	tr, _, _, got := newTracked(t)
	if tr.debounce != DefaultDebounce {
		t.Fatalf("default debounce got %v", tr.debounce)
	}
	tr.Start()
	if len(*got) != 1 || (*got)[0].BBox != rectA || (*got)[0].Zoom != 18 {
		t.Fatalf("initial snapshot got %+v", *got)
	}
}

func TestSettleBurst_OnlyLastEmits(t *testing.T) {
	tr, m, clk, got := newTracked(t)
	tr.Start()

	m.Set(rectB, 18)
	m.Set(rectC, 19)
	if clk.live() != 1 {
		t.Fatalf("each settle must restart the debounce window, live timers=%d", clk.live())
	}
	if len(*got) != 1 {
		t.Fatalf("nothing may emit before the debounce elapses")
	}
	clk.fireAll()

	if len(*got) != 2 {
		t.Fatalf("want exactly one emission for the burst, got %d", len(*got)-1)
	}
	if last := (*got)[1]; last.BBox != rectC || last.Zoom != 19 {
		t.Fatalf("burst must settle on final snapshot, got %+v", last)
	}
}

func TestStop_DetachesAndDropsPending(t *testing.T) {
	tr, m, clk, got := newTracked(t)
	tr.Start()
	if m.Listeners() != 1 {
		t.Fatalf("expected one settle listener")
	}
	m.Set(rectB, 18)
	tr.Stop()
	if m.Listeners() != 0 {
		t.Fatalf("stop must unregister the map listener")
	}
	clk.fireAll()
	m.Set(rectC, 18)
	if len(*got) != 1 {
		t.Fatalf("no emission after stop, got %d", len(*got))
	}
}

func TestUnsubscribe(t *testing.T) {
	tr, m, clk, got := newTracked(t)
	var other int
	unsub := tr.Subscribe(func(model.Snapshot) { other++ })
	tr.Start()
	unsub()
	m.Set(rectB, 18)
	clk.fireAll()
	if other != 1 || len(*got) != 2 {
		t.Fatalf("other=%d got=%d", other, len(*got))
	}
}

func TestRealTimer_Debounces(t *testing.T) {
	m := NewManual(rectA, 18)
	tr := New(m, 20*time.Millisecond, nil)
	ch := make(chan model.Snapshot, 4)
	tr.Subscribe(func(s model.Snapshot) { ch <- s })
	tr.Start()
	defer tr.Stop()
	<-ch

	m.Set(rectB, 18)
	m.Set(rectC, 18)
	select {
	case s := <-ch:
		if s.BBox != rectC {
			t.Fatalf("got %+v want final rect", s.BBox)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for debounced snapshot")
	}
	select {
	case s := <-ch:
		t.Fatalf("unexpected extra emission %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

// Package render materializes feature collections into a layer in bounded
// batches, yielding between batches.
package render

import (
	"context"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/viewport-layers/internal/scene"
)

const (
	DefaultBatchSize  = 2000
	DefaultFrameDelay = 16 * time.Millisecond
)

// Scheduler yields control between batches.
type Scheduler interface {
	Yield(ctx context.Context) error
}

// FrameScheduler waits one frame.
type FrameScheduler struct {
	Delay time.Duration
}

func (f FrameScheduler) Yield(ctx context.Context) error {
	d := f.Delay
	if d <= 0 {
		d = DefaultFrameDelay
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type SchedulerFunc func(ctx context.Context) error

func (f SchedulerFunc) Yield(ctx context.Context) error { return f(ctx) }

// Sink receives batches; *scene.Layer is one.
type Sink interface {
	Append(batch []scene.Primitive)
}

type Materializer func(f *geojson.Feature) scene.Primitive

type Renderer struct {
	BatchSize   int
	Scheduler   Scheduler
	Materialize Materializer
	// OnBatch is called after each append with the batch size.
	OnBatch func(n int)
}

// Render appends ceil(len(features)/BatchSize) batches to sink. Cancellation
// is checked before every batch; a cancelled render returns ctx.Err() and
// appends nothing further.
func (r Renderer) Render(ctx context.Context, features []*geojson.Feature, sink Sink) error {
	size := r.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	sched := r.Scheduler
	if sched == nil {
		sched = FrameScheduler{}
	}

	for start := 0; start < len(features); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(features))
		batch := make([]scene.Primitive, 0, end-start)
		for _, f := range features[start:end] {
			batch = append(batch, r.Materialize(f))
		}
		sink.Append(batch)
		if r.OnBatch != nil {
			r.OnBatch(len(batch))
		}
		if end < len(features) {
			if err := sched.Yield(ctx); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

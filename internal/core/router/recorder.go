package router

import (
	"log/slog"
	"sync"

	"github.com/paulmach/orb/geojson"

	mylog "github.com/mohammed-shakir/viewport-layers/internal/logger"
	"github.com/mohammed-shakir/viewport-layers/internal/style"
)

// Recorder is the engine observer of the daemon: it logs layer outputs and
// keeps the last error per layer for the status endpoint.
type Recorder struct {
	log *slog.Logger

	mu      sync.Mutex
	lastErr map[string]string
}

func NewRecorder(log *slog.Logger) *Recorder {
	if log == nil {
		log = mylog.Nop()
	}
	return &Recorder{log: log, lastErr: map[string]string{}}
}

func (r *Recorder) LayerLoading(id string, loading bool) {
	if loading {
		r.mu.Lock()
		delete(r.lastErr, id)
		r.mu.Unlock()
	}
	r.log.Debug("layer loading", "layer", id, "loading", loading)
}

func (r *Recorder) LayerError(id string, err error) {
	r.mu.Lock()
	r.lastErr[id] = err.Error()
	r.mu.Unlock()
	r.log.Warn("layer error", "layer", id, "err", err)
}

func (r *Recorder) LegendChanged(id string, bins style.Bins) {
	r.log.Debug("legend changed", "layer", id, "bins", len(bins))
}

func (r *Recorder) FeatureClicked(id string, f *geojson.Feature) {
	r.log.Info("feature clicked", "layer", id, "feature", f.ID)
}

func (r *Recorder) LastError(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr[id]
}

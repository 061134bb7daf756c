// Package router exposes the layer engine over HTTP.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/core/observability"
	"github.com/mohammed-shakir/viewport-layers/internal/engine"
	"github.com/mohammed-shakir/viewport-layers/internal/featureapi"
	"github.com/mohammed-shakir/viewport-layers/internal/layer"
	mylog "github.com/mohammed-shakir/viewport-layers/internal/logger"
	"github.com/mohammed-shakir/viewport-layers/internal/style"
	"github.com/mohammed-shakir/viewport-layers/internal/zonal"
)

const maxBody = 1 << 20

// ViewportSetter receives raw map movements; *viewport.Manual is one.
type ViewportSetter interface {
	Set(bbox model.BBox, zoom int)
}

type API struct {
	log  *slog.Logger
	eng  *engine.Engine
	view ViewportSetter
	rec  *Recorder
}

// New wires the handlers. rec may be nil.
func New(logger *slog.Logger, eng *engine.Engine, view ViewportSetter, rec *Recorder) *API {
	if logger == nil {
		logger = mylog.Nop()
	}
	return &API{log: logger, eng: eng, view: view, rec: rec}
}

// Mount registers the API routes on r.
func (a *API) Mount(r chi.Router) {
	r.Post("/viewport", a.measure("/viewport", a.postViewport))
	r.Get("/layers", a.measure("/layers", a.listLayers))
	r.Route("/layers/{id}", func(r chi.Router) {
		r.Get("/", a.measure("/layers/{id}", a.getLayer))
		r.Post("/toggle", a.measure("/layers/{id}/toggle", a.toggle))
		r.Post("/mode", a.measure("/layers/{id}/mode", a.setMode))
		r.Post("/table", a.measure("/layers/{id}/table", a.setTable))
		r.Post("/click", a.measure("/layers/{id}/click", a.click))
		r.Post("/invalidate", a.measure("/layers/{id}/invalidate", a.invalidate))
	})
	r.Post("/zonal/{id}", a.measure("/zonal/{id}", a.zonal))
}

func (a *API) measure(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type viewportReq struct {
	BBox string `json:"bbox"`
	Zoom *int   `json:"zoom"`
}

// ParseViewport validates a {"bbox":"w,s,e,n","zoom":z} body.
func ParseViewport(body io.Reader) (model.Snapshot, error) {
	var req viewportReq
	if err := decode(body, &req); err != nil {
		return model.Snapshot{}, err
	}
	if req.Zoom == nil {
		return model.Snapshot{}, errors.New("missing required field: zoom")
	}
	if *req.Zoom < 0 || *req.Zoom > 24 {
		return model.Snapshot{}, fmt.Errorf("zoom %d out of range [0,24]", *req.Zoom)
	}
	bb, err := model.ParseBBox(req.BBox)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("invalid bbox: %w", err)
	}
	return model.Snapshot{BBox: bb, Zoom: *req.Zoom}, nil
}

func (a *API) postViewport(w http.ResponseWriter, r *http.Request) {
	s, err := ParseViewport(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.view.Set(s.BBox, s.Zoom)
	w.WriteHeader(http.StatusAccepted)
}

type layerView struct {
	layer.Status
	LastError string `json:"last_error,omitempty"`
}

func (a *API) listLayers(w http.ResponseWriter, _ *http.Request) {
	st := a.eng.Layers()
	out := make([]layerView, 0, len(st))
	for _, s := range st {
		v := layerView{Status: s}
		if a.rec != nil {
			v.LastError = a.rec.LastError(s.ID)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getLayer(w http.ResponseWriter, r *http.Request) {
	c, ok := a.eng.Layer(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_ = json.NewEncoder(w).Encode(c.Displayed())
}

func (a *API) toggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decode(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.reply(w, a.eng.Toggle(chi.URLParam(r, "id"), req.Enabled))
}

func (a *API) setMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decode(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := style.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.reply(w, a.eng.SetMode(chi.URLParam(r, "id"), m))
}

func (a *API) setTable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Table string `json:"table"`
	}
	if err := decode(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Table = strings.TrimSpace(req.Table)
	if req.Table == "" {
		http.Error(w, "missing required field: table", http.StatusBadRequest)
		return
	}
	a.reply(w, a.eng.SetTable(chi.URLParam(r, "id"), req.Table))
}

func (a *API) click(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lon float64 `json:"lon"`
		Lat float64 `json:"lat"`
	}
	if err := decode(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, ok, err := a.eng.Click(chi.URLParam(r, "id"), orb.Point{req.Lon, req.Lat})
	if err != nil {
		a.reply(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_ = json.NewEncoder(w).Encode(f)
}

func (a *API) invalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BBox string `json:"bbox"`
	}
	if err := decode(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var bbox *model.BBox
	if req.BBox != "" {
		bb, err := model.ParseBBox(req.BBox)
		if err != nil {
			http.Error(w, "invalid bbox: "+err.Error(), http.StatusBadRequest)
			return
		}
		bbox = &bb
	}
	reset, err := a.eng.Invalidate(r.Context(), chi.URLParam(r, "id"), bbox)
	if err != nil {
		a.reply(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"coverage_reset": reset})
}

func (a *API) zonal(w http.ResponseWriter, r *http.Request) {
	var shape zonal.Shape
	if err := decode(r.Body, &shape); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stats, err := a.eng.Zonal(r.Context(), chi.URLParam(r, "id"), shape)
	if err != nil {
		a.reply(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// reply maps engine errors to status codes; nil is 204.
func (a *API) reply(w http.ResponseWriter, err error) {
	var se *featureapi.StatusError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, engine.ErrUnknownLayer):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrNoZonal), errors.Is(err, layer.ErrNoModes):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, zonal.ErrInvalidShape):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &se):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		a.log.Warn("request failed", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func decode(body io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

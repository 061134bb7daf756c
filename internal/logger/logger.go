package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
)

type Config struct {
	Level   string
	Console bool
	// SampleN keeps one of every N debug and info lines. Warnings and
	// errors are never sampled.
	SampleN   int
	Service   string
	Component string
}

// fields travel with a context and end up on every log line written with it.
type fields struct {
	requestID string
	component string
	layer     string
	bbox      string
	zoom      int
	fetch     uint64
}

type ctxKey struct{}

func from(ctx context.Context) fields {
	if f, ok := ctx.Value(ctxKey{}).(fields); ok {
		return f
	}
	return fields{zoom: -1}
}

func with(ctx context.Context, fn func(*fields)) context.Context {
	f := from(ctx)
	fn(&f)
	return context.WithValue(ctx, ctxKey{}, f)
}

func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return with(ctx, func(f *fields) { f.requestID = reqID })
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return with(ctx, func(f *fields) { f.component = component })
}

func WithLayer(ctx context.Context, layer string) context.Context {
	if layer == "" {
		return ctx
	}
	return with(ctx, func(f *fields) { f.layer = layer })
}

// WithViewport tags log lines with the snapshot that triggered the work.
func WithViewport(ctx context.Context, s model.Snapshot) context.Context {
	return with(ctx, func(f *fields) {
		f.bbox = s.BBox.String()
		f.zoom = s.Zoom
	})
}

// WithFetch marks the lines of one layer fetch, numbered per layer.
func WithFetch(ctx context.Context, layer string, n uint64) context.Context {
	return with(ctx, func(f *fields) {
		if layer != "" {
			f.layer = layer
		}
		f.fetch = n
	})
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ParseLevel accepts debug, info, warn and error. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Build returns a JSON (or console) logger. An unknown level falls back to
// info. The level is set on the logger, not globally.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, _ := ParseLevel(cfg.Level)
	base := zerolog.New(out).Level(lvl)

	// render batches and covered-skip lines dominate at debug
	if cfg.SampleN > 1 {
		n := uint32(min(cfg.SampleN, 1<<20))
		base = base.Sample(zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: n},
			InfoSampler:  &zerolog.BasicSampler{N: n},
		})
	}

	c := base.With().Timestamp()
	if cfg.Service != "" {
		c = c.Str("service", cfg.Service)
	}
	if cfg.Component != "" {
		c = c.Str("component", cfg.Component)
	}
	return c.Logger()
}

// FromContext returns a child of parent carrying the context fields.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.New(io.Discard)
	if parent != nil {
		base = *parent
	}
	f := from(ctx)
	w := base.With()
	if f.requestID != "" {
		w = w.Str("request_id", f.requestID)
	}
	if f.component != "" {
		w = w.Str("component", f.component)
	}
	if f.layer != "" {
		w = w.Str("layer", f.layer)
	}
	if f.bbox != "" {
		w = w.Str("bbox", f.bbox).Int("zoom", f.zoom)
	}
	if f.fetch > 0 {
		w = w.Uint64("fetch", f.fetch)
	}
	l := w.Logger()
	return &l
}

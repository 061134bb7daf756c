// Package server runs the daemon's HTTP surface.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/viewport-layers/internal/core/config"
	"github.com/mohammed-shakir/viewport-layers/internal/core/health"
	middleware "github.com/mohammed-shakir/viewport-layers/internal/core/middleware"
	"github.com/mohammed-shakir/viewport-layers/internal/core/router"
)

type Options struct {
	API     *router.API
	Metrics http.Handler
	Checks  map[string]health.Check

	// CORSOrigins empty allows any origin.
	CORSOrigins []string
}

// Handler builds the route tree.
func Handler(logger *slog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(opts.CORSOrigins...))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(opts.Checks, 2*time.Second))
	if opts.Metrics != nil {
		r.Get("/metrics", opts.Metrics.ServeHTTP)
	}
	if opts.API != nil {
		opts.API.Mount(r)
	}
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(logger, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

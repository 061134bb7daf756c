package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/core/observability"
	"github.com/mohammed-shakir/viewport-layers/internal/core/router"
	"github.com/mohammed-shakir/viewport-layers/internal/core/server"
	"github.com/mohammed-shakir/viewport-layers/internal/events"
	"github.com/mohammed-shakir/viewport-layers/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/viewport-layers/internal/metrics"
	"github.com/mohammed-shakir/viewport-layers/internal/viewport"
)

var (
	optServeBBox string
	optServeZoom int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the layer engine behind the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&optServeBBox, "bbox", "-3.7100,40.4100,-3.6900,40.4300", "initial viewport w,s,e,n")
	serveCmd.Flags().IntVar(&optServeZoom, "zoom", 16, "initial zoom")
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := newLogger("serve")
	log.Info("starting layerd", "addr", cfg.Addr, "version", Version, "features_api", cfg.FeaturesAPIURL)

	bbox, err := model.ParseBBox(optServeBBox)
	if err != nil {
		return fmt.Errorf("--bbox: %w", err)
	}

	p := metrics.Init(metrics.Config{Build: metrics.BuildInfo{Version: Version}})
	observability.Init(p.Registerer(), true)

	var pub *events.Publisher
	if cfg.EventsEnabled {
		pub, err = events.Dial(cfg.Brokers(), cfg.Kafka.ViewportTopic, events.DefaultQueueSize, log)
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
	}

	rec := router.NewRecorder(log)
	var hook func(model.Snapshot)
	st, err := buildStack(ctx, log, rec, func(s model.Snapshot) {
		if hook != nil {
			hook(s)
		}
	})
	if err != nil {
		return err
	}
	defer st.close()
	if pub != nil {
		hook = func(s model.Snapshot) {
			pub.Publish(events.FromSnapshot(s, activeLayers(st.specs, s.Zoom), time.Now()))
		}
	}

	manual := viewport.NewManual(bbox, optServeZoom)
	tracker := viewport.New(manual, cfg.ViewportDebounce, log)
	st.eng.Attach(tracker)
	tracker.Start()
	defer tracker.Stop()

	if cfg.InvalidationEnabled {
		consumer := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg), log, st.eng)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("invalidation consumer stopped", "err", err)
			}
		}()
	}

	err = server.Run(ctx, cfg, log, server.Options{
		API:     router.New(log, st.eng, manual, rec),
		Metrics: p.Handler(),
		Checks:  st.checks,

		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		log.Error("server error", "err", err)
		return err
	}
	log.Info("server stopped")
	return nil
}

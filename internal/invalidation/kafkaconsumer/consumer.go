// Package kafkaconsumer applies data-change events from Kafka to the layer
// engine.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	obs "github.com/mohammed-shakir/viewport-layers/internal/core/observability"
	"github.com/mohammed-shakir/viewport-layers/internal/engine"
	"github.com/mohammed-shakir/viewport-layers/internal/invalidation"
	mylog "github.com/mohammed-shakir/viewport-layers/internal/logger"
)

// Invalidator is satisfied by *engine.Engine.
type Invalidator interface {
	Invalidate(ctx context.Context, layer string, bbox *model.BBox) (bool, error)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	target Invalidator
	seen   *tsDedupe
}

func New(cfg Config, logger *slog.Logger, target Invalidator) *Consumer {
	if logger == nil {
		logger = mylog.Nop()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger.With("component", "kafka_consumer"),
		target: target,
		seen:   newTSDedupe(cfg.DedupeSize),
	}
}

// Start consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.target == nil {
		return errors.New("kafkaconsumer: missing invalidation target")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}
	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	backoff := c.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka consumer error", "err", err, "topic", c.cfg.Topic)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
		}
		if ctx.Err() != nil {
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		}
	}
}

// ProcessOne applies one message. Malformed events, unknown layers and stale
// duplicates are skipped; only a failed invalidation returns an error so the
// message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	log := c.logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

	ev, err := invalidation.Decode(msg.Value)
	if err != nil {
		obs.IncKafka("consume", "invalid")
		log.WarnContext(ctx, "skipping invalid event", "err", err)
		return nil
	}
	key := ev.DedupeKey()
	if !c.seen.shouldApply(key, ev.TS) {
		obs.IncKafka("consume", "duplicate")
		log.DebugContext(ctx, "skipping stale event", "layer", ev.Layer, "key", key)
		return nil
	}
	bbox, err := ev.Extent()
	if err != nil {
		obs.IncKafka("consume", "invalid")
		return nil
	}

	ctx = mylog.WithLayer(ctx, ev.Layer)
	reset, err := c.target.Invalidate(ctx, ev.Layer, bbox)
	switch {
	case errors.Is(err, engine.ErrUnknownLayer):
		obs.IncKafka("consume", "unknown_layer")
		log.DebugContext(ctx, "event for unknown layer", "op", ev.Op)
		return nil
	case err != nil:
		obs.IncKafka("consume", "error")
		return fmt.Errorf("invalidate %s: %w", ev.Layer, err)
	}
	c.seen.applied(key, ev.TS)
	obs.IncKafka("consume", "ok")
	log.InfoContext(ctx, "layer invalidated", "op", ev.Op, "coverage_reset", reset)
	return nil
}

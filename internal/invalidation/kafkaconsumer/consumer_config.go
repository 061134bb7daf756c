package kafkaconsumer

import (
	"time"

	"github.com/mohammed-shakir/viewport-layers/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	RetryBackoff        time.Duration
	InitialOffsetOldest bool
	// DedupeSize bounds the per-feature timestamp memory.
	DedupeSize int
}

func FromConfig(c config.Config) Config {
	return Config{
		Brokers:          c.Brokers(),
		Topic:            c.Kafka.InvalidationTopic,
		GroupID:          c.Kafka.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		RetryBackoff:     2 * time.Second,
		DedupeSize:       4096,
	}
}

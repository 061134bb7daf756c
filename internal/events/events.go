// Package events publishes settled viewports to Kafka without blocking the
// viewport path.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/viewport-layers/internal/core/model"
	"github.com/mohammed-shakir/viewport-layers/internal/core/observability"
	"github.com/mohammed-shakir/viewport-layers/internal/logger"
)

const DefaultQueueSize = 1024

type Event struct {
	BBox   string    `json:"bbox"`
	Zoom   int       `json:"zoom"`
	Layers []string  `json:"layers,omitempty"`
	TS     time.Time `json:"ts"`
}

func FromSnapshot(s model.Snapshot, active []string, now time.Time) Event {
	return Event{BBox: s.BBox.String(), Zoom: s.Zoom, Layers: active, TS: now.UTC()}
}

type Publisher struct {
	topic   string
	log     *slog.Logger
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
	errs    chan struct{}
}

// Dial connects an async producer to brokers.
func Dial(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return New(prod, topic, queueSize, log), nil
}

// New takes ownership of prod.
func New(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.Nop()
	}
	p := &Publisher{
		topic:   topic,
		log:     log.With("component", "viewport_events"),
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
		errs:    make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Error("marshal viewport event", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(fmt.Sprintf("z%d", ev.Zoom)),
				Value: sarama.ByteEncoder(b),
			}
			observability.IncKafka("produce", "sent")
		}
	}()

	go func() {
		defer close(p.errs)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncKafka("produce", "error")
				p.log.Warn("producer error", "err", err.Err, "topic", p.topic)
			}
		}
	}()

	return p
}

// Publish never blocks; a full queue drops the event.
func (p *Publisher) Publish(ev Event) bool {
	select {
	case p.events <- ev:
		return true
	default:
		observability.IncKafka("produce", "dropped")
		return false
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	err := p.prod.Close()
	<-p.errs
	if err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	return nil
}

// Package kafka consumes storefront business events and applies them to
// storage. This is the "data change" side of the engine: every applied
// event nudges the evaluation loop.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"centinela/internal/logger"
	"centinela/internal/metrics"
	"centinela/internal/models"
)

// Applier receives validated business events. Implemented by storage.DB.
type Applier interface {
	UpsertProduct(ctx context.Context, p models.Product) error
	RecordSale(ctx context.Context, s models.Sale) error
	RecordExpense(ctx context.Context, e models.Expense) error
}

// Consumer reads the storefront topic and applies events to storage.
type Consumer struct {
	reader  *kafka.Reader
	applier Applier
	notify  chan<- struct{}

	applied  atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
}

// Config holds consumer settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// Applier receives decoded events
	Applier Applier
	// Notify is signalled (non-blocking) after each applied event
	Notify chan<- struct{}
}

// NewConsumer creates a consumer for the storefront event topic.
func NewConsumer(cfg Config) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.Applier == nil {
		return nil, errors.New("applier is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:  reader,
		applier: cfg.Applier,
		notify:  cfg.Notify,
	}, nil
}

// Run consumes until the context is cancelled. Malformed or invalid events
// are counted and skipped; storage failures are logged and the message is
// not retried beyond the group's redelivery.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.WithComponent("consumer")
	log.Info().Str("topic", c.reader.Config().Topic).Msg("consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		c.handleMessage(ctx, msg.Value)
	}
}

// handleMessage decodes, validates, and applies one event payload.
func (c *Consumer) handleMessage(ctx context.Context, payload []byte) {
	log := logger.WithComponent("consumer")

	var event models.BusinessEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Warn().Err(err).Msg("dropping undecodable event")
		c.rejected.Add(1)
		metrics.EventsConsumedTotal.WithLabelValues("unknown", "rejected").Inc()
		return
	}

	event.Normalize()
	if err := event.Validate(); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID).Msg("dropping invalid event")
		c.rejected.Add(1)
		metrics.EventsConsumedTotal.WithLabelValues(string(event.Type), "rejected").Inc()
		return
	}

	var err error
	switch event.Type {
	case models.EventSale:
		err = c.applier.RecordSale(ctx, *event.Sale)
	case models.EventExpense:
		err = c.applier.RecordExpense(ctx, *event.Expense)
	case models.EventProduct:
		err = c.applier.UpsertProduct(ctx, *event.Product)
	}
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("failed to apply event")
		c.failed.Add(1)
		metrics.EventsConsumedTotal.WithLabelValues(string(event.Type), "failed").Inc()
		return
	}

	c.applied.Add(1)
	metrics.EventsConsumedTotal.WithLabelValues(string(event.Type), "applied").Inc()
	log.Debug().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("event applied")

	if c.notify != nil {
		select {
		case c.notify <- struct{}{}:
		default:
			// An evaluation is already pending
		}
	}
}

// Close stops the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Stats returns consumer counters.
func (c *Consumer) Stats() Stats {
	return Stats{
		Applied:  c.applied.Load(),
		Rejected: c.rejected.Load(),
		Failed:   c.failed.Load(),
	}
}

// Stats holds consumer metrics.
type Stats struct {
	Applied  uint64 `json:"applied"`
	Rejected uint64 `json:"rejected"`
	Failed   uint64 `json:"failed"`
}

package publisher

import (
	"context"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/metrics"
	r "github.com/fjod/storefront/internal/repository"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const batchSize = 100

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// StaleOrderRecoverer cancels card orders that never got a payment session.
type StaleOrderRecoverer interface {
	AbandonStaleOrders(ctx context.Context) (int, error)
}

type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	repo         r.OutboxStore
	writer       MessageWriter
	recoverer    StaleOrderRecoverer
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

type Option func(*OutboxPoller)

func WithEventTick(d time.Duration) Option {
	return func(p *OutboxPoller) { p.eventTick = d }
}

func WithRecoverer(rec StaleOrderRecoverer) Option {
	return func(p *OutboxPoller) { p.recoverer = rec }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *OutboxPoller) { p.metrics = m }
}

func NewOutboxPoller(repo r.OutboxStore, writer MessageWriter, log zerolog.Logger, opts ...Option) *OutboxPoller {
	p := &OutboxPoller{
		timeout:      5 * time.Second,
		eventTick:    time.Second,
		recoveryTick: time.Minute,
		repo:         repo,
		writer:       writer,
		log:          log.With().Str("component", "outbox_poller").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStaleOrders(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to fetch outbox events")
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.metrics.ObserveOutbox(event.EventType, "error")
			p.log.Error().Err(err).Int64("event_id", event.ID).Msg("failed to publish outbox event")
			// later events of the same order must not overtake this one
			return
		}
		p.metrics.ObserveOutbox(event.EventType, "published")

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error().Err(err).Int64("event_id", event.ID).Msg("failed to mark outbox event as processed")
			return
		}
	}
}

func (p *OutboxPoller) recoverStaleOrders(ctx context.Context) {
	if p.recoverer == nil {
		return
	}
	n, err := p.recoverer.AbandonStaleOrders(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to abandon stale card orders")
		return
	}
	if n > 0 {
		p.log.Warn().Int("count", n).Msg("abandoned card orders without payment session")
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *r.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID.String()), // order id for ordering
		Value: event.Payload,                      // already JSON from the database
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(strconv.FormatInt(event.ID, 10))},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

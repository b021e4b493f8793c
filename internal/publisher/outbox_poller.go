package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/checkout"
	"github.com/fjod/go_cart/internal/orders"
)

const DefaultTopic = "checkout-outbox"

// EventStore is the outbox side of the order store.
type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*orders.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, now time.Time) (checkout.ReconcileReport, error)
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxPoller publishes outbox events and periodically runs the checkout
// reconciliation sweep.
type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	batchSize    int
	events       EventStore
	reconciler   Reconciler
	writer       MessageWriter
	now          func() time.Time
	log          *zap.Logger
}

type Option func(*OutboxPoller)

func WithEventTick(d time.Duration) Option {
	return func(p *OutboxPoller) { p.eventTick = d }
}

func WithRecoveryTick(d time.Duration) Option {
	return func(p *OutboxPoller) { p.recoveryTick = d }
}

// WithTimeout bounds a single publish or sweep.
func WithTimeout(d time.Duration) Option {
	return func(p *OutboxPoller) { p.timeout = d }
}

func WithBatchSize(n int) Option {
	return func(p *OutboxPoller) { p.batchSize = n }
}

func WithClock(now func() time.Time) Option {
	return func(p *OutboxPoller) { p.now = now }
}

// NewKafkaWriter returns a writer that keys messages to a partition by hash
// so events of one order stay in order.
func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

// NewOutboxPoller builds a poller. A nil writer disables publishing; the
// sweep still runs.
func NewOutboxPoller(events EventStore, reconciler Reconciler, writer MessageWriter, log *zap.Logger, opts ...Option) *OutboxPoller {
	p := &OutboxPoller{
		timeout:      5 * time.Second,
		eventTick:    time.Second,
		recoveryTick: 30 * time.Second,
		batchSize:    100,
		events:       events,
		reconciler:   reconciler,
		writer:       writer,
		now:          time.Now,
		log:          log.Named("outbox"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is canceled.
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
			p.recover(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	if p.writer == nil {
		return 0
	}
	events, err := p.events.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.Error("failed to fetch events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.Warn("failed to publish event", zap.String("event_id", event.ID), zap.Error(err))
			continue
		}
		if err := p.events.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Warn("failed to mark event as processed", zap.String("event_id", event.ID), zap.Error(err))
			continue
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *orders.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id for ordering
		Value: event.Payload,             // already JSON from the outbox
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *OutboxPoller) recover(ctx context.Context) {
	if p.reconciler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.recoveryTick)
	defer cancel()

	if _, err := p.reconciler.Reconcile(ctx, p.now()); err != nil {
		p.log.Error("reconcile sweep failed", zap.Error(err))
	}
}

package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-gateway/internal/events"
	"github.com/spec-kit/ticket-gateway/internal/messaging"
	"github.com/spec-kit/ticket-gateway/internal/observability"
)

const (
	defaultForwardBuffer  = 1024
	defaultPublishTimeout = 5 * time.Second
	routingPrefix         = "audit"
)

// AuditForwarder relays committed audit events to the message broker. Events
// are queued without blocking the request path; when the queue is full the
// event is dropped and counted, since the audit row is already durable.
type AuditForwarder struct {
	publisher messaging.Publisher
	source    string
	queue     chan events.Event
	logger    *zap.Logger
	metrics   *observability.Metrics
	timeout   time.Duration
}

// NewAuditForwarder builds a forwarder. buffer <= 0 selects the default.
func NewAuditForwarder(publisher messaging.Publisher, source string, buffer int, logger *zap.Logger, metrics *observability.Metrics) *AuditForwarder {
	if buffer <= 0 {
		buffer = defaultForwardBuffer
	}
	return &AuditForwarder{
		publisher: publisher,
		source:    source,
		queue:     make(chan events.Event, buffer),
		logger:    logger,
		metrics:   metrics,
		timeout:   defaultPublishTimeout,
	}
}

// Register subscribes the forwarder to audit events.
func (f *AuditForwarder) Register(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventAuditRecorded, f.enqueue)
}

func (f *AuditForwarder) enqueue(_ context.Context, event events.Event) error {
	select {
	case f.queue <- event:
	default:
		f.metrics.RecordForward(false)
		f.logger.Warn("audit forward queue full; event dropped",
			zap.String("event_id", event.ID),
			zap.Int64("audit_id", event.Payload.AuditID))
	}
	return nil
}

// Run publishes queued events until ctx is done, then flushes what is left
// with a fresh deadline.
func (f *AuditForwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.drain()
			return
		case event := <-f.queue:
			f.forward(ctx, event)
		}
	}
}

func (f *AuditForwarder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	for {
		select {
		case event := <-f.queue:
			f.forward(ctx, event)
		default:
			return
		}
	}
}

func (f *AuditForwarder) forward(ctx context.Context, event events.Event) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	key := messaging.RoutingKey(routingPrefix, string(event.Payload.Action))
	err := f.publisher.Publish(ctx, key, messaging.Envelope{
		Meta: messaging.Meta{
			ID:         event.ID,
			Type:       string(event.Type),
			OccurredAt: event.Timestamp,
			Source:     f.source,
		},
		Payload: event.Payload,
	})
	f.metrics.RecordForward(err == nil)
	if err != nil {
		f.logger.Warn("audit event not forwarded",
			zap.String("routing_key", key),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

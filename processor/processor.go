// Package processor implements the message processor (C5): dispatch to
// registered handlers, error classification, and successor-row retry
// scheduling. Grounded on apps/integrations/tasks.py
// (process_integration_message, _process_inbound_message,
// _process_outbound_message).
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	otrace "go.opentelemetry.io/otel/trace"

	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/events"
	"github.com/juliezen/integrationhub/observability"
	"github.com/juliezen/integrationhub/pkg/logger"
	"github.com/juliezen/integrationhub/registry"
	"github.com/juliezen/integrationhub/store/postgres"
)

var timeNow = time.Now

type noopTracer struct{}

func (noopTracer) StartDelivery(ctx context.Context, msg observability.MessageMetadata) (context.Context, otrace.Span) {
	return ctx, otrace.SpanFromContext(ctx)
}
func (noopTracer) RecordDelivery(ctx context.Context, msg observability.MessageMetadata, d time.Duration, err error) {
}
func (noopTracer) Shutdown(ctx context.Context) error { return nil }

// Processor dispatches one queued message to its registered handlers and
// applies the resulting state transition.
type Processor struct {
	store    postgres.Store
	registry *registry.Registry
	logger   logger.Logger
	tracer   observability.Tracer
	bus      *events.Bus
}

func New(store postgres.Store, reg *registry.Registry, log logger.Logger) *Processor {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Processor{store: store, registry: reg, logger: log.WithField("component", "processor"), tracer: noopTracer{}, bus: events.Default}
}

// WithTracer attaches an observability.Tracer so every dispatch gets a span
// and a delivery-duration metric.
func (p *Processor) WithTracer(t observability.Tracer) *Processor {
	p.tracer = t
	return p
}

// WithEventBus overrides the event bus events are published to, mainly for
// tests; production code gets events.Default.
func (p *Processor) WithEventBus(b *events.Bus) *Processor {
	p.bus = b
	return p
}

// Process loads messageID, runs every registered handler for its
// (integration, event type) in order, and transitions the message
// according to the outcome:
//
//   - BackorderPending: the pipeline is waiting on stock, not failed. The
//     message is left acknowledged; it will be retried by whatever
//     re-drives the fulfillment order (not a message-level retry).
//   - any other error: the message is marked failed. If the error is
//     retryable and under MaxAutoRetries, a successor message is created
//     with NextRetryAt set for the scheduler to pick up — the failed row
//     itself is never resurrected in place.
//   - no error: the message is marked processed.
func (p *Processor) Process(ctx context.Context, messageID string) error {
	msg, err := p.store.Get(ctx, messageID)
	if err != nil {
		return fmt.Errorf("processor.Process: load: %w", err)
	}

	meta := observability.MessageMetadata{
		Integration: string(msg.Integration),
		EventType:   msg.EventType,
		Direction:   string(msg.Direction),
	}
	ctx, span := p.tracer.StartDelivery(ctx, meta)
	started := timeNow()
	processErr := p.process(ctx, msg)
	span.End()
	p.tracer.RecordDelivery(ctx, meta, timeNow().Sub(started), processErr)
	return processErr
}

func (p *Processor) process(ctx context.Context, msg *domain.IntegrationMessage) error {
	p.bus.Publish(ctx, events.Event{Name: eventName(msg.Integration, msg.EventType, "received"), Data: msg})

	if err := p.store.Transition(ctx, msg.ID, domain.StatusDispatched, nil); err != nil && !errors.Is(err, domain.ErrIllegalTransition) {
		return fmt.Errorf("processor.Process: dispatch: %w", err)
	}

	handlers := p.registry.Lookup(msg.Integration, msg.EventType)
	if len(handlers) == 0 {
		p.logger.Warn("no handlers registered", "integration", msg.Integration, "event_type", msg.EventType)
		return p.store.Transition(ctx, msg.ID, domain.StatusProcessed, nil)
	}

	var handlerErr error
	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			handlerErr = err
			break
		}
	}

	var backorder *domain.BackorderPending
	if errors.As(handlerErr, &backorder) {
		p.logger.Info("handler left order waiting on stock", "message_id", msg.ID)
		return p.store.Transition(ctx, msg.ID, domain.StatusAcknowledged, nil)
	}

	if handlerErr == nil {
		return p.store.Transition(ctx, msg.ID, domain.StatusProcessed, nil)
	}

	return p.fail(ctx, msg, handlerErr)
}

func (p *Processor) fail(ctx context.Context, msg *domain.IntegrationMessage, cause error) error {
	retryable := domain.IsRetryable(cause)
	errCode := errorCode(cause)

	if err := p.store.Transition(ctx, msg.ID, domain.StatusFailed, func(m *domain.IntegrationMessage) error {
		m.ErrorCode = errCode
		summary, err := json.Marshal(map[string]interface{}{
			"error_code":    errCode,
			"error_message": cause.Error(),
			"retryable":     retryable,
		})
		if err != nil {
			return err
		}
		m.ResponsePayload = summary
		return nil
	}); err != nil {
		return fmt.Errorf("processor.fail: mark failed: %w", err)
	}

	if !retryable || msg.RetryCount >= domain.MaxAutoRetries {
		p.logger.Error("message failed terminally", "message_id", msg.ID, "error_code", errCode, "retry_count", msg.RetryCount)
		return cause
	}

	successor := &domain.IntegrationMessage{
		ID:                uuid.NewString(),
		OrganizationID:    msg.OrganizationID,
		Integration:        msg.Integration,
		Direction:          msg.Direction,
		EventType:          msg.EventType,
		IdempotencyKey:     msg.IdempotencyKey,
		ExternalReference:  msg.ExternalReference,
		Status:             domain.StatusReceived,
		Payload:            msg.Payload,
		RetryCount:         msg.RetryCount + 1,
	}
	delay := postgres.BackoffDelay(successor.RetryCount)
	next := timeNow().Add(delay)
	successor.NextRetryAt = &next

	if err := p.store.Create(ctx, successor); err != nil {
		return fmt.Errorf("processor.fail: schedule retry: %w", err)
	}
	p.logger.Info("scheduled retry", "original_id", msg.ID, "successor_id", successor.ID, "delay", delay)
	return cause
}

// eventName builds a dotted event name ("storefront.orders.paid.received"),
// the Go equivalent of the Django signal names apps/*/handlers.py publish.
func eventName(integration domain.Integration, eventType, phase string) string {
	return fmt.Sprintf("%s.%s.%s", integration, eventType, phase)
}

func errorCode(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode
	}
	switch e := err.(type) {
	case *domain.FulfillmentConfigurationError:
		return e.FulfillmentError.ErrorCode
	case *domain.FulfillmentError:
		return e.ErrorCode
	}
	return "processing_error"
}

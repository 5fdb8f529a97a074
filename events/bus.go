// Package events implements the in-process event bus (C2): synchronous
// fan-out publish/subscribe plus a one-shot publish-and-wait request/response
// helper for a publisher that needs a reply from exactly one subscriber.
package events

import (
	"context"
	"fmt"
	"sync"
)

// Event is the payload passed to subscribers. Name is dotted
// ("storefront.orders.fulfilled") the way the original's Django signals
// name their events.
type Event struct {
	Name string
	Data interface{}
}

// Handler processes one event. A non-nil error is collected and returned by
// Publish; it does not stop fan-out to the remaining subscribers.
type Handler func(ctx context.Context, ev Event) error

// Bus is a mutex-guarded, in-process publish/subscribe registry.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
}

func New() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Default is the process-wide bus instance, mirroring the original's single
// module-level `event_bus` used across apps/*/handlers.py.
var Default = New()

// Subscribe registers handler for name, appended after any existing
// subscribers for the same name (fan-out preserves subscription order).
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = append(b.subscribers[name], h)
}

// Publish invokes every subscriber for name synchronously, in subscription
// order, collecting (not short-circuiting on) handler errors.
func (b *Bus) Publish(ctx context.Context, ev Event) []error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[ev.Name]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Reply is how a handler participating in PublishAndWait hands back a
// result; the first non-nil Reply sent wins.
type Reply struct {
	Value interface{}
	Err   error
}

// PublishAndWait fans the event out like Publish, but also accepts replies
// on replyCh from handlers that choose to respond, returning as soon as one
// arrives or ctx's deadline elapses. Used for the rare request/response
// handler pattern the spec calls out (distinct from fire-and-forget fan-out).
func (b *Bus) PublishAndWait(ctx context.Context, ev Event) (interface{}, error) {
	replyCh := make(chan Reply, 1)
	ctx = context.WithValue(ctx, replyContextKey{}, replyCh)

	go func() {
		b.Publish(ctx, ev)
		select {
		case replyCh <- Reply{Err: fmt.Errorf("no handler replied to %q", ev.Name)}:
		default:
		}
	}()

	select {
	case r := <-replyCh:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type replyContextKey struct{}

// RespondTo is called by a handler inside PublishAndWait to send its reply.
// It is a no-op if ctx was not produced by PublishAndWait or a reply was
// already sent.
func RespondTo(ctx context.Context, value interface{}, err error) {
	ch, ok := ctx.Value(replyContextKey{}).(chan Reply)
	if !ok {
		return
	}
	select {
	case ch <- Reply{Value: value, Err: err}:
	default:
	}
}

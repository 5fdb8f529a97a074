// Package registry implements the handler registry (C3): a two-level
// (integration, event type or wildcard) -> handler list dispatch table,
// translated from apps/integrations/router.py and
// apps/integrations/handlers/registry.go's @registry.register decorator.
package registry

import (
	"context"
	"sync"

	"github.com/juliezen/integrationhub/domain"
)

// Wildcard matches every event type for an integration, the Go equivalent
// of the original's "*" registration used by log_alegra_message.
const Wildcard = "*"

// MessageHandler processes one dispatched IntegrationMessage.
type MessageHandler func(ctx context.Context, msg *domain.IntegrationMessage) error

// Registry is append-only after startup: handlers are registered once while
// wiring cmd/integrationhub, then looked up read-only by the processor.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Integration]map[string][]MessageHandler
}

func New() *Registry {
	return &Registry{handlers: make(map[domain.Integration]map[string][]MessageHandler)}
}

// Register adds handler for (integration, eventType). eventType may be
// Wildcard to receive every event for that integration.
func (r *Registry) Register(integration domain.Integration, eventType string, handler MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers[integration] == nil {
		r.handlers[integration] = make(map[string][]MessageHandler)
	}
	r.handlers[integration][eventType] = append(r.handlers[integration][eventType], handler)
}

// Lookup returns every handler registered for integration's exact event
// type first, then every wildcard handler for that integration, matching
// spec.md §4.3's required dispatch order.
func (r *Registry) Lookup(integration domain.Integration, eventType string) []MessageHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byEvent := r.handlers[integration]
	if byEvent == nil {
		return nil
	}
	var out []MessageHandler
	out = append(out, byEvent[eventType]...)
	out = append(out, byEvent[Wildcard]...)
	return out
}

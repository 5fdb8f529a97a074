package ingress

import (
	"net/http"
	"strings"
)

// StorefrontEventExtractor mirrors the original's Shopify header
// convention: X-Shopify-Topic ("orders/create") becomes "orders.create",
// and X-Shopify-Webhook-Id is the idempotency key.
func StorefrontEventExtractor(topicHeader, webhookIDHeader string) EventTypeExtractor {
	return func(r *http.Request) (string, string) {
		topic := r.Header.Get(topicHeader)
		eventType := strings.ReplaceAll(topic, "/", ".")
		return eventType, r.Header.Get(webhookIDHeader)
	}
}

// StaticEventExtractor returns the same fixed event type for every request
// on its route, plus the idempotency key from idempotencyHeader. It serves
// the ERP and accounting routes; the event type is not read from the
// webhook payload.
func StaticEventExtractor(eventType, idempotencyHeader string) EventTypeExtractor {
	return func(r *http.Request) (string, string) {
		return eventType, r.Header.Get(idempotencyHeader)
	}
}

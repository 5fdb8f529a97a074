// Package ingress implements the C6 adapters: HTTP handlers that validate
// an inbound webhook, record it as an IntegrationMessage, and enqueue it
// for processing. Grounded on apps/shopify/handlers.py's
// handle_shopify_webhook_received, generalized to all three upstreams.
package ingress

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/pkg/logger"
	"github.com/juliezen/integrationhub/queue"
	"github.com/juliezen/integrationhub/store/postgres"
)

// SecretLookup resolves the shared secret for a tenant identifier pulled
// out of the request (the original's ShopifyStore.webhook_shared_secret
// lookup by domain).
type SecretLookup func(ctx context.Context, tenantID string) (organizationID, secret string, err error)

// EventTypeExtractor derives the dotted event type and idempotency key
// from the request headers, mirroring each upstream's own header
// conventions (X-Shopify-Topic / X-Shopify-Webhook-Id and similar).
type EventTypeExtractor func(r *http.Request) (eventType, idempotencyKey string)

// Adapter is one upstream's webhook ingress handler.
type Adapter struct {
	Integration    domain.Integration
	Secrets        SecretLookup
	ExtractEvent   EventTypeExtractor
	SignatureHeader string
	Store          postgres.Store
	Queue          queue.Queue
	Logger         logger.Logger
	// SkipSignatureCheck allows local/dev operation without a configured
	// secret, the Go equivalent of the original's settings.DEBUG bypass.
	SkipSignatureCheck bool
}

// ServeHTTP validates the webhook's signature, records it, and enqueues it.
// The tenant identifier is read with r.PathValue("tenant"), so the adapter
// is mounted on a Go 1.22+ mux pattern with a {tenant} segment.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := a.Logger
	if log == nil {
		log = logger.NewDefaultLogger()
	}

	tenantID := r.PathValue("tenant")
	orgID, secret, err := a.Secrets(ctx, tenantID)
	if err != nil {
		log.Warn("tenant lookup failed", "tenant", tenantID, "err", err)
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	if !a.SkipSignatureCheck {
		if secret == "" {
			log.Error("webhook shared secret not configured", "tenant", tenantID)
			http.Error(w, "not configured", http.StatusInternalServerError)
			return
		}
		signature := r.Header.Get(a.SignatureHeader)
		if !validSignature(secret, signature, body) {
			log.Warn("webhook signature validation failed", "tenant", tenantID)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	eventType, idempotencyKey := a.ExtractEvent(r)

	var payload map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["_tenant"] = tenantID

	externalRef := externalReference(payload)

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "cannot encode payload", http.StatusInternalServerError)
		return
	}

	msg := &domain.IntegrationMessage{
		OrganizationID:    orgID,
		Integration:       a.Integration,
		Direction:         domain.DirectionInbound,
		EventType:         eventType,
		IdempotencyKey:    idempotencyKey,
		ExternalReference: externalRef,
		Status:            domain.StatusReceived,
		Payload:           rawPayload,
	}
	if err := a.Store.Create(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			// Create overwrote msg in place with the row already on file
			// (same idempotency_key), so replaying the same webhook is a
			// no-op: respond 202 with the original message id rather than
			// re-dispatching or re-enqueueing it.
			log.Info("duplicate webhook, returning existing message", "message_id", msg.ID)
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprintf(w, `{"message_id":%q}`, msg.ID)
			return
		}
		log.Error("failed to record inbound message", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := a.Store.Transition(ctx, msg.ID, domain.StatusDispatched, nil); err != nil {
		log.Error("failed to mark dispatched", "message_id", msg.ID, "err", err)
	}
	if err := a.Queue.Enqueue(ctx, msg.ID); err != nil {
		log.Error("failed to enqueue message", "message_id", msg.ID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"message_id":%q}`, msg.ID)
}

// validSignature mirrors apps/shopify/handlers.py:_validate_webhook —
// base64-encoded HMAC-SHA256 over the raw body, compared with
// hmac.Equal (Go's constant-time compare_digest equivalent).
func validSignature(secret, signature string, body []byte) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// externalReference mirrors the id/name/order_number cascade in
// handle_shopify_webhook_received, generalized with a couple more
// candidate keys for the ERP/accounting adapters.
func externalReference(payload map[string]interface{}) string {
	for _, key := range []string{"id", "name", "order_number", "external_reference"} {
		if v, ok := payload[key]; ok {
			switch vv := v.(type) {
			case string:
				if vv != "" {
					return vv
				}
			case float64:
				return fmt.Sprintf("%v", vv)
			}
		}
	}
	return ""
}

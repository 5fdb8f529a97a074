package ingress

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juliezen/integrationhub/domain"
)

type fakeStore struct {
	created     []*domain.IntegrationMessage
	byIdemKey   map[string]*domain.IntegrationMessage
	nextID      int
}

func (f *fakeStore) Create(ctx context.Context, msg *domain.IntegrationMessage) error {
	if msg.IdempotencyKey != "" {
		if f.byIdemKey == nil {
			f.byIdemKey = map[string]*domain.IntegrationMessage{}
		}
		if existing, ok := f.byIdemKey[msg.IdempotencyKey]; ok {
			*msg = *existing
			return domain.ErrDuplicateMessage
		}
	}
	f.nextID++
	msg.ID = fmt.Sprintf("msg-%d", f.nextID)
	f.created = append(f.created, msg)
	if msg.IdempotencyKey != "" {
		f.byIdemKey[msg.IdempotencyKey] = msg
	}
	return nil
}
func (f *fakeStore) Get(ctx context.Context, id string) (*domain.IntegrationMessage, error) {
	return f.created[0], nil
}
func (f *fakeStore) Transition(ctx context.Context, id string, to domain.MessageStatus, mutate func(*domain.IntegrationMessage) error) error {
	return nil
}
func (f *fakeStore) Pending(ctx context.Context, limit int) ([]*domain.IntegrationMessage, error) {
	return nil, nil
}
func (f *fakeStore) DueForRetry(ctx context.Context, now time.Time, limit int) ([]*domain.IntegrationMessage, error) {
	return nil, nil
}
func (f *fakeStore) FindByIdempotencyKey(ctx context.Context, organizationID string, integration domain.Integration, direction domain.Direction, idempotencyKey string) (*domain.IntegrationMessage, error) {
	if msg, ok := f.byIdemKey[idempotencyKey]; ok {
		return msg, nil
	}
	return nil, domain.ErrMessageNotFound
}

type fakeQueue struct {
	enqueued []string
}

func (q *fakeQueue) Enqueue(ctx context.Context, messageID string) error {
	q.enqueued = append(q.enqueued, messageID)
	return nil
}
func (q *fakeQueue) Dequeue(ctx context.Context) (string, error) { return "", nil }

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestAdapterRejectsBadSignature(t *testing.T) {
	store := &fakeStore{}
	q := &fakeQueue{}
	a := &Adapter{
		Integration:     domain.IntegrationStorefront,
		Secrets:         func(ctx context.Context, tenant string) (string, string, error) { return "org-1", "shh", nil },
		ExtractEvent:    StorefrontEventExtractor("X-Shopify-Topic", "X-Shopify-Webhook-Id"),
		SignatureHeader: "X-Shopify-Hmac-Sha256",
		Store:           store,
		Queue:           q,
	}

	body := `{"id": 123}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/storefront/acme", strings.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", "bogus")
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, store.created)
}

func TestAdapterAcceptsValidSignatureAndEnqueues(t *testing.T) {
	store := &fakeStore{}
	q := &fakeQueue{}
	secret := "shh"
	a := &Adapter{
		Integration:     domain.IntegrationStorefront,
		Secrets:         func(ctx context.Context, tenant string) (string, string, error) { return "org-1", secret, nil },
		ExtractEvent:    StorefrontEventExtractor("X-Shopify-Topic", "X-Shopify-Webhook-Id"),
		SignatureHeader: "X-Shopify-Hmac-Sha256",
		Store:           store,
		Queue:           q,
	}

	body := `{"id": 123}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/storefront/acme", strings.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", sign(secret, body))
	req.Header.Set("X-Shopify-Topic", "orders/create")
	req.Header.Set("X-Shopify-Webhook-Id", "wh-1")
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, store.created, 1)
	require.Equal(t, "orders.create", store.created[0].EventType)
	require.Equal(t, "wh-1", store.created[0].IdempotencyKey)
	require.Equal(t, []string{"msg-1"}, q.enqueued)
}

// TestAdapterDeduplicatesReplayedWebhook covers S5: the same webhook
// delivered twice (identical idempotency key) gets the same message id
// back on the second delivery, with no second enqueue.
func TestAdapterDeduplicatesReplayedWebhook(t *testing.T) {
	store := &fakeStore{}
	q := &fakeQueue{}
	secret := "shh"
	a := &Adapter{
		Integration:     domain.IntegrationStorefront,
		Secrets:         func(ctx context.Context, tenant string) (string, string, error) { return "org-1", secret, nil },
		ExtractEvent:    StorefrontEventExtractor("X-Shopify-Topic", "X-Shopify-Webhook-Id"),
		SignatureHeader: "X-Shopify-Hmac-Sha256",
		Store:           store,
		Queue:           q,
	}

	body := `{"id": 123}`
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/storefront/acme", strings.NewReader(body))
		req.Header.Set("X-Shopify-Hmac-Sha256", sign(secret, body))
		req.Header.Set("X-Shopify-Topic", "orders/create")
		req.Header.Set("X-Shopify-Webhook-Id", "wh-1")
		w := httptest.NewRecorder()
		a.ServeHTTP(w, req)
		return w
	}

	first := send()
	second := send()

	require.Equal(t, http.StatusAccepted, first.Code)
	require.Equal(t, http.StatusAccepted, second.Code)
	require.Len(t, store.created, 1)
	require.Equal(t, []string{"msg-1"}, q.enqueued)
	require.JSONEq(t, first.Body.String(), second.Body.String())
}

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juliezen/integrationhub/domain"
)

type fakeStore struct {
	created     []*domain.IntegrationMessage
	transitions []domain.MessageStatus
}

func (f *fakeStore) Create(ctx context.Context, msg *domain.IntegrationMessage) error {
	msg.ID = "msg-1"
	f.created = append(f.created, msg)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*domain.IntegrationMessage, error) {
	return f.created[0], nil
}

func (f *fakeStore) Transition(ctx context.Context, id string, to domain.MessageStatus, mutate func(*domain.IntegrationMessage) error) error {
	f.transitions = append(f.transitions, to)
	if mutate != nil {
		return mutate(f.created[0])
	}
	return nil
}

func (f *fakeStore) Pending(ctx context.Context, limit int) ([]*domain.IntegrationMessage, error) {
	return nil, nil
}

func (f *fakeStore) DueForRetry(ctx context.Context, now time.Time, limit int) ([]*domain.IntegrationMessage, error) {
	return nil, nil
}

func (f *fakeStore) FindByIdempotencyKey(ctx context.Context, organizationID string, integration domain.Integration, direction domain.Direction, idempotencyKey string) (*domain.IntegrationMessage, error) {
	for _, m := range f.created {
		if m.IdempotencyKey == idempotencyKey {
			return m, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func TestDoRecordsOutboundBeforeCallAndMarksProcessed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/invoices", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "inv-1"}`))
	}))
	defer srv.Close()

	store := &fakeStore{}
	client := New(store, 5*time.Second)

	resp, err := client.Do(context.Background(), Request{
		Method:  http.MethodPost,
		BaseURL: srv.URL,
		Path:    "/invoices",
		Body:    map[string]interface{}{"id": "inv-1"},
	})
	require.NoError(t, err)
	require.Equal(t, "inv-1", resp.Body["id"])
	require.Len(t, store.created, 1)
	require.Equal(t, domain.StatusDispatched, store.created[0].Status)
	require.Equal(t, []domain.MessageStatus{domain.StatusProcessed}, store.transitions)
}

func TestDoClassifiesNonRetryableClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "missing"}`))
	}))
	defer srv.Close()

	store := &fakeStore{}
	client := New(store, 5*time.Second)

	_, err := client.Do(context.Background(), Request{
		Method:  http.MethodGet,
		BaseURL: srv.URL,
		Path:    "contacts",
	})
	require.Error(t, err)
	apiErr, ok := err.(*domain.APIError)
	require.True(t, ok)
	require.Equal(t, "not_found", apiErr.ErrorCode)
	require.False(t, apiErr.Retryable)
	require.Equal(t, []domain.MessageStatus{domain.StatusFailed}, store.transitions)
}

func TestJoinURLAlwaysOneSlash(t *testing.T) {
	u, err := joinURL("https://api.example.com/v1/", "/invoices")
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/v1/invoices", u)
}

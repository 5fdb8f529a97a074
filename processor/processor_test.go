package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/registry"
)

type fakeStore struct {
	messages map[string]*domain.IntegrationMessage
	created  []*domain.IntegrationMessage
}

func newFakeStore(msgs ...*domain.IntegrationMessage) *fakeStore {
	s := &fakeStore{messages: make(map[string]*domain.IntegrationMessage)}
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	return s
}

func (f *fakeStore) Create(ctx context.Context, msg *domain.IntegrationMessage) error {
	f.messages[msg.ID] = msg
	f.created = append(f.created, msg)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*domain.IntegrationMessage, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return m, nil
}

func (f *fakeStore) Transition(ctx context.Context, id string, to domain.MessageStatus, mutate func(*domain.IntegrationMessage) error) error {
	m := f.messages[id]
	if !domain.CanTransition(m.Status, to) {
		return domain.ErrIllegalTransition
	}
	if mutate != nil {
		if err := mutate(m); err != nil {
			return err
		}
	}
	m.Status = to
	return nil
}

func (f *fakeStore) Pending(ctx context.Context, limit int) ([]*domain.IntegrationMessage, error) {
	return nil, nil
}

func (f *fakeStore) DueForRetry(ctx context.Context, now time.Time, limit int) ([]*domain.IntegrationMessage, error) {
	return nil, nil
}

func (f *fakeStore) FindByIdempotencyKey(ctx context.Context, organizationID string, integration domain.Integration, direction domain.Direction, idempotencyKey string) (*domain.IntegrationMessage, error) {
	for _, m := range f.messages {
		if m.OrganizationID == organizationID && m.Integration == integration && m.Direction == direction && m.IdempotencyKey == idempotencyKey {
			return m, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func TestProcessMarksProcessedOnSuccess(t *testing.T) {
	msg := &domain.IntegrationMessage{ID: "m1", Integration: domain.IntegrationStorefront, EventType: "orders.create", Status: domain.StatusReceived}
	store := newFakeStore(msg)
	reg := registry.New()
	reg.Register(domain.IntegrationStorefront, "orders.create", func(ctx context.Context, m *domain.IntegrationMessage) error {
		return nil
	})

	p := New(store, reg, nil)
	require.NoError(t, p.Process(context.Background(), "m1"))
	require.Equal(t, domain.StatusProcessed, msg.Status)
}

func TestProcessLeavesAcknowledgedOnBackorder(t *testing.T) {
	msg := &domain.IntegrationMessage{ID: "m1", Integration: domain.IntegrationERPPOS, EventType: "fulfillment.requested", Status: domain.StatusReceived}
	store := newFakeStore(msg)
	reg := registry.New()
	reg.Register(domain.IntegrationERPPOS, "fulfillment.requested", func(ctx context.Context, m *domain.IntegrationMessage) error {
		return domain.NewBackorderPending("")
	})

	p := New(store, reg, nil)
	err := p.Process(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusAcknowledged, msg.Status)
}

func TestProcessSchedulesSuccessorOnRetryableFailure(t *testing.T) {
	msg := &domain.IntegrationMessage{ID: "m1", Integration: domain.IntegrationAccounting, EventType: "invoice.sync", Status: domain.StatusReceived, RetryCount: 0}
	store := newFakeStore(msg)
	reg := registry.New()
	reg.Register(domain.IntegrationAccounting, "invoice.sync", func(ctx context.Context, m *domain.IntegrationMessage) error {
		return &domain.APIError{StatusCode: 503, ErrorCode: "service_unavailable", Retryable: true}
	})

	p := New(store, reg, nil)
	err := p.Process(context.Background(), "m1")
	require.Error(t, err)
	require.Equal(t, domain.StatusFailed, msg.Status)
	require.Len(t, store.created, 1)
	successor := store.created[0]
	require.Equal(t, domain.StatusReceived, successor.Status)
	require.Equal(t, 1, successor.RetryCount)
	require.NotNil(t, successor.NextRetryAt)
}

func TestProcessDoesNotRetryAfterMaxAttempts(t *testing.T) {
	msg := &domain.IntegrationMessage{ID: "m1", Integration: domain.IntegrationAccounting, EventType: "invoice.sync", Status: domain.StatusReceived, RetryCount: domain.MaxAutoRetries}
	store := newFakeStore(msg)
	reg := registry.New()
	reg.Register(domain.IntegrationAccounting, "invoice.sync", func(ctx context.Context, m *domain.IntegrationMessage) error {
		return &domain.APIError{StatusCode: 503, ErrorCode: "service_unavailable", Retryable: true}
	})

	p := New(store, reg, nil)
	err := p.Process(context.Background(), "m1")
	require.Error(t, err)
	require.Empty(t, store.created)
}

package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/juliezen/integrationhub/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil), mock
}

func TestCreateRejectsOversizedPayload(t *testing.T) {
	store, _ := newMockStore(t)
	big := make([]byte, domain.MaxPayloadBytes+1)
	err := store.Create(context.Background(), &domain.IntegrationMessage{Payload: big})
	require.ErrorIs(t, err, domain.ErrPayloadTooLarge)
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	cols := []string{"id", "organization_id", "integration", "direction", "event_type", "idempotency_key",
		"external_reference", "status", "payload", "response_payload", "error_code",
		"retry_count", "next_retry_at", "created_at", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM integration_messages WHERE id = \\$1 FOR UPDATE").
		WithArgs("msg-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"msg-1", "org-1", domain.IntegrationStorefront, domain.DirectionInbound, "orders.create", "idem-1",
			"ext-1", domain.StatusProcessed, []byte(`{}`), nil, "",
			0, nil, now, now,
		))
	mock.ExpectRollback()

	err := store.Transition(context.Background(), "msg-1", domain.StatusDispatched, nil)
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackoffDelayStopsDoublingAfterSixRetries(t *testing.T) {
	require.Equal(t, 5*time.Second, BackoffDelay(0))
	require.Equal(t, 10*time.Second, BackoffDelay(1))
	require.Equal(t, 320*time.Second, BackoffDelay(6))
	require.Equal(t, 320*time.Second, BackoffDelay(20))
}

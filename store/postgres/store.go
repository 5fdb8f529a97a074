// Package postgres implements the durable message store (C1) over
// database/sql and github.com/lib/pq, translating the row-locking
// transition logic of IntegrationMessage._transition from the original
// Django model into an explicit transaction + SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/pkg/logger"
)

// Store is the persistence contract C4/C5/C6 (httpclient, processor,
// ingress) depend on. Kept as an interface so tests can substitute a
// sqlmock-backed *PostgresStore or an in-memory
// fake without changing callers.
type Store interface {
	Create(ctx context.Context, msg *domain.IntegrationMessage) error
	Get(ctx context.Context, id string) (*domain.IntegrationMessage, error)
	Transition(ctx context.Context, id string, to domain.MessageStatus, mutate func(*domain.IntegrationMessage) error) error
	Pending(ctx context.Context, limit int) ([]*domain.IntegrationMessage, error)
	DueForRetry(ctx context.Context, now time.Time, limit int) ([]*domain.IntegrationMessage, error)
	FindByIdempotencyKey(ctx context.Context, organizationID string, integration domain.Integration, direction domain.Direction, idempotencyKey string) (*domain.IntegrationMessage, error)
}

// PostgresStore implements the Store interface over a *sql.DB.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func New(db *sql.DB, log logger.Logger) *PostgresStore {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &PostgresStore{db: db, logger: log.WithField("component", "store.postgres")}
}

// Create inserts a new IntegrationMessage in StatusReceived (or whatever
// Status is already set on msg), enforcing the payload size bound. A
// non-empty IdempotencyKey is unique per (organization_id, integration,
// direction): a second Create with the same key is rejected at the
// database via ON CONFLICT ... DO NOTHING rather than a duplicate row, and
// msg is rewritten in place to the row that already exists before
// domain.ErrDuplicateMessage is returned, so the caller can still respond
// as if its own insert had succeeded. Messages without an idempotency key
// are never deduplicated (the migration's unique index is partial on
// idempotency_key <> ''), matching §5's "duplicates without a key are
// allowed" rule.
func (s *PostgresStore) Create(ctx context.Context, msg *domain.IntegrationMessage) error {
	if len(msg.Payload) > domain.MaxPayloadBytes {
		return domain.ErrPayloadTooLarge
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = domain.StatusReceived
	}
	now := timeNow()
	msg.CreatedAt, msg.UpdatedAt = now, now

	const q = `
		INSERT INTO integration_messages
			(id, organization_id, integration, direction, event_type, idempotency_key,
			 external_reference, status, payload, response_payload, error_code,
			 retry_count, next_retry_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (organization_id, integration, direction, idempotency_key) WHERE idempotency_key <> ''
		DO NOTHING`
	res, err := s.db.ExecContext(ctx, q,
		msg.ID, msg.OrganizationID, msg.Integration, msg.Direction, msg.EventType, msg.IdempotencyKey,
		msg.ExternalReference, msg.Status, nullRaw(msg.Payload), nullRaw(msg.ResponsePayload), msg.ErrorCode,
		msg.RetryCount, msg.NextRetryAt, msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("create message failed", "id", msg.ID, "err", err)
		return fmt.Errorf("store.Create: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store.Create: rows affected: %w", err)
	}
	if rows == 0 && msg.IdempotencyKey != "" {
		existing, err := s.FindByIdempotencyKey(ctx, msg.OrganizationID, msg.Integration, msg.Direction, msg.IdempotencyKey)
		if err != nil {
			return fmt.Errorf("store.Create: resolve duplicate: %w", err)
		}
		*msg = *existing
		return domain.ErrDuplicateMessage
	}
	return nil
}

// FindByIdempotencyKey looks up the existing row a duplicate Create
// collided with.
func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, organizationID string, integration domain.Integration, direction domain.Direction, idempotencyKey string) (*domain.IntegrationMessage, error) {
	const q = `
		SELECT id, organization_id, integration, direction, event_type, idempotency_key,
		       external_reference, status, payload, response_payload, error_code,
		       retry_count, next_retry_at, created_at, updated_at
		FROM integration_messages
		WHERE organization_id = $1 AND integration = $2 AND direction = $3 AND idempotency_key = $4`
	row := s.db.QueryRowContext(ctx, q, organizationID, integration, direction, idempotencyKey)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.FindByIdempotencyKey: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.IntegrationMessage, error) {
	const q = `
		SELECT id, organization_id, integration, direction, event_type, idempotency_key,
		       external_reference, status, payload, response_payload, error_code,
		       retry_count, next_retry_at, created_at, updated_at
		FROM integration_messages WHERE id = $1`
	row := s.db.QueryRowContext(ctx, q, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.Get: %w", err)
	}
	return msg, nil
}

// Transition loads the row under SELECT ... FOR UPDATE inside a
// transaction, validates the transition against domain.AllowedTransitions,
// applies mutate (for response_payload/error_code/retry bookkeeping), and
// commits. This mirrors IntegrationMessage._transition in
// apps/integrations/models.py line for line, substituting Go's explicit
// tx/commit for Django's select_for_update()+atomic().
func (s *PostgresStore) Transition(ctx context.Context, id string, to domain.MessageStatus, mutate func(*domain.IntegrationMessage) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.Transition: begin: %w", err)
	}
	defer tx.Rollback()

	const q = `
		SELECT id, organization_id, integration, direction, event_type, idempotency_key,
		       external_reference, status, payload, response_payload, error_code,
		       retry_count, next_retry_at, created_at, updated_at
		FROM integration_messages WHERE id = $1 FOR UPDATE`
	row := tx.QueryRowContext(ctx, q, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return domain.ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("store.Transition: select: %w", err)
	}

	if !domain.CanTransition(msg.Status, to) {
		return fmt.Errorf("store.Transition: %s -> %s: %w", msg.Status, to, domain.ErrIllegalTransition)
	}

	if mutate != nil {
		if err := mutate(msg); err != nil {
			return err
		}
	}
	msg.Status = to
	msg.UpdatedAt = timeNow()

	const u = `
		UPDATE integration_messages
		SET status=$2, response_payload=$3, error_code=$4, retry_count=$5, next_retry_at=$6, updated_at=$7
		WHERE id=$1`
	if _, err := tx.ExecContext(ctx, u, msg.ID, msg.Status, nullRaw(msg.ResponsePayload), msg.ErrorCode, msg.RetryCount, msg.NextRetryAt, msg.UpdatedAt); err != nil {
		return fmt.Errorf("store.Transition: update: %w", err)
	}
	return tx.Commit()
}

// Pending returns messages ready for immediate dispatch: StatusDispatched
// (already picked up, being redelivered) or fresh StatusReceived rows that
// are not a delayed retry successor (NextRetryAt is nil). Successor rows
// carrying a future NextRetryAt only surface via DueForRetry once elapsed.
func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]*domain.IntegrationMessage, error) {
	const q = `
		SELECT id, organization_id, integration, direction, event_type, idempotency_key,
		       external_reference, status, payload, response_payload, error_code,
		       retry_count, next_retry_at, created_at, updated_at
		FROM integration_messages
		WHERE status = $1
		   OR (status = $2 AND next_retry_at IS NULL)
		ORDER BY created_at ASC
		LIMIT $3`
	rows, err := s.db.QueryContext(ctx, q, domain.StatusDispatched, domain.StatusReceived, limit)
	if err != nil {
		return nil, fmt.Errorf("store.Pending: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// DueForRetry returns successor messages (StatusReceived with a NextRetryAt
// in the past) ready to be re-enqueued by the retry scanner.
func (s *PostgresStore) DueForRetry(ctx context.Context, now time.Time, limit int) ([]*domain.IntegrationMessage, error) {
	const q = `
		SELECT id, organization_id, integration, direction, event_type, idempotency_key,
		       external_reference, status, payload, response_payload, error_code,
		       retry_count, next_retry_at, created_at, updated_at
		FROM integration_messages
		WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
		ORDER BY next_retry_at ASC
		LIMIT $3`
	rows, err := s.db.QueryContext(ctx, q, domain.StatusReceived, now, limit)
	if err != nil {
		return nil, fmt.Errorf("store.DueForRetry: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// BackoffDelay implements delay_seconds(r) = min(5*2^min(r,6), 3600),
// translated from IntegrationMessage._backoff_delay.
func BackoffDelay(retryCount int) time.Duration {
	capped := retryCount
	if capped > 6 {
		capped = 6
	}
	seconds := 5 * math.Pow(2, float64(capped))
	if seconds > 3600 {
		seconds = 3600
	}
	return time.Duration(seconds) * time.Second
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scannable) (*domain.IntegrationMessage, error) {
	var m domain.IntegrationMessage
	var payload, response []byte
	var nextRetry sql.NullTime
	err := row.Scan(
		&m.ID, &m.OrganizationID, &m.Integration, &m.Direction, &m.EventType, &m.IdempotencyKey,
		&m.ExternalReference, &m.Status, &payload, &response, &m.ErrorCode,
		&m.RetryCount, &nextRetry, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		m.Payload = json.RawMessage(payload)
	}
	if len(response) > 0 {
		m.ResponsePayload = json.RawMessage(response)
	}
	if nextRetry.Valid {
		t := nextRetry.Time
		m.NextRetryAt = &t
	}
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.IntegrationMessage, error) {
	var out []*domain.IntegrationMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullRaw(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

// timeNow is a var so tests can pin it; time.Now directly elsewhere would
// make transition timestamps non-deterministic in fixtures.
var timeNow = time.Now

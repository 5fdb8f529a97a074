package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/juliezen/integrationhub/domain"
)

// FulfillmentStore implements fulfillment.OrderStore and
// fulfillment.ItemMapLookup over fulfillment_orders/fulfillment_item_maps,
// the Go equivalent of FulfillmentOrder.objects.get_or_create and
// FulfillmentItemMap.objects.filter(...).first() in the Django models.
type FulfillmentStore struct {
	db *sql.DB
}

func NewFulfillmentStore(db *sql.DB) *FulfillmentStore {
	return &FulfillmentStore{db: db}
}

// GetOrCreate returns the existing FulfillmentOrder for
// (organizationID, source, sourceOrderID), creating a fresh pending row on
// first sight, mirroring the unique constraint's get-or-create semantics.
func (s *FulfillmentStore) GetOrCreate(ctx context.Context, organizationID string, source domain.Integration, sourceOrderID string) (*domain.FulfillmentOrder, error) {
	const selectQ = `
		SELECT id, organization_id, source_integration, source_order_id, distributor_company,
		       status, sales_order_name, delivery_note_name, last_error, retry_count,
		       snapshot, created_at, updated_at
		FROM fulfillment_orders
		WHERE organization_id = $1 AND source_integration = $2 AND source_order_id = $3`
	order, err := scanFulfillmentOrder(s.db.QueryRowContext(ctx, selectQ, organizationID, source, sourceOrderID))
	if err == nil {
		return order, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("postgres.FulfillmentStore.GetOrCreate: select: %w", err)
	}

	id := uuid.NewString()
	const insertQ = `
		INSERT INTO fulfillment_orders (id, organization_id, source_integration, source_order_id, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (organization_id, source_integration, source_order_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, insertQ, id, organizationID, source, sourceOrderID, domain.FulfillmentPending); err != nil {
		return nil, fmt.Errorf("postgres.FulfillmentStore.GetOrCreate: insert: %w", err)
	}
	order, err = scanFulfillmentOrder(s.db.QueryRowContext(ctx, selectQ, organizationID, source, sourceOrderID))
	if err != nil {
		return nil, fmt.Errorf("postgres.FulfillmentStore.GetOrCreate: reselect: %w", err)
	}
	return order, nil
}

func (s *FulfillmentStore) MarkStatus(ctx context.Context, id string, status domain.FulfillmentOrderStatus, lastError string) error {
	const q = `UPDATE fulfillment_orders SET status=$2, last_error=$3, updated_at=now() WHERE id=$1`
	_, err := s.db.ExecContext(ctx, q, id, status, lastError)
	if err != nil {
		return fmt.Errorf("postgres.FulfillmentStore.MarkStatus: %w", err)
	}
	return nil
}

func (s *FulfillmentStore) RecordFulfillment(ctx context.Context, id, salesOrderName, deliveryNoteName string) error {
	const q = `
		UPDATE fulfillment_orders
		SET status=$2, sales_order_name=$3, delivery_note_name=$4, updated_at=now()
		WHERE id=$1`
	_, err := s.db.ExecContext(ctx, q, id, domain.FulfillmentFulfilled, salesOrderName, deliveryNoteName)
	if err != nil {
		return fmt.Errorf("postgres.FulfillmentStore.RecordFulfillment: %w", err)
	}
	return nil
}

// LookupItemMap satisfies fulfillment.ItemMapLookup: an exact match on
// (organization_id, source_item_code), or (nil, nil) when absent so the
// caller falls through to its metadata/identity tiers.
func (s *FulfillmentStore) LookupItemMap(ctx context.Context, organizationID, sourceItemCode string) (*domain.FulfillmentItemMap, error) {
	const q = `
		SELECT id, organization_id, company, source_item_code, target_item_code, target_company, warehouse
		FROM fulfillment_item_maps
		WHERE organization_id = $1 AND source_item_code = $2
		LIMIT 1`
	var m domain.FulfillmentItemMap
	err := s.db.QueryRowContext(ctx, q, organizationID, sourceItemCode).Scan(
		&m.ID, &m.OrganizationID, &m.Company, &m.SourceItemCode, &m.TargetItemCode, &m.TargetCompany, &m.Warehouse,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres.FulfillmentStore.LookupItemMap: %w", err)
	}
	return &m, nil
}

type fulfillmentOrderScanner interface {
	Scan(dest ...interface{}) error
}

func scanFulfillmentOrder(row fulfillmentOrderScanner) (*domain.FulfillmentOrder, error) {
	var o domain.FulfillmentOrder
	var snapshot []byte
	err := row.Scan(
		&o.ID, &o.OrganizationID, &o.SourceIntegration, &o.SourceOrderID, &o.DistributorCompany,
		&o.Status, &o.SalesOrderName, &o.DeliveryNoteName, &o.LastError, &o.RetryCount,
		&snapshot, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		o.Snapshot = json.RawMessage(snapshot)
	}
	return &o, nil
}

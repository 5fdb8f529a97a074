package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/pkg/logger"
)

// OrderStore persists and looks up FulfillmentOrder rows, the Go
// equivalent of FulfillmentOrder's get_or_create/mark_status/
// record_fulfillment calls in the Django model.
type OrderStore interface {
	GetOrCreate(ctx context.Context, organizationID string, source domain.Integration, sourceOrderID string) (*domain.FulfillmentOrder, error)
	MarkStatus(ctx context.Context, id string, status domain.FulfillmentOrderStatus, lastError string) error
	RecordFulfillment(ctx context.Context, id, salesOrderName, deliveryNoteName string) error
}

// SourceUpdater propagates the final fulfillment outcome back to the
// source system. Grounded on service.py's _propagate_status: an ERPNext
// source gets a direct update_doc call, a Shopify source only a
// best-effort note (both failures are logged and swallowed, never raised).
type SourceUpdater interface {
	UpdateSource(ctx context.Context, source domain.Integration, sourceOrderID string, docs *DistributorDocuments) error
}

// Settings is the per-tenant configuration the pipeline consults: which
// distributor company to target, whether to create a sales order, the
// allocation mode, and item metadata fallback.
type Settings struct {
	DistributorCompany string
	CreateSalesOrder   bool
	AllocationMode     AllocationMode
	MetadataItemMap    map[string]string
}

// Service is the top-level orchestrator (C7), the Go translation of
// gateway/service.py:FulfillmentGatewayService.
type Service struct {
	Orders      OrderStore
	ItemMaps    ItemMapLookup
	Stock       StockChecker
	Allocator   SerialAllocator
	Documents   DocumentCreator
	SourceSync  SourceUpdater
	Logger      logger.Logger
}

// Process runs the full pipeline for one inbound order payload:
// get-or-create the FulfillmentOrder -> normalize -> map lines ->
// stock/backorder -> create documents -> propagate status.
//
// An already-fulfilled order short-circuits immediately (idempotent replay
// protection, matching service.py's leading status check). A
// BackorderPending error marks the order waiting_stock and is returned
// unwrapped so the caller (the message processor) treats it as
// non-terminal, never as a failure.
func (s *Service) Process(ctx context.Context, organizationID string, source domain.Integration, payload map[string]interface{}, settings Settings) (*domain.FulfillmentOrder, error) {
	order, err := s.normalizeAndResolve(ctx, organizationID, source, payload)
	if err != nil {
		return nil, err
	}

	if order.order.Status == domain.FulfillmentFulfilled {
		return order.order, nil
	}

	if err := s.Orders.MarkStatus(ctx, order.order.ID, domain.FulfillmentProcessing, ""); err != nil {
		return nil, fmt.Errorf("fulfillment.Process: mark processing: %w", err)
	}

	mapped, err := MapLines(ctx, s.ItemMaps, settings.MetadataItemMap, organizationID, settings.DistributorCompany, order.normalized)
	if err != nil {
		return s.fail(ctx, order.order, err)
	}

	if err := CheckStock(ctx, settings.AllocationMode, s.Stock, s.Allocator, mapped); err != nil {
		var backorder *domain.BackorderPending
		if isBackorder(err, &backorder) {
			_ = s.Orders.MarkStatus(ctx, order.order.ID, domain.FulfillmentWaitingStock, err.Error())
			return order.order, err
		}
		return s.fail(ctx, order.order, err)
	}

	docs, err := CreateDocuments(ctx, s.Documents, mapped[0].TargetCompany, mapped, settings.CreateSalesOrder)
	if err != nil {
		return s.fail(ctx, order.order, err)
	}

	if err := s.Orders.RecordFulfillment(ctx, order.order.ID, docs.SalesOrderName, docs.DeliveryNoteName); err != nil {
		return nil, fmt.Errorf("fulfillment.Process: record fulfillment: %w", err)
	}

	s.propagate(ctx, source, order.normalized.SourceOrderID, docs)

	order.order.Status = domain.FulfillmentFulfilled
	order.order.SalesOrderName = docs.SalesOrderName
	order.order.DeliveryNoteName = docs.DeliveryNoteName
	return order.order, nil
}

type resolvedOrder struct {
	order      *domain.FulfillmentOrder
	normalized *NormalizedOrder
}

func (s *Service) normalizeAndResolve(ctx context.Context, organizationID string, source domain.Integration, payload map[string]interface{}) (*resolvedOrder, error) {
	normalized, err := Normalize(source, payload)
	if err != nil {
		return nil, err
	}

	snapshot, _ := json.Marshal(payload)
	order, err := s.Orders.GetOrCreate(ctx, organizationID, source, normalized.SourceOrderID)
	if err != nil {
		return nil, fmt.Errorf("fulfillment.normalizeAndResolve: %w", err)
	}
	order.Snapshot = snapshot

	return &resolvedOrder{order: order, normalized: normalized}, nil
}

func (s *Service) fail(ctx context.Context, order *domain.FulfillmentOrder, cause error) (*domain.FulfillmentOrder, error) {
	_ = s.Orders.MarkStatus(ctx, order.ID, domain.FulfillmentFailed, cause.Error())
	return order, cause
}

// propagate mirrors service.py's _propagate_status: best-effort, the
// failure is logged and swallowed rather than surfaced to the caller,
// since the fulfillment itself already succeeded.
func (s *Service) propagate(ctx context.Context, source domain.Integration, sourceOrderID string, docs *DistributorDocuments) {
	if s.SourceSync == nil {
		return
	}
	if err := s.SourceSync.UpdateSource(ctx, source, sourceOrderID, docs); err != nil {
		log := s.Logger
		if log == nil {
			log = logger.NewDefaultLogger()
		}
		log.Warn("failed to propagate fulfillment status to source", "source", source, "source_order_id", sourceOrderID, "err", err)
	}
}

func isBackorder(err error, target **domain.BackorderPending) bool {
	if b, ok := err.(*domain.BackorderPending); ok {
		*target = b
		return true
	}
	return false
}

package fulfillment

import (
	"context"

	"github.com/juliezen/integrationhub/domain"
)

// StockChecker reports how many units of targetItemCode are available at
// warehouse; CheckStock compares that with each line's required quantity.
// Delegated allocation (the spec's chosen default,
// see DESIGN.md) defers serial assignment to the distributor system and
// only needs a quantity-on-hand comparison here.
type StockChecker interface {
	AvailableQuantity(ctx context.Context, targetItemCode, warehouse string) (float64, error)
}

// SerialAllocator is the original's eager pre-allocation path
// (executor.py:SerialAllocator.allocate / assign_serials), kept available
// but configuration-gated behind AllocationMode — not the default.
type SerialAllocator interface {
	Allocate(ctx context.Context, targetItemCode, warehouse string, quantity int) ([]string, error)
}

type AllocationMode string

const (
	// AllocationDelegated defers serial assignment to the distributor
	// system; only a stock-quantity check runs here. Default.
	AllocationDelegated AllocationMode = "delegated"
	// AllocationEager pre-allocates specific serial numbers before
	// creating distributor documents, the original Python behavior.
	AllocationEager AllocationMode = "eager"
)

// DistributorDocuments is what CreateDocuments produces: the sales order
// (optional) and delivery note (mandatory, submitted) names.
type DistributorDocuments struct {
	SalesOrderName   string
	DeliveryNoteName string
}

// DocumentCreator creates and submits the distributor-side documents for a
// mapped order, grounded on executor.py's create_sales_order /
// create_delivery_note.
type DocumentCreator interface {
	CreateSalesOrder(ctx context.Context, company string, lines []MappedLine, createSalesOrder bool) (string, error)
	CreateDeliveryNote(ctx context.Context, company, salesOrderName string, lines []MappedLine) (string, error)
	SubmitDeliveryNote(ctx context.Context, deliveryNoteName string) error
}

// CheckStock runs the stock/backorder stage: for AllocationEager it
// delegates to allocator.Allocate per line (raising BackorderPending on
// insufficient serials, as executor.py:assign_serials does); for the
// default AllocationDelegated it compares AvailableQuantity against each
// line's required quantity.
func CheckStock(ctx context.Context, mode AllocationMode, checker StockChecker, allocator SerialAllocator, lines []MappedLine) error {
	for _, line := range lines {
		switch mode {
		case AllocationEager:
			if allocator == nil {
				return domain.NewFulfillmentConfigurationError("stock_check", "eager allocation mode requires a SerialAllocator")
			}
			serials, err := allocator.Allocate(ctx, line.TargetItemCode, line.Warehouse, int(line.Quantity))
			if err != nil {
				return err
			}
			if len(serials) < int(line.Quantity) {
				return domain.NewBackorderPending("")
			}
		default:
			if checker == nil {
				return domain.NewFulfillmentConfigurationError("stock_check", "no stock checker configured")
			}
			available, err := checker.AvailableQuantity(ctx, line.TargetItemCode, line.Warehouse)
			if err != nil {
				return err
			}
			if available < line.Quantity {
				return domain.NewBackorderPending("")
			}
		}
	}
	return nil
}

// CreateDocuments mirrors executor.py's create_sales_order (skippable) +
// create_delivery_note (mandatory) + submit sequence.
func CreateDocuments(ctx context.Context, creator DocumentCreator, company string, lines []MappedLine, createSalesOrder bool) (*DistributorDocuments, error) {
	salesOrderName, err := creator.CreateSalesOrder(ctx, company, lines, createSalesOrder)
	if err != nil {
		return nil, domain.NewFulfillmentError("sales_order_creation", err.Error())
	}

	deliveryNoteName, err := creator.CreateDeliveryNote(ctx, company, salesOrderName, lines)
	if err != nil {
		return nil, domain.NewFulfillmentError("delivery_note_creation", err.Error())
	}

	if err := creator.SubmitDeliveryNote(ctx, deliveryNoteName); err != nil {
		return nil, domain.NewFulfillmentError("delivery_note_submit", err.Error())
	}

	return &DistributorDocuments{SalesOrderName: salesOrderName, DeliveryNoteName: deliveryNoteName}, nil
}

package fulfillment

import (
	"context"
	"time"

	"github.com/juliezen/integrationhub/domain"
)

// ReturnDocumentCreator issues the return-side Delivery Note against the
// distributor system. Grounded on gateway/returns.py's
// FulfillmentReturnService (insert_doc + submit_doc against "Delivery
// Note", is_return=1, return_against the original delivery note).
type ReturnDocumentCreator interface {
	CreateReturnDeliveryNote(ctx context.Context, company, customer, returnAgainst string, lines []MappedLine) (string, error)
	SubmitDeliveryNote(ctx context.Context, deliveryNoteName string) error
}

// ReturnResult is what ProcessReturn hands back, mirroring the dict
// returned by returns.py:FulfillmentReturnService.process.
type ReturnResult struct {
	ReturnDeliveryNote   string
	OriginalDeliveryNote string
}

// ReturnService creates a Delivery Note Return against a previously
// fulfilled order. Supplemented from original_source (dropped by the
// distilled spec, not excluded by any Non-goal).
type ReturnService struct {
	Orders    OrderStore
	Documents ReturnDocumentCreator
}

// ProcessReturn mirrors returns.py:process — it requires a prior delivery
// note, creates and submits the return Delivery Note for the given lines,
// and marks the order returned. The return note's name is handed back in
// ReturnResult; it is not stored on the order.
func (s *ReturnService) ProcessReturn(ctx context.Context, order *domain.FulfillmentOrder, lines []MappedLine, warehouseOverride string) (*ReturnResult, error) {
	if order.DeliveryNoteName == "" {
		return nil, domain.NewFulfillmentError("missing_delivery_note", "cannot generate a return: no prior delivery note")
	}
	if len(lines) == 0 {
		return nil, domain.NewFulfillmentError("missing_serials", "no lines to return")
	}

	if warehouseOverride != "" {
		for i := range lines {
			if lines[i].Warehouse == "" {
				lines[i].Warehouse = warehouseOverride
			}
		}
	}

	returnDN, err := s.Documents.CreateReturnDeliveryNote(ctx, order.DistributorCompany, order.SourceOrderID, order.DeliveryNoteName, lines)
	if err != nil {
		return nil, domain.NewFulfillmentError("return_creation", err.Error())
	}

	if err := s.Documents.SubmitDeliveryNote(ctx, returnDN); err != nil {
		return nil, domain.NewFulfillmentError("return_submit", err.Error())
	}

	_ = s.Orders.MarkStatus(ctx, order.ID, domain.FulfillmentReturned, "")
	return &ReturnResult{ReturnDeliveryNote: returnDN, OriginalDeliveryNote: order.DeliveryNoteName}, nil
}

// returnTimestamp is a var so tests can pin it, matching the timeNow
// pattern used in store/postgres.
var returnTimestamp = time.Now

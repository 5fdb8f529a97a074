package fulfillment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/juliezen/integrationhub/domain"
)

type fakeOrderStore struct {
	order *domain.FulfillmentOrder
}

func (f *fakeOrderStore) GetOrCreate(ctx context.Context, organizationID string, source domain.Integration, sourceOrderID string) (*domain.FulfillmentOrder, error) {
	if f.order == nil {
		f.order = &domain.FulfillmentOrder{ID: "fo-1", OrganizationID: organizationID, SourceIntegration: source, SourceOrderID: sourceOrderID, Status: domain.FulfillmentPending}
	}
	return f.order, nil
}

func (f *fakeOrderStore) MarkStatus(ctx context.Context, id string, status domain.FulfillmentOrderStatus, lastError string) error {
	f.order.Status = status
	f.order.LastError = lastError
	return nil
}

func (f *fakeOrderStore) RecordFulfillment(ctx context.Context, id, salesOrderName, deliveryNoteName string) error {
	f.order.SalesOrderName = salesOrderName
	f.order.DeliveryNoteName = deliveryNoteName
	f.order.Status = domain.FulfillmentFulfilled
	return nil
}

type fakeStockChecker struct {
	available float64
}

func (f *fakeStockChecker) AvailableQuantity(ctx context.Context, targetItemCode, warehouse string) (float64, error) {
	return f.available, nil
}

type fakeDocumentCreator struct {
	skippedSalesOrder bool
}

func (f *fakeDocumentCreator) CreateSalesOrder(ctx context.Context, company string, lines []MappedLine, createSalesOrder bool) (string, error) {
	if !createSalesOrder {
		f.skippedSalesOrder = true
		return "", nil
	}
	return "SO-1", nil
}

func (f *fakeDocumentCreator) CreateDeliveryNote(ctx context.Context, company, salesOrderName string, lines []MappedLine) (string, error) {
	return "DN-1", nil
}

func (f *fakeDocumentCreator) SubmitDeliveryNote(ctx context.Context, deliveryNoteName string) error {
	return nil
}

func basePayload() map[string]interface{} {
	return map[string]interface{}{
		"id": "order-1",
		"line_items": []interface{}{
			map[string]interface{}{"sku": "SKU-1", "quantity": 2.0},
		},
	}
}

func TestProcessFulfillsWhenStockAvailable(t *testing.T) {
	svc := &Service{
		Orders:    &fakeOrderStore{},
		Stock:     &fakeStockChecker{available: 10},
		Documents: &fakeDocumentCreator{},
	}
	order, err := svc.Process(context.Background(), "org-1", domain.IntegrationStorefront, basePayload(), Settings{
		DistributorCompany: "ACME", CreateSalesOrder: true, AllocationMode: AllocationDelegated,
	})
	require.NoError(t, err)
	require.Equal(t, domain.FulfillmentFulfilled, order.Status)
	require.Equal(t, "DN-1", order.DeliveryNoteName)
}

func TestProcessReturnsBackorderWhenInsufficientStock(t *testing.T) {
	orders := &fakeOrderStore{}
	svc := &Service{
		Orders:    orders,
		Stock:     &fakeStockChecker{available: 0},
		Documents: &fakeDocumentCreator{},
	}
	_, err := svc.Process(context.Background(), "org-1", domain.IntegrationStorefront, basePayload(), Settings{
		DistributorCompany: "ACME", AllocationMode: AllocationDelegated,
	})
	require.Error(t, err)
	var backorder *domain.BackorderPending
	require.ErrorAs(t, err, &backorder)
	require.Equal(t, domain.FulfillmentWaitingStock, orders.order.Status)
}

func TestProcessShortCircuitsAlreadyFulfilledOrder(t *testing.T) {
	orders := &fakeOrderStore{order: &domain.FulfillmentOrder{ID: "fo-1", Status: domain.FulfillmentFulfilled, DeliveryNoteName: "DN-OLD"}}
	svc := &Service{Orders: orders, Documents: &fakeDocumentCreator{}}
	order, err := svc.Process(context.Background(), "org-1", domain.IntegrationStorefront, basePayload(), Settings{})
	require.NoError(t, err)
	require.Equal(t, "DN-OLD", order.DeliveryNoteName)
}

func TestProcessEmptyOrderFails(t *testing.T) {
	svc := &Service{Orders: &fakeOrderStore{}, Documents: &fakeDocumentCreator{}}
	_, err := svc.Process(context.Background(), "org-1", domain.IntegrationStorefront, map[string]interface{}{"id": "order-2"}, Settings{})
	require.Error(t, err)
}

func TestProcessFailsWhenLinesMapToDifferentTargetCompanies(t *testing.T) {
	lookup := func(ctx context.Context, organizationID, sourceItemCode string) (*domain.FulfillmentItemMap, error) {
		switch sourceItemCode {
		case "SKU-1":
			return &domain.FulfillmentItemMap{TargetItemCode: "DIST-1", TargetCompany: "Acme Distribution"}, nil
		case "SKU-2":
			return &domain.FulfillmentItemMap{TargetItemCode: "DIST-2", TargetCompany: "Acme North"}, nil
		}
		return nil, nil
	}
	orders := &fakeOrderStore{}
	svc := &Service{
		Orders:    orders,
		ItemMaps:  lookup,
		Stock:     &fakeStockChecker{available: 10},
		Documents: &fakeDocumentCreator{},
	}
	payload := map[string]interface{}{
		"id": "order-3",
		"line_items": []interface{}{
			map[string]interface{}{"sku": "SKU-1", "quantity": 1.0},
			map[string]interface{}{"sku": "SKU-2", "quantity": 1.0},
		},
	}
	_, err := svc.Process(context.Background(), "org-1", domain.IntegrationStorefront, payload, Settings{
		DistributorCompany: "ACME", CreateSalesOrder: true, AllocationMode: AllocationDelegated,
	})
	require.Error(t, err)
	var cfgErr *domain.FulfillmentConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "multiple_target_companies", cfgErr.ErrorCode)
	require.False(t, domain.IsRetryable(err))
	require.Equal(t, domain.FulfillmentFailed, orders.order.Status)
}

func TestProcessFailsWhenItemMapResolvesToEmptyTargetCode(t *testing.T) {
	lookup := func(ctx context.Context, organizationID, sourceItemCode string) (*domain.FulfillmentItemMap, error) {
		return &domain.FulfillmentItemMap{TargetItemCode: "", TargetCompany: "Acme Distribution"}, nil
	}
	orders := &fakeOrderStore{}
	svc := &Service{
		Orders:    orders,
		ItemMaps:  lookup,
		Stock:     &fakeStockChecker{available: 10},
		Documents: &fakeDocumentCreator{},
	}
	_, err := svc.Process(context.Background(), "org-1", domain.IntegrationStorefront, basePayload(), Settings{
		DistributorCompany: "ACME", AllocationMode: AllocationDelegated,
	})
	require.Error(t, err)
	var cfgErr *domain.FulfillmentConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "invalid_item_map", cfgErr.ErrorCode)
}

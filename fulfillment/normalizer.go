// Package fulfillment implements the fulfillment pipeline (C7):
// normalize -> map lines -> stock/backorder check -> create distributor
// documents -> propagate status. Grounded on
// apps/erpnext/gateway/{normalizer,mapper,executor,service}.py.
package fulfillment

import (
	"fmt"

	"github.com/juliezen/integrationhub/domain"
)

// NormalizedOrder is the upstream-agnostic shape every source order is
// reduced to before mapping, grounded on OrderNormalizer.normalize.
type NormalizedOrder struct {
	SourceOrderID string
	Lines         []NormalizedLine
	Raw           map[string]interface{}
}

type NormalizedLine struct {
	SourceItemCode string
	Quantity       float64
	Warehouse      string
}

// Normalize dispatches on integration the way normalizer.py's
// OrderNormalizer.normalize does, raising FulfillmentError("empty_order")
// when no lines survive extraction.
func Normalize(integration domain.Integration, payload map[string]interface{}) (*NormalizedOrder, error) {
	var order *NormalizedOrder
	var err error
	switch integration {
	case domain.IntegrationStorefront:
		order, err = normalizeStorefront(payload)
	case domain.IntegrationERPPOS:
		order, err = normalizeERP(payload)
	default:
		return nil, domain.NewFulfillmentError("normalize", fmt.Sprintf("unsupported source integration %q", integration))
	}
	if err != nil {
		return nil, err
	}
	if len(order.Lines) == 0 {
		emptyErr := domain.NewFulfillmentError("normalize", "order has no line items")
		emptyErr.ErrorCode = "empty_order"
		return nil, emptyErr
	}
	return order, nil
}

// normalizeStorefront mirrors _normalize_shopify: order id from "id" or
// "name" or "order_number", line items from "line_items" with
// sku-then-variant_id fallback for the item code.
func normalizeStorefront(payload map[string]interface{}) (*NormalizedOrder, error) {
	orderID := resolveOrderID(payload, "id", "name", "order_number")
	lineItems, _ := payload["line_items"].([]interface{})

	var lines []NormalizedLine
	for _, raw := range lineItems {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		code := stringField(item, "sku")
		if code == "" {
			code = stringField(item, "variant_id")
		}
		if code == "" {
			continue
		}
		lines = append(lines, NormalizedLine{
			SourceItemCode: code,
			Quantity:       floatField(item, "quantity", 1),
			Warehouse:      stringField(payload, "_warehouse"),
		})
	}

	return &NormalizedOrder{SourceOrderID: orderID, Lines: lines, Raw: payload}, nil
}

// normalizeERP mirrors _normalize_erpnext: order id from "name" or
// "sales_order", lines from "items" keyed by "item_code".
func normalizeERP(payload map[string]interface{}) (*NormalizedOrder, error) {
	orderID := resolveOrderID(payload, "name", "sales_order")
	items, _ := payload["items"].([]interface{})

	var lines []NormalizedLine
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		code := stringField(item, "item_code")
		if code == "" {
			continue
		}
		lines = append(lines, NormalizedLine{
			SourceItemCode: code,
			Quantity:       floatField(item, "qty", 1),
			Warehouse:      stringField(item, "warehouse"),
		})
	}

	return &NormalizedOrder{SourceOrderID: orderID, Lines: lines, Raw: payload}, nil
}

// resolveOrderID mirrors _resolve_order_id's candidate-key cascade.
func resolveOrderID(payload map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v := stringField(payload, k); v != "" {
			return v
		}
	}
	return ""
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	switch vv := v.(type) {
	case string:
		return vv
	case float64:
		return fmt.Sprintf("%v", vv)
	}
	return ""
}

func floatField(m map[string]interface{}, key string, def float64) float64 {
	v, ok := m[key]
	if !ok {
		return def
	}
	if f, ok := v.(float64); ok {
		return f
	}
	return def
}

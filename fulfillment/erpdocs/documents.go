// Package erpdocs implements fulfillment.DocumentCreator over httpclient,
// grounded on ERPNextClient.insert_doc/submit_doc and
// gateway/executor.py:FulfillmentExecutor.create_sales_order/
// create_delivery_note.
package erpdocs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/fulfillment"
	"github.com/juliezen/integrationhub/httpclient"
)

// Creator creates and submits Sales Order / Delivery Note documents against
// one distributor credential's REST API, the same insert_doc("<doctype>")
// and submit_doc("<doctype>", name) shapes the original ERPNextClient uses.
type Creator struct {
	Client         *httpclient.Client
	Cred           domain.Credential
	OrganizationID string
	SellerCompany  string
	CustomerEmail  string
}

// CreateSalesOrder mirrors create_sales_order: a no-op (empty name, no
// error) when createSalesOrder is false, since the Sales Order is
// optional and the Delivery Note alone carries the fulfillment.
func (c *Creator) CreateSalesOrder(ctx context.Context, company string, lines []fulfillment.MappedLine, createSalesOrder bool) (string, error) {
	if !createSalesOrder {
		return "", nil
	}

	items := make([]map[string]interface{}, 0, len(lines))
	for _, line := range lines {
		items = append(items, map[string]interface{}{
			"item_code": line.TargetItemCode,
			"qty":       line.Quantity,
			"warehouse": line.Warehouse,
		})
	}
	payload := map[string]interface{}{
		"doctype":      "Sales Order",
		"company":      company,
		"customer":     c.SellerCompany,
		"delivery_date": time.Now().UTC().Format("2006-01-02"),
		"items":        items,
	}
	if c.CustomerEmail != "" {
		payload["custom_customer_email"] = c.CustomerEmail
	}

	resp, err := c.insertDoc(ctx, "Sales Order", "fulfillment.sales_order.create", payload)
	if err != nil {
		return "", err
	}
	name, _ := resp.Body["name"].(string)
	if name == "" {
		return "", fmt.Errorf("erpdocs.CreateSalesOrder: response had no name")
	}
	return name, nil
}

// CreateDeliveryNote mirrors create_delivery_note: every line carries its
// item code, quantity and warehouse and, when present, an
// against_sales_order reference. No serial numbers are set on the lines.
func (c *Creator) CreateDeliveryNote(ctx context.Context, company, salesOrderName string, lines []fulfillment.MappedLine) (string, error) {
	items := make([]map[string]interface{}, 0, len(lines))
	for _, line := range lines {
		entry := map[string]interface{}{
			"item_code": line.TargetItemCode,
			"qty":       line.Quantity,
			"warehouse": line.Warehouse,
		}
		if salesOrderName != "" {
			entry["against_sales_order"] = salesOrderName
		}
		items = append(items, entry)
	}
	payload := map[string]interface{}{
		"doctype":      "Delivery Note",
		"company":      company,
		"customer":     c.SellerCompany,
		"posting_date": time.Now().UTC().Format("2006-01-02"),
		"items":        items,
	}
	if c.CustomerEmail != "" {
		payload["custom_customer_email"] = c.CustomerEmail
	}

	resp, err := c.insertDoc(ctx, "Delivery Note", "fulfillment.delivery_note.create", payload)
	if err != nil {
		return "", err
	}
	name, _ := resp.Body["name"].(string)
	if name == "" {
		return "", fmt.Errorf("erpdocs.CreateDeliveryNote: response had no name")
	}
	return name, nil
}

// SubmitDeliveryNote mirrors submit_doc("Delivery Note", name), the
// docstatus transition that finalizes the document.
func (c *Creator) SubmitDeliveryNote(ctx context.Context, deliveryNoteName string) error {
	resp, err := c.Client.Do(ctx, httpclient.Request{
		OrganizationID:    c.OrganizationID,
		Integration:       domain.IntegrationERPPOS,
		Method:            "POST",
		BaseURL:           c.Cred.BaseURL,
		Path:              "/api/method/frappe.client.submit",
		Body:              map[string]interface{}{"doctype": "Delivery Note", "name": deliveryNoteName},
		EventType:         "fulfillment.delivery_note.submit",
		ExternalReference: deliveryNoteName,
		Cred:              c.Cred,
	})
	if err != nil {
		return fmt.Errorf("erpdocs.SubmitDeliveryNote: %w", err)
	}
	if status, ok := resp.Body["docstatus"].(float64); ok && status != 1 {
		return fmt.Errorf("erpdocs.SubmitDeliveryNote: submit returned docstatus %v", status)
	}
	return nil
}

func (c *Creator) insertDoc(ctx context.Context, doctype, eventType string, payload map[string]interface{}) (*httpclient.Response, error) {
	resp, err := c.Client.Do(ctx, httpclient.Request{
		OrganizationID: c.OrganizationID,
		Integration:    domain.IntegrationERPPOS,
		Method:         "POST",
		BaseURL:        c.Cred.BaseURL,
		Path:           "/api/method/frappe.client.insert",
		Body:           map[string]interface{}{"doc": payload},
		EventType:      eventType,
		Cred:           c.Cred,
	})
	if err != nil {
		return nil, fmt.Errorf("erpdocs.insertDoc(%s): %w", strings.ToLower(doctype), err)
	}
	return resp, nil
}

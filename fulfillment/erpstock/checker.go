// Package erpstock implements fulfillment.StockChecker over httpclient,
// grounded on ERPNextClient.get_stock_balance /
// management/commands/check_erpnext_stock.py's stock-balance lookup.
package erpstock

import (
	"context"
	"fmt"

	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/httpclient"
)

// Checker answers fulfillment.StockChecker against one distributor
// credential, using the distributor's stock-balance endpoint.
type Checker struct {
	Client         *httpclient.Client
	Cred           domain.Credential
	OrganizationID string
}

// AvailableQuantity queries the distributor's stock balance for
// targetItemCode in warehouse, mirroring
// ERPNextClient.get_stock_balance(item_code, warehouse).
func (c *Checker) AvailableQuantity(ctx context.Context, targetItemCode, warehouse string) (float64, error) {
	resp, err := c.Client.Do(ctx, httpclient.Request{
		OrganizationID: c.OrganizationID,
		Integration:    domain.IntegrationERPPOS,
		Method:         "GET",
		BaseURL:        c.Cred.BaseURL,
		Path:           "/api/method/erpnext.stock.utils.get_stock_balance",
		Query: map[string]string{
			"item_code": targetItemCode,
			"warehouse": warehouse,
		},
		EventType: "stock.balance",
		Cred:      c.Cred,
	})
	if err != nil {
		return 0, fmt.Errorf("erpstock.AvailableQuantity: %w", err)
	}

	qty, ok := resp.Body["message"].(float64)
	if !ok {
		return 0, fmt.Errorf("erpstock.AvailableQuantity: unexpected response shape for %s/%s", targetItemCode, warehouse)
	}
	return qty, nil
}

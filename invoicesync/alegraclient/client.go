// Package alegraclient implements invoicesync.ContactClient and
// invoicesync.InvoiceClient over httpclient, grounded on
// apps/alegra/client.py:AlegraClient's contacts/invoices endpoints.
package alegraclient

import (
	"context"
	"fmt"

	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/httpclient"
)

// Client calls the accounting integration's contacts/invoices REST API
// against one resolved credential (cmd/integrationhub's invoice handler
// resolves the credential and builds a fresh Client per message).
type Client struct {
	HTTP           *httpclient.Client
	Cred           domain.Credential
	OrganizationID string
}

// GetContact mirrors get_customer: a 404 response surfaces as an error
// here (the caller, EnsureContact, only calls this when it already has a
// known id on file and treats any error as "not found, fall through").
func (c *Client) GetContact(ctx context.Context, id string) (map[string]interface{}, error) {
	resp, err := c.HTTP.Do(ctx, httpclient.Request{
		OrganizationID:    c.OrganizationID,
		Integration:       domain.IntegrationAccounting,
		Method:            "GET",
		BaseURL:           c.Cred.BaseURL,
		Path:              "/contacts/" + id,
		EventType:         "customer.get",
		ExternalReference: id,
		Cred:              c.Cred,
	})
	if err != nil {
		return nil, fmt.Errorf("alegraclient.GetContact: %w", err)
	}
	return resp.Body, nil
}

// SearchContacts mirrors search_customers: a query-parameter term search
// returning the matching contact list from resp.Body["data"] (the
// accounting API's array wrapper). A response without a "data" array
// yields no contacts.
func (c *Client) SearchContacts(ctx context.Context, term string) ([]map[string]interface{}, error) {
	resp, err := c.HTTP.Do(ctx, httpclient.Request{
		OrganizationID:    c.OrganizationID,
		Integration:       domain.IntegrationAccounting,
		Method:            "GET",
		BaseURL:           c.Cred.BaseURL,
		Path:              "/contacts",
		Query:             map[string]string{"query": term},
		EventType:         "customer.search",
		ExternalReference: term,
		Cred:              c.Cred,
	})
	if err != nil {
		return nil, fmt.Errorf("alegraclient.SearchContacts: %w", err)
	}
	return extractList(resp.Body), nil
}

// CreateContact mirrors create_customer.
func (c *Client) CreateContact(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	name, _ := payload["name"].(string)
	resp, err := c.HTTP.Do(ctx, httpclient.Request{
		OrganizationID:    c.OrganizationID,
		Integration:       domain.IntegrationAccounting,
		Method:            "POST",
		BaseURL:           c.Cred.BaseURL,
		Path:              "/contacts",
		Body:              payload,
		EventType:         "customer.create",
		ExternalReference: name,
		Cred:              c.Cred,
	})
	if err != nil {
		return nil, fmt.Errorf("alegraclient.CreateContact: %w", err)
	}
	return resp.Body, nil
}

// UpdateContact has no direct equivalent called in the ported contact
// cascade (EnsureContact never calls it) but is kept on the interface for
// parity with the original client's surface; it issues a PUT.
func (c *Client) UpdateContact(ctx context.Context, id string, payload map[string]interface{}) error {
	_, err := c.HTTP.Do(ctx, httpclient.Request{
		OrganizationID:    c.OrganizationID,
		Integration:       domain.IntegrationAccounting,
		Method:            "PUT",
		BaseURL:           c.Cred.BaseURL,
		Path:              "/contacts/" + id,
		Body:              payload,
		EventType:         "customer.update",
		ExternalReference: id,
		Cred:              c.Cred,
	})
	if err != nil {
		return fmt.Errorf("alegraclient.UpdateContact: %w", err)
	}
	return nil
}

// CreateInvoice mirrors create_invoice, keying the idempotency reference
// off the invoice's client id the way the original does via
// invoice_payload["client"]["id"].
func (c *Client) CreateInvoice(ctx context.Context, cred *domain.Credential, payload map[string]interface{}) (map[string]interface{}, error) {
	var clientRef string
	if clientObj, ok := payload["client"].(map[string]interface{}); ok {
		if id, ok := clientObj["id"].(string); ok {
			clientRef = id
		}
	}
	resp, err := c.HTTP.Do(ctx, httpclient.Request{
		OrganizationID:    c.OrganizationID,
		Integration:       domain.IntegrationAccounting,
		Method:            "POST",
		BaseURL:           cred.BaseURL,
		Path:              "/invoices",
		Body:              payload,
		EventType:         "invoice.create",
		ExternalReference: clientRef,
		Cred:              *cred,
	})
	if err != nil {
		return nil, fmt.Errorf("alegraclient.CreateInvoice: %w", err)
	}
	return resp.Body, nil
}

func extractList(body map[string]interface{}) []map[string]interface{} {
	if body == nil {
		return nil
	}
	raw, ok := body["data"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

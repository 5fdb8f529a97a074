package invoicesync

import (
	"context"
	"fmt"

	"github.com/juliezen/integrationhub/domain"
)

// CredentialResolver selects the accounting credential to sync an invoice
// through, mirroring _get_active_credential / _load_alegra_configuration's
// company-match-else-most-recently-updated resolution.
type CredentialResolver interface {
	ResolveCredential(ctx context.Context, organizationID, company string) (*domain.Credential, error)
}

// InvoiceClient issues the invoice-creation call once the payload is
// assembled.
type InvoiceClient interface {
	CreateInvoice(ctx context.Context, cred *domain.Credential, payload map[string]interface{}) (map[string]interface{}, error)
}

// Config is the per-tenant configuration loaded from the metadata paths
// _load_alegra_configuration checks ("alegra", "integrations.alegra",
// "erpnext_to_alegra").
type Config struct {
	TaxMap            map[string]string
	ItemMap           map[string]string
	PaymentAccountMap map[string]string
	PaymentMethodMap  map[string]string
	NumberTemplate    NumberTemplate
	NamingSeries      string
}

// SourceInvoice is the inbound sales invoice payload being synced,
// standing in for the dict process_erpnext_sales_invoice receives.
type SourceInvoice struct {
	OrganizationID string
	Company        string
	Customer       map[string]interface{}
	Lines          []InvoiceLine
	Payments       []Payment
	Observations   string
	Sequence       int
}

// Service is the top-level invoice sync orchestrator (C8), the Go
// translation of process_erpnext_sales_invoice.
type Service struct {
	Credentials CredentialResolver
	Contacts    ContactClient
	Invoices    InvoiceClient
}

// Sync resolves the credential, ensures the accounting contact exists,
// assembles the invoice payload, and creates the invoice.
func (s *Service) Sync(ctx context.Context, invoice SourceInvoice, cfg Config) (map[string]interface{}, error) {
	cred, err := s.Credentials.ResolveCredential(ctx, invoice.OrganizationID, invoice.Company)
	if err != nil {
		return nil, &domain.CredentialError{Op: "invoicesync.Sync", Message: "no active accounting credential", Err: err}
	}

	contactID, err := EnsureContact(ctx, s.Contacts, ContactData{}, invoice.Customer)
	if err != nil {
		return nil, fmt.Errorf("invoicesync.Sync: ensure contact: %w", err)
	}

	internalID := internalIDFromSeries(cfg.NamingSeries, invoice.Sequence)
	payload := BuildInvoicePayload(InvoiceInput{
		ContactID:         contactID,
		Lines:             invoice.Lines,
		Payments:          invoice.Payments,
		TaxMap:            cfg.TaxMap,
		ItemMap:           cfg.ItemMap,
		PaymentAccountMap: cfg.PaymentAccountMap,
		PaymentMethodMap:  cfg.PaymentMethodMap,
		NumberTemplate:    cfg.NumberTemplate,
		Observations:      invoice.Observations,
		InternalID:        internalID,
		PointOfSale:       invoice.Company != "",
	})

	result, err := s.Invoices.CreateInvoice(ctx, cred, payload)
	if err != nil {
		return nil, fmt.Errorf("invoicesync.Sync: create invoice: %w", err)
	}
	return result, nil
}

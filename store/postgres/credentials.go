package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/juliezen/integrationhub/domain"
)

// CredentialStore resolves outbound Credential rows, the Go equivalent of
// _get_active_credential / _load_alegra_configuration's company-match-else-
// most-recently-updated cascade.
type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Resolve prefers an active credential whose company matches
// case-insensitively, falling back to the most recently updated active
// credential for (organizationID, integration).
func (s *CredentialStore) Resolve(ctx context.Context, organizationID string, integration domain.Integration, company string) (*domain.Credential, error) {
	const q = `
		SELECT id, organization_id, integration, company, base_url, auth_scheme,
		       api_key, api_secret, timeout_seconds, max_retries, updated_at
		FROM credentials
		WHERE organization_id = $1 AND integration = $2 AND active
		ORDER BY (lower(company) = lower($3)) DESC, updated_at DESC
		LIMIT 1`
	row := s.db.QueryRowContext(ctx, q, organizationID, string(integration), company)
	var c domain.Credential
	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.Integration, &c.Company, &c.BaseURL, &c.AuthScheme,
		&c.APIKey, &c.APISecret, &c.TimeoutSeconds, &c.MaxRetries, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres.CredentialStore.Resolve: %w", err)
	}
	return &c, nil
}

// ResolveCredential satisfies invoicesync.CredentialResolver, always
// resolving against the accounting integration.
func (s *CredentialStore) ResolveCredential(ctx context.Context, organizationID, company string) (*domain.Credential, error) {
	return s.Resolve(ctx, organizationID, domain.IntegrationAccounting, company)
}

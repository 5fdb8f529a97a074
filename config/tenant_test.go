package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTenantConfigValid(t *testing.T) {
	raw := []byte(`{
		"distributor_company": "ACME SAS",
		"create_sales_order": true,
		"allocation_mode": "delegated",
		"item_map": {"SRC-1": "TGT-1"}
	}`)
	cfg, err := ParseTenantConfig(raw)
	require.NoError(t, err)
	require.Equal(t, "ACME SAS", cfg.DistributorCompany)
	require.Equal(t, "TGT-1", cfg.ItemMap["SRC-1"])
}

func TestParseTenantConfigRejectsMissingDistributorCompany(t *testing.T) {
	_, err := ParseTenantConfig([]byte(`{"create_sales_order": true}`))
	require.Error(t, err)
}

func TestParseTenantConfigRejectsBadAllocationMode(t *testing.T) {
	_, err := ParseTenantConfig([]byte(`{"distributor_company": "ACME", "allocation_mode": "eventual"}`))
	require.Error(t, err)
}

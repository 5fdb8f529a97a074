// Command stockcheck is an operator diagnostic: given an organization,
// distributor company, warehouse and item code, it reports the distributor's
// on-hand quantity via the same fulfillment.StockChecker a running hub uses
// to decide backorder status, without going through the webhook pipeline.
// The item code is queried as given; no item mapping is applied.
// Grounded on
// apps/erpnext/management/commands/check_erpnext_stock.py.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/juliezen/integrationhub/config"
	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/fulfillment/erpstock"
	"github.com/juliezen/integrationhub/httpclient"
	"github.com/juliezen/integrationhub/pkg/logger"
	"github.com/juliezen/integrationhub/store/postgres"
)

func main() {
	var (
		itemCode  = flag.String("item", "", "item code to check (required)")
		warehouse = flag.String("warehouse", "", "exact warehouse name (required)")
		company   = flag.String("company", "", "exact distributor company name (required)")
		orgID     = flag.String("org", "", "organization ID owning the credential (required)")
	)
	flag.Parse()

	if *itemCode == "" || *warehouse == "" || *company == "" || *orgID == "" {
		fmt.Fprintln(os.Stderr, "usage: stockcheck -item <code> -warehouse <name> -company <name> -org <id>")
		os.Exit(2)
	}

	log := logger.NewDefaultLogger().WithField("component", "cmd.stockcheck")
	cfg := config.New()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stockcheck: open postgres: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	store := postgres.New(db, log)

	var cred domain.Credential
	err = db.QueryRow(
		`SELECT id, base_url, auth_scheme, api_key, api_secret, timeout_seconds
		   FROM credentials
		  WHERE organization_id = $1 AND integration = $2 AND company = $3`,
		*orgID, string(domain.IntegrationERPPOS), *company,
	).Scan(&cred.ID, &cred.BaseURL, &cred.AuthScheme, &cred.APIKey, &cred.APISecret, &cred.TimeoutSeconds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stockcheck: no ERP credential for org %s company %s: %v\n", *orgID, *company, err)
		os.Exit(1)
	}
	cred.OrganizationID = *orgID
	cred.Integration = domain.IntegrationERPPOS
	cred.Company = *company

	client := httpclient.New(store, time.Duration(cred.TimeoutSeconds)*time.Second, httpclient.WithLogger(log))
	checker := &erpstock.Checker{Client: client, Cred: cred, OrganizationID: *orgID}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	qty, err := checker.AvailableQuantity(ctx, *itemCode, *warehouse)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stockcheck: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s in %s (%s): %.2f available\n", *itemCode, *warehouse, *company, qty)
}

// Command integrationhub boots the webhook ingress HTTP server, the
// outbound worker pool, and the retry scanner in one process, the Go
// translation of the original's combination of a WSGI app plus Celery
// workers into a single binary with goroutine-backed concurrency.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/juliezen/integrationhub/config"
	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/fulfillment"
	"github.com/juliezen/integrationhub/fulfillment/erpdocs"
	"github.com/juliezen/integrationhub/fulfillment/erpstock"
	"github.com/juliezen/integrationhub/httpclient"
	"github.com/juliezen/integrationhub/ingress"
	"github.com/juliezen/integrationhub/invoicesync"
	"github.com/juliezen/integrationhub/invoicesync/alegraclient"
	"github.com/juliezen/integrationhub/observability"
	"github.com/juliezen/integrationhub/pkg/logger"
	"github.com/juliezen/integrationhub/processor"
	"github.com/juliezen/integrationhub/queue"
	"github.com/juliezen/integrationhub/registry"
	"github.com/juliezen/integrationhub/store/postgres"
)

func main() {
	log := logger.NewDefaultLogger().WithField("component", "cmd.integrationhub")
	cfg := config.New()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Error("failed to open postgres", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(db); err != nil {
		log.Error("failed to apply schema migrations", "err", err)
		os.Exit(1)
	}

	opt, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("invalid redis url", "err", err)
		os.Exit(1)
	}
	redisClient := goredis.NewClient(opt)
	defer redisClient.Close()

	tracing, err := observability.NewTracing("integrationhub")
	if err != nil {
		log.Error("failed to initialize tracing", "err", err)
		os.Exit(1)
	}

	store := postgres.New(db, log)
	q := queue.NewRedisQueue(redisClient, queue.DefaultRedisQueueConfig())
	reg := registry.New()

	client := httpclient.New(store, cfg.OutboundTimeout,
		httpclient.WithLogger(log),
		httpclient.WithTracer(tracing),
		httpclient.WithRateLimit(10, 20),
	)
	registerHandlers(reg, db, client, log)

	proc := processor.New(store, reg, log).WithTracer(tracing)
	pool := processor.NewPool(proc, q, cfg.WorkerCount, log)
	scanner := processor.NewRetryScanner(store, q, cfg.RetryScanEvery, 50, log)

	ctx, cancel := context.WithCancel(context.Background())
	go pool.Run(ctx)
	go scanner.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/webhooks/storefront/{tenant}", &ingress.Adapter{
		Integration:     domain.IntegrationStorefront,
		Secrets:         tenantSecretLookup(db, domain.IntegrationStorefront),
		ExtractEvent:    ingress.StorefrontEventExtractor("X-Shopify-Topic", "X-Shopify-Webhook-Id"),
		SignatureHeader: "X-Shopify-Hmac-Sha256",
		Store:           store,
		Queue:           q,
		Logger:          log,
	})
	mux.Handle("/webhooks/accounting/{tenant}", &ingress.Adapter{
		Integration:     domain.IntegrationAccounting,
		Secrets:         tenantSecretLookup(db, domain.IntegrationAccounting),
		ExtractEvent:    ingress.StaticEventExtractor("invoice.created", "X-Idempotency-Key"),
		SignatureHeader: "X-Signature",
		Store:           store,
		Queue:           q,
		Logger:          log,
	})
	mux.Handle("/webhooks/erp/{tenant}", &ingress.Adapter{
		Integration:     domain.IntegrationERPPOS,
		Secrets:         tenantSecretLookup(db, domain.IntegrationERPPOS),
		ExtractEvent:    ingress.StaticEventExtractor("order.updated", "X-Idempotency-Key"),
		SignatureHeader: "X-Signature",
		Store:           store,
		Queue:           q,
		Logger:          log,
	})

	server := &http.Server{
		Addr:    addrFromPort(cfg.HTTPPort),
		Handler: observability.CorrelationMiddleware(mux),
	}

	go func() {
		log.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	_ = tracing.Shutdown(shutdownCtx)
}

// registerHandlers wires every (integration, event type) pair this process
// knows how to act on: storefront and erp_pos webhooks both drive the
// fulfillment pipeline (C7), accounting webhooks drive invoice sync (C8).
// Event types left unregistered fall through Processor.process's "no
// handlers registered" warning path rather than failing the message.
func registerHandlers(reg *registry.Registry, db *sql.DB, client *httpclient.Client, log logger.Logger) {
	orders := postgres.NewFulfillmentStore(db)
	creds := postgres.NewCredentialStore(db)

	fulfill := fulfillmentHandler(db, orders, creds, client, log)
	reg.Register(domain.IntegrationStorefront, registry.Wildcard, fulfill)
	reg.Register(domain.IntegrationERPPOS, "order.updated", fulfill)

	reg.Register(domain.IntegrationAccounting, "invoice.created", invoiceSyncHandler(db, creds, client, log))
}

// fulfillmentHandler adapts a dispatched IntegrationMessage into a
// fulfillment.Service.Process call: it loads the tenant's distributor
// settings, resolves that distributor's credential, and wires httpclient-
// backed stock/document/source-update adapters against it, the Go
// equivalent of FulfillmentGatewayService being constructed per-request
// with a resolved ERPNextCredential in gateway/service.py.
func fulfillmentHandler(db *sql.DB, orders *postgres.FulfillmentStore, creds *postgres.CredentialStore, client *httpclient.Client, log logger.Logger) registry.MessageHandler {
	return func(ctx context.Context, msg *domain.IntegrationMessage) error {
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("fulfillmentHandler: decode payload: %w", err)
		}

		tenantCfg, err := loadTenantConfig(ctx, db, msg.OrganizationID, msg.Integration)
		if err != nil {
			return fmt.Errorf("fulfillmentHandler: load tenant config: %w", err)
		}

		cred, err := creds.Resolve(ctx, msg.OrganizationID, domain.IntegrationERPPOS, tenantCfg.DistributorCompany)
		if err != nil {
			return fmt.Errorf("fulfillmentHandler: resolve distributor credential: %w", err)
		}

		sellerCompany := stringField(payload, "company")
		if sellerCompany == "" {
			sellerCompany = stringField(payload, "seller_company")
		}

		svc := &fulfillment.Service{
			Orders:   orders,
			ItemMaps: orders.LookupItemMap,
			Stock:    &erpstock.Checker{Client: client, Cred: *cred, OrganizationID: msg.OrganizationID},
			Documents: &erpdocs.Creator{
				Client:         client,
				Cred:           *cred,
				OrganizationID: msg.OrganizationID,
				SellerCompany:  sellerCompany,
				CustomerEmail:  stringField(payload, "contact_email"),
			},
			SourceSync: &erpdocs.SourceUpdater{Client: client, Cred: *cred, OrganizationID: msg.OrganizationID, Logger: log},
			Logger:     log,
		}

		allocationMode := fulfillment.AllocationDelegated
		if tenantCfg.AllocationMode == string(fulfillment.AllocationEager) {
			allocationMode = fulfillment.AllocationEager
		}

		_, err = svc.Process(ctx, msg.OrganizationID, msg.Integration, payload, fulfillment.Settings{
			DistributorCompany: tenantCfg.DistributorCompany,
			CreateSalesOrder:   tenantCfg.CreateSalesOrder,
			AllocationMode:     allocationMode,
			MetadataItemMap:    tenantCfg.ItemMap,
		})
		return err
	}
}

// invoiceSyncHandler adapts a dispatched IntegrationMessage into an
// invoicesync.Service.Sync call, assembling a SourceInvoice from the
// webhook payload the way process_erpnext_sales_invoice reads its
// `payload` dict argument.
func invoiceSyncHandler(db *sql.DB, creds *postgres.CredentialStore, client *httpclient.Client, log logger.Logger) registry.MessageHandler {
	return func(ctx context.Context, msg *domain.IntegrationMessage) error {
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("invoiceSyncHandler: decode payload: %w", err)
		}

		tenantCfg, err := loadTenantConfig(ctx, db, msg.OrganizationID, msg.Integration)
		if err != nil {
			return fmt.Errorf("invoiceSyncHandler: load tenant config: %w", err)
		}

		company := stringField(payload, "company")
		if company == "" {
			company = stringField(payload, "seller_company")
		}

		cred, err := creds.ResolveCredential(ctx, msg.OrganizationID, company)
		if err != nil {
			return fmt.Errorf("invoiceSyncHandler: resolve accounting credential: %w", err)
		}
		alegra := &alegraclient.Client{HTTP: client, Cred: *cred, OrganizationID: msg.OrganizationID}

		svc := &invoicesync.Service{Credentials: creds, Contacts: alegra, Invoices: alegra}

		invoice := invoicesync.SourceInvoice{
			OrganizationID: msg.OrganizationID,
			Company:        company,
			Customer:       customerField(payload),
			Lines:          invoiceLines(payload),
			Payments:       invoicePayments(payload),
			Observations:   stringField(payload, "observations"),
			Sequence:       int(floatField(payload, "sequence")),
		}

		cfg := invoicesync.Config{
			TaxMap:            tenantCfg.TaxMap,
			ItemMap:           tenantCfg.ItemMap,
			PaymentAccountMap: tenantCfg.PaymentAccountMap,
			PaymentMethodMap:  tenantCfg.PaymentMethodMap,
			NumberTemplate: invoicesync.NumberTemplate{
				ID:     tenantCfg.NumberTemplate.ID,
				Prefix: tenantCfg.NumberTemplate.Prefix,
				Number: tenantCfg.NumberTemplate.Number,
			},
			NamingSeries: tenantCfg.NamingSeries,
		}

		_, err = svc.Sync(ctx, invoice, cfg)
		return err
	}
}

// loadTenantConfig resolves the JSON config blob stored for
// (organizationID, integration) against the tenants table and validates it
// with config.ParseTenantConfig.
func loadTenantConfig(ctx context.Context, db *sql.DB, organizationID string, integration domain.Integration) (*config.TenantConfig, error) {
	var raw []byte
	err := db.QueryRowContext(ctx,
		`SELECT config FROM tenants WHERE organization_id = $1 AND integration = $2`,
		organizationID, string(integration),
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("loadTenantConfig: %w", err)
	}
	return config.ParseTenantConfig(raw)
}

func customerField(payload map[string]interface{}) map[string]interface{} {
	if customer, ok := payload["customer"].(map[string]interface{}); ok {
		return customer
	}
	return map[string]interface{}{
		"name":                stringField(payload, "customer_name"),
		"email":               stringField(payload, "contact_email"),
		"tax_id":              stringField(payload, "customer_identification"),
		"identification_type": stringField(payload, "customer_identification_type"),
	}
}

func invoiceLines(payload map[string]interface{}) []invoicesync.InvoiceLine {
	items, _ := payload["items"].([]interface{})
	lines := make([]invoicesync.InvoiceLine, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		price := floatField(item, "rate")
		if price == 0 {
			price = floatField(item, "amount")
		}
		lines = append(lines, invoicesync.InvoiceLine{
			ItemCode: stringField(item, "item_code"),
			Quantity: floatField(item, "qty"),
			Price:    price,
			TaxCode:  stringField(item, "tax_code"),
		})
	}
	return lines
}

func invoicePayments(payload map[string]interface{}) []invoicesync.Payment {
	raw, _ := payload["payments"].([]interface{})
	payments := make([]invoicesync.Payment, 0, len(raw))
	for _, r := range raw {
		p, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		payments = append(payments, invoicesync.Payment{
			Account: stringField(p, "account"),
			Method:  stringField(p, "method"),
			Amount:  floatField(p, "amount"),
		})
	}
	return payments
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func floatField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		var f float64
		fmt.Sscanf(v, "%f", &f)
		return f
	}
	return 0
}

// tenantSecretLookup resolves a tenant path segment to its organization ID
// and webhook shared secret, matching the tenants table's slug and
// integration columns, the operational counterpart of the
// original's ShopifyStore.webhook_shared_secret column lookup generalized
// across all three upstreams.
func tenantSecretLookup(db *sql.DB, integration domain.Integration) ingress.SecretLookup {
	return func(ctx context.Context, tenantID string) (string, string, error) {
		var organizationID, secret string
		err := db.QueryRowContext(ctx,
			`SELECT organization_id, webhook_secret FROM tenants WHERE slug = $1 AND integration = $2`,
			tenantID, string(integration),
		).Scan(&organizationID, &secret)
		if err != nil {
			return "", "", err
		}
		return organizationID, secret, nil
	}
}

func addrFromPort(port int) string {
	if port <= 0 {
		port = 8080
	}
	return ":" + strconv.Itoa(port)
}

package erpdocs

import (
	"context"
	"fmt"

	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/fulfillment"
	"github.com/juliezen/integrationhub/httpclient"
	"github.com/juliezen/integrationhub/pkg/logger"
)

// SourceUpdater implements fulfillment.SourceUpdater, grounded on
// service.py's _propagate_status: an erp_pos source gets a direct
// update_doc("Sales Invoice", ...) call against the seller's own
// credential; any other source only gets a best-effort log line, the Go
// equivalent of _record_shopify_feedback (which does nothing but log).
type SourceUpdater struct {
	Client         *httpclient.Client
	Cred           domain.Credential
	OrganizationID string
	Logger         logger.Logger
}

// UpdateSource marks the seller-side Sales Invoice fulfilled once the
// distributor documents exist. Failures are returned to the caller
// (fulfillment.Service.propagate swallows and logs them, matching the
// original's warning-only handling of update_doc errors).
func (u *SourceUpdater) UpdateSource(ctx context.Context, source domain.Integration, sourceOrderID string, docs *fulfillment.DistributorDocuments) error {
	if source != domain.IntegrationERPPOS {
		log := u.Logger
		if log == nil {
			log = logger.NewDefaultLogger()
		}
		log.Info("fulfillment complete, no source update defined for this integration", "source", source, "source_order_id", sourceOrderID)
		return nil
	}

	_, err := u.Client.Do(ctx, httpclient.Request{
		OrganizationID: u.OrganizationID,
		Integration:    domain.IntegrationERPPOS,
		Method:         "POST",
		BaseURL:        u.Cred.BaseURL,
		Path:           "/api/method/frappe.client.set_value",
		Body: map[string]interface{}{
			"doctype": "Sales Invoice",
			"name":    sourceOrderID,
			"fieldname": map[string]interface{}{
				"custom_fulfillment_status": "fulfilled",
				"custom_external_ref":       docs.DeliveryNoteName,
			},
		},
		EventType:         "fulfillment.source.update",
		ExternalReference: sourceOrderID,
		Cred:              u.Cred,
	})
	if err != nil {
		return fmt.Errorf("erpdocs.UpdateSource: %w", err)
	}
	return nil
}

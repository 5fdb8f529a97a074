// Package domain holds the data model shared by every integration
// component: messages, fulfillment orders, item maps and credentials.
package domain

import (
	"encoding/json"
	"time"
)

// Integration identifies one of the three upstream systems the hub talks to.
type Integration string

const (
	IntegrationStorefront Integration = "storefront"
	IntegrationERPPOS     Integration = "erp_pos"
	IntegrationAccounting Integration = "accounting"
)

// Direction is inbound (a webhook we received) or outbound (a call we made).
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageStatus is one state in the IntegrationMessage lifecycle.
type MessageStatus string

const (
	StatusReceived     MessageStatus = "received"
	StatusDispatched   MessageStatus = "dispatched"
	StatusAcknowledged MessageStatus = "acknowledged"
	StatusProcessed    MessageStatus = "processed"
	StatusFailed       MessageStatus = "failed"
)

// MaxPayloadBytes bounds Payload/ResponsePayload on every write.
const MaxPayloadBytes = 512 * 1024

// MaxAutoRetries is the number of retries scheduled automatically before a
// message is left in its terminal failed state for manual intervention.
const MaxAutoRetries = 3

// IntegrationMessage is the durable spine every inbound webhook and outbound
// call is recorded against.
type IntegrationMessage struct {
	ID                 string
	OrganizationID     string
	Integration        Integration
	Direction          Direction
	EventType          string
	IdempotencyKey     string
	ExternalReference  string
	Status             MessageStatus
	Payload            json.RawMessage
	ResponsePayload     json.RawMessage
	ErrorCode          string
	RetryCount         int
	NextRetryAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ALLOWED_TRANSITIONS, translated: the set of statuses a message in a given
// status may move to. Anything not listed is an illegal transition.
var AllowedTransitions = map[MessageStatus][]MessageStatus{
	StatusReceived:     {StatusDispatched, StatusFailed},
	StatusDispatched:   {StatusAcknowledged, StatusProcessed, StatusFailed},
	StatusAcknowledged: {StatusProcessed, StatusFailed},
	StatusFailed:       {},
	StatusProcessed:    {},
}

// CanTransition reports whether moving from `from` to `to` is permitted.
func CanTransition(from, to MessageStatus) bool {
	for _, allowed := range AllowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// FulfillmentOrderStatus tracks the fulfillment pipeline's own state
// machine, distinct from (but usually driven by) an IntegrationMessage.
type FulfillmentOrderStatus string

const (
	FulfillmentPending    FulfillmentOrderStatus = "pending"
	FulfillmentProcessing FulfillmentOrderStatus = "processing"
	FulfillmentWaitingStock FulfillmentOrderStatus = "waiting_stock"
	FulfillmentFulfilled  FulfillmentOrderStatus = "fulfilled"
	FulfillmentFailed     FulfillmentOrderStatus = "failed"
	FulfillmentReturned   FulfillmentOrderStatus = "returned"
)

// FulfillmentOrder mirrors one storefront/ERP order as it moves through the
// fulfillment pipeline (C7).
type FulfillmentOrder struct {
	ID                string
	OrganizationID    string
	SourceIntegration Integration
	SourceOrderID     string
	DistributorCompany string
	Status            FulfillmentOrderStatus
	SalesOrderName    string
	DeliveryNoteName  string
	LastError         string
	RetryCount        int
	Snapshot          json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FulfillmentItemMap resolves a source item code to a target item code and
// distributor company. Unique on (OrganizationID, Company, SourceItemCode),
// where Company is the *source* company the map entry applies under; Target
// identifies the distributor-side company and code, which may differ per
// line and drive the order-level single-target-company invariant.
type FulfillmentItemMap struct {
	ID             string
	OrganizationID string
	Company        string
	SourceItemCode string
	TargetItemCode string
	TargetCompany  string
	Warehouse      string
}

// AuthScheme is the authentication mechanism a Credential uses.
type AuthScheme string

const (
	AuthSchemeBasic      AuthScheme = "basic"
	AuthSchemeTokenPair  AuthScheme = "token_pair"
)

// Credential is the outbound authentication/endpoint record for one
// (organization, integration, company) tuple, following the original's
// "credential per company" resolution (most specific company match, else
// most-recently-updated).
type Credential struct {
	ID             string
	OrganizationID string
	Integration    Integration
	Company        string
	BaseURL        string
	AuthScheme     AuthScheme
	APIKey         string
	APISecret      string
	TimeoutSeconds int
	MaxRetries     int
	UpdatedAt      time.Time
}

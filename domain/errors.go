package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors, compared with errors.Is the way the teacher's core
// package compares ErrAgentNotFound etc.
var (
	ErrMessageNotFound  = errors.New("integration message not found")
	ErrIllegalTransition = errors.New("illegal message status transition")
	ErrPayloadTooLarge  = errors.New("payload exceeds maximum size")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrNoItemMapping    = errors.New("no item mapping for source item code")
	ErrDuplicateMessage = errors.New("duplicate idempotency key for organization/integration/direction")
)

// CredentialError reports a problem resolving or using stored credentials.
// Grounded on apps/integrations/exceptions.py:AlegraCredentialError.
type CredentialError struct {
	Op      string
	Message string
	Err     error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// APIError reports a non-2xx response from an upstream integration,
// carrying the classification produced by the status-code table.
// Grounded on apps/integrations/exceptions.py:AlegraAPIError and
// error_codes.py:ALEGRA_STATUS_MAP.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Retryable  bool
	Payload    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream error %d [%s] retryable=%v: %s", e.StatusCode, e.ErrorCode, e.Retryable, e.Payload)
}

// ValidationError reports a malformed or unverifiable inbound webhook.
// Grounded on apps/shopify/handlers.py's signature-check rejection and
// apps/alegra/services/erpnext_sales_invoice.py's WebhookValidationError.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// FulfillmentError is the base error kind for the fulfillment pipeline.
// Grounded on apps/integrations/exceptions.py:FulfillmentError.
type FulfillmentError struct {
	Stage      string
	ErrorCode  string
	Retryable  bool
	StatusCode int
	Message    string
	Err        error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("fulfillment[%s] %s: %s", e.Stage, e.ErrorCode, e.Message)
}

func (e *FulfillmentError) Unwrap() error { return e.Err }

func NewFulfillmentError(stage, message string) *FulfillmentError {
	return &FulfillmentError{Stage: stage, ErrorCode: "fulfillment_error", Retryable: false, Message: message}
}

// BackorderPending is a distinguished non-terminal outcome of the
// stock-check stage: there is not enough stock to fulfill the order yet,
// and the order should be retried later rather than failed outright.
// Grounded on apps/integrations/exceptions.py:BackorderPending.
type BackorderPending struct {
	*FulfillmentError
}

func NewBackorderPending(message string) *BackorderPending {
	if message == "" {
		message = "waiting for available stock"
	}
	return &BackorderPending{&FulfillmentError{
		Stage:      "stock_check",
		ErrorCode:  "waiting_stock",
		Retryable:  true,
		StatusCode: 409,
		Message:    message,
	}}
}

// FulfillmentConfigurationError reports a tenant misconfiguration (missing
// item map, missing credential, ...) discovered mid-pipeline.
// Grounded on apps/integrations/exceptions.py:FulfillmentConfigurationError.
type FulfillmentConfigurationError struct {
	*FulfillmentError
}

func NewFulfillmentConfigurationError(stage, message string) *FulfillmentConfigurationError {
	return NewFulfillmentConfigurationErrorCode(stage, "configuration_error", message)
}

// NewFulfillmentConfigurationErrorCode is NewFulfillmentConfigurationError
// with an explicit error_code, for configuration faults the line mapper
// distinguishes by cause (multiple_target_companies, invalid_item_map)
// rather than lumping under the generic code.
func NewFulfillmentConfigurationErrorCode(stage, code, message string) *FulfillmentConfigurationError {
	return &FulfillmentConfigurationError{&FulfillmentError{
		Stage:      stage,
		ErrorCode:  code,
		Retryable:  false,
		StatusCode: 400,
		Message:    message,
	}}
}

// IsRetryable reports whether err, whatever its concrete type, should be
// retried by the message processor.
func IsRetryable(err error) bool {
	switch e := err.(type) {
	case *APIError:
		return e.Retryable
	case *BackorderPending:
		return e.FulfillmentError.Retryable
	case *FulfillmentConfigurationError:
		return e.FulfillmentError.Retryable
	case *FulfillmentError:
		return e.Retryable
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

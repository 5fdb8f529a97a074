// Package invoicesync implements the invoice sync handler (C8): credential
// selection, contact resolution, and invoice payload assembly. Grounded
// on apps/alegra/services/erpnext_sales_invoice.py, the richest of the two
// variants in original_source/ (the other is
// apps/erpnext/services/alegra_invoice_sync.py).
package invoicesync

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/juliezen/integrationhub/domain"
)

// allowedIdentificationTypes mirrors
// apps/alegra/services/erpnext_invoice_sync.py:ALLOWED_ALEGRA_IDENTIFICATION_TYPES.
var allowedIdentificationTypes = map[string]bool{
	"NIT": true, "CC": true, "CE": true, "TI": true, "PPN": true, "RC": true,
}

// digitOnlyTypes are the identification kinds normalized to digits only,
// matching _build_contact_payload's numeric-type stripping.
var digitOnlyTypes = map[string]bool{"CC": true, "NIT": true, "TI": true, "CE": true}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// ContactData is the resolved/assembled Alegra-equivalent contact,
// grounded on _ensure_contact's ContactData dataclass.
type ContactData struct {
	ID                 string
	Name               string
	FirstName          string
	LastName           string
	IdentificationType string
	IdentificationNum  string
	Email              string
	KindOfPerson       string
	Regime             string
	Address            map[string]string
}

// ContactClient is the subset of the outbound accounting client the
// contact-resolution cascade needs.
type ContactClient interface {
	GetContact(ctx context.Context, id string) (map[string]interface{}, error)
	SearchContacts(ctx context.Context, term string) ([]map[string]interface{}, error)
	CreateContact(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error)
	UpdateContact(ctx context.Context, id string, payload map[string]interface{}) error
}

// EnsureContact resolves the accounting contact for a customer, mirroring
// _ensure_contact's cascade: known id -> identification -> email ->
// create-with-race-retry. There is no search by customer code. known provides whatever identifiers the
// caller already has on file (e.g. a previously stored custom_alegra_id).
func EnsureContact(ctx context.Context, client ContactClient, known ContactData, customer map[string]interface{}) (string, error) {
	if known.ID != "" {
		if _, err := client.GetContact(ctx, known.ID); err == nil {
			return known.ID, nil
		}
	}

	identification := extractIdentification(customer)
	if identification == "" {
		return "", domain.NewFulfillmentConfigurationError("ensure_contact", "customer has no identification number")
	}

	if found := findContact(ctx, client, identification); found != "" {
		return found, nil
	}

	if email, _ := customer["email"].(string); email != "" {
		if found := findContact(ctx, client, email); found != "" {
			return found, nil
		}
	}

	payload := buildContactPayload(customer, identification)
	created, err := client.CreateContact(ctx, payload)
	if err != nil {
		// A concurrent create may have raced us (409-style conflict);
		// one retry of the term search recovers the contact the other
		// request created, per the original's create-with-race-retry.
		if found := findContact(ctx, client, identification); found != "" {
			return found, nil
		}
		return "", fmt.Errorf("invoicesync.EnsureContact: create: %w", err)
	}
	id, _ := created["id"].(string)
	if id == "" {
		return "", fmt.Errorf("invoicesync.EnsureContact: create response had no id")
	}
	return id, nil
}

// findContact mirrors _find_contact's term search and returns the "id" of
// the first result, or "" when the search fails or finds nothing.
func findContact(ctx context.Context, client ContactClient, term string) string {
	results, err := client.SearchContacts(ctx, term)
	if err != nil || len(results) == 0 {
		return ""
	}
	id, _ := results[0]["id"].(string)
	return id
}

// extractIdentification mirrors _extract_customer_identification, raising
// (here: returning empty, checked by the caller) when no identification
// number is present on the customer record.
func extractIdentification(customer map[string]interface{}) string {
	for _, key := range []string{"tax_id", "identification", "customer_tax_id", "nit"} {
		if v, ok := customer[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// NormalizeIdentificationType mirrors _normalize_identification_type:
// uppercase, validate against the allowed set, raise otherwise.
func NormalizeIdentificationType(raw string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		normalized = "CC"
	}
	if !allowedIdentificationTypes[normalized] {
		return "", &domain.ValidationError{Field: "identification_type", Message: fmt.Sprintf("unsupported identification type %q", raw)}
	}
	return normalized, nil
}

// buildContactPayload mirrors _build_contact_payload: name splitting,
// digit-stripping for numeric identification types (CC, NIT, TI, CE), and
// the nameObject/identificationObject/kindOfPerson/regime shape the
// accounting API expects. A missing or unsupported identification type is
// sent as CC. Other types keep the number as given, and no other type is
// substituted when digit stripping leaves the number empty.
func buildContactPayload(customer map[string]interface{}, identification string) map[string]interface{} {
	name, _ := customer["name"].(string)
	first, last := splitName(name)

	idType, _ := customer["identification_type"].(string)
	normalizedType, err := NormalizeIdentificationType(idType)
	if err != nil {
		normalizedType = "CC"
	}

	idNumber := identification
	if digitOnlyTypes[normalizedType] {
		idNumber = nonDigits.ReplaceAllString(identification, "")
	}

	return map[string]interface{}{
		"name": name,
		"nameObject": map[string]interface{}{
			"firstName": first,
			"lastName":  last,
		},
		"identificationObject": map[string]interface{}{
			"type":   normalizedType,
			"number": idNumber,
		},
		"email":        customer["email"],
		"kindOfPerson": kindOfPerson(normalizedType),
		"regime":       "SIMPLIFIED",
	}
}

func kindOfPerson(idType string) string {
	if idType == "NIT" {
		return "LEGAL_ENTITY"
	}
	return "PERSON_ENTITY"
}

// splitName mirrors _split_name: the last whitespace-delimited token is
// the last name, everything before it the first name.
func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
}

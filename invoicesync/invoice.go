package invoicesync

import (
	"fmt"
)

// maxObservationLength mirrors the 500-char observation truncation in
// _build_invoice_payload.
const maxObservationLength = 500

// InvoiceLine is one source invoice line ready for payload assembly.
type InvoiceLine struct {
	ItemCode string
	Quantity float64
	Price    float64
	TaxCode  string
}

// Payment is one source payment ready for payload assembly.
type Payment struct {
	Account string
	Method  string
	Amount  float64
}

// NumberTemplate mirrors the id/prefix/number fields _build_invoice_payload
// sets on "numberTemplate".
type NumberTemplate struct {
	ID     string
	Prefix string
	Number int
}

// InvoiceInput bundles everything BuildInvoicePayload needs, standing in
// for the arguments threaded through process_erpnext_sales_invoice.
type InvoiceInput struct {
	ContactID      string
	Lines          []InvoiceLine
	Payments       []Payment
	TaxMap         map[string]string
	ItemMap        map[string]string
	PaymentAccountMap map[string]string
	PaymentMethodMap  map[string]string
	NumberTemplate NumberTemplate
	Observations   string
	InternalID     string
	PointOfSale    bool
}

// BuildInvoicePayload mirrors _build_invoice_payload: tax_map lookup per
// line, item_map lookup per line, stamp/paymentForm/type/operationType/
// status defaults, numberTemplate assembly, 500-char observation
// truncation, internalId from the naming series, and the pointOfSale flag.
func BuildInvoicePayload(in InvoiceInput) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(in.Lines))
	for _, line := range in.Lines {
		itemCode := line.ItemCode
		if mapped, ok := in.ItemMap[line.ItemCode]; ok {
			itemCode = mapped
		}
		item := map[string]interface{}{
			"id":       itemCode,
			"price":    line.Price,
			"quantity": line.Quantity,
		}
		if taxID, ok := in.TaxMap[line.TaxCode]; ok {
			item["tax"] = []string{taxID}
		}
		items = append(items, item)
	}

	payload := map[string]interface{}{
		"client": map[string]interface{}{"id": in.ContactID},
		"items":  items,
		"payments": buildPayments(in.Payments, in.PaymentAccountMap, in.PaymentMethodMap),
		"stamp":         map[string]interface{}{"generateStamp": true},
		"paymentForm":   "CASH",
		"type":          "NORMAL",
		"operationType": "STANDARD",
		"status":        "open",
		"numberTemplate": map[string]interface{}{
			"id":     in.NumberTemplate.ID,
			"prefix": in.NumberTemplate.Prefix,
			"number": in.NumberTemplate.Number,
		},
		"observations": truncate(in.Observations, maxObservationLength),
		"internalId":   in.InternalID,
		"pointOfSale":  in.PointOfSale,
	}
	return payload
}

// buildPayments mirrors _build_payments: per-payment account/method map
// lookup. It returns nil when there are no source payments; no payment
// covering the invoice total is synthesized.
func buildPayments(payments []Payment, accountMap, methodMap map[string]string) []map[string]interface{} {
	if len(payments) == 0 {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(payments))
	for _, p := range payments {
		account := p.Account
		if mapped, ok := accountMap[p.Account]; ok {
			account = mapped
		}
		method := p.Method
		if mapped, ok := methodMap[p.Method]; ok {
			method = mapped
		}
		out = append(out, map[string]interface{}{
			"account": map[string]interface{}{"id": account},
			"paymentMethod": method,
			"amount":        p.Amount,
		})
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func internalIDFromSeries(namingSeries string, sequence int) string {
	return fmt.Sprintf("%s%d", namingSeries, sequence)
}

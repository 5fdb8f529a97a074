package invoicesync

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/juliezen/integrationhub/domain"
)

type fakeContactClient struct {
	searchResults map[string][]map[string]interface{}
	created       map[string]interface{}
}

func (f *fakeContactClient) GetContact(ctx context.Context, id string) (map[string]interface{}, error) {
	return nil, fmt.Errorf("not found")
}

func (f *fakeContactClient) SearchContacts(ctx context.Context, term string) ([]map[string]interface{}, error) {
	return f.searchResults[term], nil
}

func (f *fakeContactClient) CreateContact(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	f.created = payload
	return map[string]interface{}{"id": "new-contact"}, nil
}

func (f *fakeContactClient) UpdateContact(ctx context.Context, id string, payload map[string]interface{}) error {
	return nil
}

func TestEnsureContactFindsByIdentification(t *testing.T) {
	client := &fakeContactClient{searchResults: map[string][]map[string]interface{}{
		"900123456": {{"id": "contact-1"}},
	}}
	id, err := EnsureContact(context.Background(), client, ContactData{}, map[string]interface{}{
		"tax_id": "900123456", "name": "Acme Corp",
	})
	require.NoError(t, err)
	require.Equal(t, "contact-1", id)
}

func TestEnsureContactCreatesWhenNotFound(t *testing.T) {
	client := &fakeContactClient{searchResults: map[string][]map[string]interface{}{}}
	id, err := EnsureContact(context.Background(), client, ContactData{}, map[string]interface{}{
		"tax_id": "900123456", "name": "Jane Doe", "email": "jane@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "new-contact", id)
	require.NotNil(t, client.created)
}

func TestEnsureContactRequiresIdentification(t *testing.T) {
	client := &fakeContactClient{}
	_, err := EnsureContact(context.Background(), client, ContactData{}, map[string]interface{}{"name": "No ID"})
	require.Error(t, err)
}

func TestNormalizeIdentificationTypeRejectsUnknown(t *testing.T) {
	_, err := NormalizeIdentificationType("XX")
	require.Error(t, err)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestNormalizeIdentificationTypeDefaultsToCC(t *testing.T) {
	typ, err := NormalizeIdentificationType("")
	require.NoError(t, err)
	require.Equal(t, "CC", typ)
}

func TestBuildInvoicePayloadTruncatesObservations(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	payload := BuildInvoicePayload(InvoiceInput{Observations: string(long)})
	require.Len(t, payload["observations"], maxObservationLength)
}

func TestBuildInvoicePayloadMapsTaxAndItem(t *testing.T) {
	payload := BuildInvoicePayload(InvoiceInput{
		Lines:   []InvoiceLine{{ItemCode: "SRC-1", Quantity: 2, Price: 10, TaxCode: "IVA19"}},
		TaxMap:  map[string]string{"IVA19": "tax-1"},
		ItemMap: map[string]string{"SRC-1": "TGT-1"},
	})
	items := payload["items"].([]map[string]interface{})
	require.Len(t, items, 1)
	require.Equal(t, "TGT-1", items[0]["id"])
	require.Equal(t, []string{"tax-1"}, items[0]["tax"])
}

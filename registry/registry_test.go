package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/juliezen/integrationhub/domain"
)

func TestLookupOrdersSpecificBeforeWildcard(t *testing.T) {
	r := New()
	var order []string
	r.Register(domain.IntegrationAccounting, Wildcard, func(ctx context.Context, msg *domain.IntegrationMessage) error {
		order = append(order, "wildcard")
		return nil
	})
	r.Register(domain.IntegrationAccounting, "invoice.synced", func(ctx context.Context, msg *domain.IntegrationMessage) error {
		order = append(order, "specific")
		return nil
	})

	handlers := r.Lookup(domain.IntegrationAccounting, "invoice.synced")
	require.Len(t, handlers, 2)
	for _, h := range handlers {
		_ = h(context.Background(), &domain.IntegrationMessage{})
	}
	require.Equal(t, []string{"specific", "wildcard"}, order)
}

func TestLookupUnknownIntegrationReturnsNil(t *testing.T) {
	r := New()
	require.Nil(t, r.Lookup(domain.IntegrationStorefront, "whatever"))
}

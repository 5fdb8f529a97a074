package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOutInSubscriptionOrder(t *testing.T) {
	bus := New()
	var order []int
	bus.Subscribe("order.created", func(ctx context.Context, ev Event) error {
		order = append(order, 1)
		return nil
	})
	bus.Subscribe("order.created", func(ctx context.Context, ev Event) error {
		order = append(order, 2)
		return errors.New("boom")
	})
	bus.Subscribe("order.created", func(ctx context.Context, ev Event) error {
		order = append(order, 3)
		return nil
	})

	errs := bus.Publish(context.Background(), Event{Name: "order.created"})
	require.Equal(t, []int{1, 2, 3}, order)
	require.Len(t, errs, 1)
}

func TestPublishAndWaitReturnsFirstReply(t *testing.T) {
	bus := New()
	bus.Subscribe("order.lookup", func(ctx context.Context, ev Event) error {
		RespondTo(ctx, "found", nil)
		return nil
	})

	v, err := bus.PublishAndWait(context.Background(), Event{Name: "order.lookup"})
	require.NoError(t, err)
	require.Equal(t, "found", v)
}

func TestPublishAndWaitNoResponder(t *testing.T) {
	bus := New()
	_, err := bus.PublishAndWait(context.Background(), Event{Name: "nobody.listens"})
	require.Error(t, err)
}

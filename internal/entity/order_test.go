package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestApplyCatalogPrices(t *testing.T) {
	catalog := map[string]*Product{
		"p1": {ID: "p1", Name: "Widget", Price: decimal.NewFromInt(100)},
		"p2": {ID: "p2", Name: "Gadget", Price: decimal.NewFromInt(50)},
	}
	order := &Order{Items: []*OrderItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	}}

	require.NoError(t, order.ApplyCatalogPrices(catalog))
	require.True(t, decimal.NewFromInt(250).Equal(order.TotalAmount))
	require.True(t, decimal.NewFromInt(100).Equal(order.Items[0].PriceAtPurchase))
	require.Equal(t, "Gadget", order.Items[1].Product.Name)

	// later catalog edits do not touch the snapshot
	catalog["p1"].Price = decimal.NewFromInt(1)
	require.True(t, decimal.NewFromInt(100).Equal(order.Items[0].PriceAtPurchase))
}

func TestApplyCatalogPricesMissingProduct(t *testing.T) {
	catalog := map[string]*Product{"p1": {ID: "p1", Price: decimal.NewFromInt(10)}}
	order := &Order{Items: []*OrderItem{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "missing", Quantity: 1},
	}}

	err := order.ApplyCatalogPrices(catalog)
	var notFound *ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "missing", notFound.ProductID)
	require.True(t, order.TotalAmount.IsZero())
	require.True(t, order.Items[0].PriceAtPurchase.IsZero())
}

func TestProductIDsDeduplicates(t *testing.T) {
	order := &Order{Items: []*OrderItem{{ProductID: "a"}, {ProductID: "b"}, {ProductID: "a"}}}
	require.Equal(t, []string{"a", "b"}, order.ProductIDs())
}

func TestOrderTransitionTo(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	order := &Order{Status: OrderStatusNew}

	require.NoError(t, order.TransitionTo(OrderStatusProcessing, now))
	require.Equal(t, OrderStatusProcessing, order.Status)
	require.Equal(t, now, order.UpdatedAt)

	err := order.TransitionTo(OrderStatusNew, now)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, OrderStatusProcessing, transitionErr.From)
	require.Equal(t, OrderStatusNew, transitionErr.To)
	require.Equal(t, OrderStatusProcessing, order.Status)

	err = order.TransitionTo(OrderStatus("SHIPPED"), now)
	var invalid *InvalidStatusError
	require.ErrorAs(t, err, &invalid)
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/mini-oms/internal/adapter/storage"
	"github.com/rl1809/mini-oms/internal/core/domain"
)

func TestPlaceOrder_TotalsAndSnapshot(t *testing.T) {
	f := newFixture(t, "100")
	other := f.addProduct(t, f.supplier, "Oil", "2.5", "50")
	svc := NewOrderService(f.db, nil, nil)
	svc.now = fixedClock("2026-01-02T03:04:05Z")

	order, err := svc.PlaceOrder(context.Background(), f.buyer.UserID, []PlaceOrderItem{
		f.line("3", "KG"),
		{ProductID: other.ID, SupplierID: other.SupplierID, Quantity: decimal.NewFromInt(4), UomID: f.units["KG"].ID},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 2)
	assert.True(t, order.Items[0].LineItemTotal.Equal(decimal.NewFromInt(30)))
	assert.True(t, order.Items[1].LineItemTotal.Equal(decimal.NewFromInt(10)))
	assert.True(t, order.TotalAmount.Equal(order.SumLineTotals()))
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, "Rice", order.Items[0].ProductName)

	require.Len(t, order.StatusHistory, 1)
	assert.Nil(t, order.StatusHistory[0].OldStatus)
	assert.Equal(t, domain.OrderStatusPending, order.StatusHistory[0].NewStatus)
	assert.Equal(t, f.buyer.UserID, order.StatusHistory[0].ChangedByUserID)

	// Placement reserves nothing.
	assert.True(t, f.stock(t, f.product.ID).Equal(decimal.NewFromInt(100)))

	// Price changes after placement do not touch the stored line.
	_, _, err = NewCatalogService(f.db).UpsertProduct(context.Background(), f.supplier, ProductInput{
		ID:           f.product.ID,
		Name:         "Rice",
		PricePerUnit: decimal.NewFromInt(99),
		BaseUomID:    f.units["KG"].ID,
	})
	require.NoError(t, err)

	orders, err := svc.ListOrdersFor(context.Background(), f.buyer, "")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Items[0].PriceAtOrder.Equal(decimal.NewFromInt(10)))
}

func TestPlaceOrder_ConvertsToBaseUnit(t *testing.T) {
	f := newFixture(t, "5")
	svc := NewOrderService(f.db, nil, nil)

	order, err := svc.PlaceOrder(context.Background(), f.buyer.UserID, []PlaceOrderItem{f.line("2000", "GM")}, "")
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].Quantity.Equal(decimal.NewFromInt(2)), "got %s", order.Items[0].Quantity)
	assert.Equal(t, f.units["KG"].ID, order.Items[0].UomID)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(20)))
}

func TestPlaceOrder_Failures(t *testing.T) {
	f := newFixture(t, "5")
	svc := NewOrderService(f.db, nil, nil)

	tests := []struct {
		name  string
		items []PlaceOrderItem
		want  error
	}{
		{"no items", nil, ErrNoItems},
		{"over stock", []PlaceOrderItem{f.line("6", "KG")}, ErrInsufficientStock},
		{"rounds to zero in base unit", []PlaceOrderItem{f.line("0.0004", "GM")}, ErrValidation},
		{"exceeds stored range", []PlaceOrderItem{f.line("100000000000000", "KG")}, ErrValidation},
		{"zero quantity", []PlaceOrderItem{f.line("0", "KG")}, ErrValidation},
		{"missing unit", []PlaceOrderItem{{ProductID: f.product.ID, SupplierID: f.supplier.UserID, Quantity: decimal.NewFromInt(1)}}, ErrValidation},
		{"unknown product", []PlaceOrderItem{{ProductID: "nope", SupplierID: f.supplier.UserID, Quantity: decimal.NewFromInt(1), UomID: f.units["KG"].ID}}, ErrNotFound},
		{"supplier mismatch", []PlaceOrderItem{{ProductID: f.product.ID, SupplierID: "someone-else", Quantity: decimal.NewFromInt(1), UomID: f.units["KG"].ID}}, ErrSupplierMismatch},
		{"no conversion", []PlaceOrderItem{f.line("1", "LT")}, ErrNoConversion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(context.Background(), f.buyer.UserID, tt.items, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	orders, err := svc.ListOrdersFor(context.Background(), f.buyer, "")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.True(t, f.stock(t, f.product.ID).Equal(decimal.NewFromInt(5)))
}

func TestPlaceOrder_ChecksEachLineAgainstStock(t *testing.T) {
	f := newFixture(t, "5")
	svc := NewOrderService(f.db, nil, nil)
	ctx := context.Background()

	order, err := svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{f.line("3", "KG"), f.line("3000", "GM")}, "")
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(60)))

	// The combined quantity is rejected when stock is actually deducted.
	_, err = svc.ChangeStatus(ctx, order.ID, domain.OrderStatusApproved, f.admin.UserID)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.True(t, f.stock(t, f.product.ID).Equal(decimal.NewFromInt(5)))
}

func TestPlaceOrder_RoundsToStoredScale(t *testing.T) {
	f := newFixture(t, "5")
	cheap := f.addProduct(t, f.supplier, "Salt", "0.333333", "5")
	svc := NewOrderService(f.db, nil, nil)
	ctx := context.Background()

	gram := PlaceOrderItem{ProductID: cheap.ID, SupplierID: cheap.SupplierID, Quantity: decimal.NewFromInt(1), UomID: f.units["GM"].ID}
	order, err := svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{gram, gram}, "")
	require.NoError(t, err)

	require.Len(t, order.Items, 2)
	for _, item := range order.Items {
		assert.Equal(t, "0.001", item.Quantity.String())
		assert.Equal(t, "0.000333", item.LineItemTotal.String())
	}
	assert.Equal(t, "0.000666", order.TotalAmount.String())
	assert.True(t, order.TotalAmount.Equal(order.SumLineTotals()))

	orders, err := svc.ListOrdersFor(ctx, f.buyer, "")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].TotalAmount.Equal(order.TotalAmount))
	assert.True(t, orders[0].TotalAmount.Equal(orders[0].SumLineTotals()))
}

func TestPlaceOrder_Idempotency(t *testing.T) {
	f := newFixture(t, "5")
	cache := storage.NewMemoryCache()
	svc := NewOrderService(f.db, nil, cache)
	ctx := context.Background()

	_, err := svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{f.line("1", "KG")}, "req-1")
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{f.line("1", "KG")}, "req-1")
	assert.ErrorIs(t, err, ErrDuplicateRequest)
	assert.ErrorIs(t, err, ErrConflict)

	// Another buyer may reuse the same key.
	_, err = svc.PlaceOrder(ctx, "buyer-2", []PlaceOrderItem{f.line("1", "KG")}, "req-1")
	require.NoError(t, err)

	// A failed attempt releases its key so the buyer can retry.
	_, err = svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{f.line("50", "KG")}, "req-2")
	require.ErrorIs(t, err, ErrInsufficientStock)
	_, err = svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{f.line("1", "KG")}, "req-2")
	require.NoError(t, err)
}

func TestChangeStatus_ApprovalDeductsOnce(t *testing.T) {
	f := newFixture(t, "10")
	notifier := &recordingNotifier{}
	svc := NewOrderService(f.db, notifier, nil)
	ctx := context.Background()

	order, err := svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{f.line("4", "KG")}, "")
	require.NoError(t, err)

	approved, err := svc.ChangeStatus(ctx, order.ID, domain.OrderStatusApproved, f.admin.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusApproved, approved.Status)
	assert.True(t, f.stock(t, f.product.ID).Equal(decimal.NewFromInt(6)))

	// APPROVED to APPROVED records history but leaves stock alone.
	_, err = svc.ChangeStatus(ctx, order.ID, domain.OrderStatusApproved, f.admin.UserID)
	require.NoError(t, err)
	assert.True(t, f.stock(t, f.product.ID).Equal(decimal.NewFromInt(6)))

	// Cancelling does not restock.
	cancelled, err := svc.ChangeStatus(ctx, order.ID, domain.OrderStatusCancelled, f.admin.UserID)
	require.NoError(t, err)
	assert.True(t, f.stock(t, f.product.ID).Equal(decimal.NewFromInt(6)))

	require.Len(t, cancelled.StatusHistory, 4)
	last := cancelled.StatusHistory[3]
	require.NotNil(t, last.OldStatus)
	assert.Equal(t, domain.OrderStatusApproved, *last.OldStatus)
	assert.Equal(t, domain.OrderStatusCancelled, last.NewStatus)
	assert.Equal(t, f.admin.UserID, last.ChangedByUserID)

	assert.Equal(t, []domain.StatusChangedEvent{
		{OrderID: order.ID, OldStatus: domain.OrderStatusPending, NewStatus: domain.OrderStatusApproved},
		{OrderID: order.ID, OldStatus: domain.OrderStatusApproved, NewStatus: domain.OrderStatusApproved},
		{OrderID: order.ID, OldStatus: domain.OrderStatusApproved, NewStatus: domain.OrderStatusCancelled},
	}, notifier.events)
}

func TestChangeStatus_InsufficientStockAborts(t *testing.T) {
	f := newFixture(t, "5")
	notifier := &recordingNotifier{}
	svc := NewOrderService(f.db, notifier, nil)
	ctx := context.Background()

	first, err := svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{f.line("4", "KG")}, "")
	require.NoError(t, err)
	second, err := svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{f.line("3", "KG")}, "")
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, first.ID, domain.OrderStatusApproved, f.admin.UserID)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, second.ID, domain.OrderStatusApproved, f.admin.UserID)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.ErrorIs(t, err, ErrDomainRule)

	assert.True(t, f.stock(t, f.product.ID).Equal(decimal.NewFromInt(1)))
	stored, err := f.db.LockOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Len(t, stored.StatusHistory, 1)
	assert.Len(t, notifier.events, 1)
}

func TestChangeStatus_MultiLineRollsBackPartialDeduction(t *testing.T) {
	f := newFixture(t, "10")
	scarce := f.addProduct(t, f.supplier, "Saffron", "100", "1")
	svc := NewOrderService(f.db, nil, nil)
	ctx := context.Background()

	order, err := svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{
		f.line("2", "KG"),
		{ProductID: scarce.ID, SupplierID: scarce.SupplierID, Quantity: decimal.NewFromInt(1), UomID: f.units["KG"].ID},
	}, "")
	require.NoError(t, err)

	// Drain the scarce product after placement.
	require.NoError(t, f.db.SetStock(ctx, scarce.ID, decimal.Zero))

	_, err = svc.ChangeStatus(ctx, order.ID, domain.OrderStatusApproved, f.admin.UserID)
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.True(t, f.stock(t, f.product.ID).Equal(decimal.NewFromInt(10)))
}

func TestChangeStatus_Errors(t *testing.T) {
	f := newFixture(t, "5")
	svc := NewOrderService(f.db, nil, nil)

	_, err := svc.ChangeStatus(context.Background(), "missing", domain.OrderStatusShipped, f.admin.UserID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ChangeStatus(context.Background(), "missing", domain.OrderStatus("LOST"), f.admin.UserID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListOrdersFor(t *testing.T) {
	f := newFixture(t, "100")
	otherSupplier := domain.Principal{UserID: "supplier-2", Role: domain.RoleSupplier}
	foreign := f.addProduct(t, otherSupplier, "Salt", "1", "100")
	svc := NewOrderService(f.db, nil, nil)
	ctx := context.Background()

	mixed, err := svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{
		f.line("1", "KG"),
		{ProductID: foreign.ID, SupplierID: foreign.SupplierID, Quantity: decimal.NewFromInt(1), UomID: f.units["KG"].ID},
	}, "")
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, "buyer-2", []PlaceOrderItem{f.line("1", "KG")}, "")
	require.NoError(t, err)

	own, err := svc.ListOrdersFor(ctx, f.buyer, "")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mixed.ID, own[0].ID)
	assert.Len(t, own[0].Items, 2)

	supplied, err := svc.ListOrdersFor(ctx, otherSupplier, "")
	require.NoError(t, err)
	require.Len(t, supplied, 1)
	require.Len(t, supplied[0].Items, 1)
	assert.Equal(t, foreign.ID, supplied[0].Items[0].ProductID)

	_, err = svc.ListOrdersFor(ctx, f.admin, "")
	assert.ErrorIs(t, err, ErrValidation)

	forAdmin, err := svc.ListOrdersFor(ctx, f.admin, f.supplier.UserID)
	require.NoError(t, err)
	assert.Len(t, forAdmin, 2)
}

func TestAnalytics(t *testing.T) {
	f := newFixture(t, "100")
	svc := NewOrderService(f.db, nil, nil)
	ctx := context.Background()

	first, err := svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{f.line("2", "KG")}, "")
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, f.buyer.UserID, []PlaceOrderItem{f.line("500", "GM")}, "")
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, first.ID, domain.OrderStatusApproved, f.admin.UserID)
	require.NoError(t, err)

	analytics, err := svc.Analytics(ctx)
	require.NoError(t, err)

	assert.ElementsMatch(t, []domain.StatusCount{
		{Status: domain.OrderStatusApproved, Count: 1},
		{Status: domain.OrderStatusPending, Count: 1},
	}, analytics.Counts)
	require.Len(t, analytics.RevenueBySupplier, 1)
	assert.Equal(t, f.supplier.UserID, analytics.RevenueBySupplier[0].SupplierID)
	assert.True(t, analytics.RevenueBySupplier[0].Revenue.Equal(decimal.NewFromInt(25)))
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, errors.Is(ErrInvalidCredentials, ErrUnauthenticated))
	assert.True(t, errors.Is(ErrNoConversion, ErrDomainRule))
	assert.False(t, errors.Is(ErrNoConversion, ErrNotFound))
	assert.Equal(t, "insufficient stock", ErrInsufficientStock.Error())
}

// Mock CacheRepository
type mockCacheRepo struct {
	setErr   error
	released []string
	mu       sync.Mutex
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, key)
	return nil
}

func TestPlaceOrder_CacheFailure(t *testing.T) {
	f := newFixture(t, "5")
	cache := &mockCacheRepo{setErr: errors.New("redis down")}
	svc := NewOrderService(f.db, nil, cache)

	_, err := svc.PlaceOrder(context.Background(), f.buyer.UserID, []PlaceOrderItem{f.line("1", "KG")}, "req-1")
	if err == nil || errors.Is(err, ErrConflict) {
		t.Fatalf("expected infrastructure error, got: %v", err)
	}
	if len(cache.released) != 0 {
		t.Errorf("expected no release for a key that was never set, got %v", cache.released)
	}
}

func TestPlaceOrder_ReleasesKeyOnFailure(t *testing.T) {
	f := newFixture(t, "5")
	cache := &mockCacheRepo{}
	svc := NewOrderService(f.db, nil, cache)

	_, err := svc.PlaceOrder(context.Background(), f.buyer.UserID, []PlaceOrderItem{f.line("9", "KG")}, "req-1")
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}
	want := "order:" + f.buyer.UserID + ":req-1"
	if len(cache.released) != 1 || cache.released[0] != want {
		t.Errorf("expected %q to be released, got %v", want, cache.released)
	}
}

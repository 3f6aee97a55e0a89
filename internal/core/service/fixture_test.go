package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/mini-oms/internal/adapter/storage"
	"github.com/rl1809/mini-oms/internal/core/domain"
)

type fixture struct {
	db       *storage.MemoryAdapter
	units    map[string]domain.UnitOfMeasure
	supplier domain.Principal
	buyer    domain.Principal
	admin    domain.Principal
	product  domain.Product
}

// newFixture seeds the default units and one product priced at 10 per KG with the given stock.
func newFixture(t *testing.T, stock string) *fixture {
	t.Helper()
	ctx := context.Background()

	db := storage.NewMemoryAdapter()
	units, err := NewUnitService(db).SeedDefaults(ctx)
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		units:    units,
		supplier: domain.Principal{UserID: "supplier-1", Role: domain.RoleSupplier},
		buyer:    domain.Principal{UserID: "buyer-1", Role: domain.RoleBuyer},
		admin:    domain.Principal{UserID: "admin-1", Role: domain.RoleAdmin},
	}
	f.product = f.addProduct(t, f.supplier, "Rice", "10", stock)
	return f
}

func (f *fixture) addProduct(t *testing.T, owner domain.Principal, name, price, stock string) domain.Product {
	t.Helper()
	initial := decimal.RequireFromString(stock)
	product, created, err := NewCatalogService(f.db).UpsertProduct(context.Background(), owner, ProductInput{
		Name:         name,
		PricePerUnit: decimal.RequireFromString(price),
		BaseUomID:    f.units["KG"].ID,
		InitialStock: &initial,
	})
	require.NoError(t, err)
	require.True(t, created)
	return *product
}

func (f *fixture) stock(t *testing.T, productID string) decimal.Decimal {
	t.Helper()
	inv, err := f.db.GetInventory(context.Background(), productID)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv.Quantity
}

func (f *fixture) line(qty, unit string) PlaceOrderItem {
	return PlaceOrderItem{
		ProductID:  f.product.ID,
		SupplierID: f.product.SupplierID,
		Quantity:   decimal.RequireFromString(qty),
		UomID:      f.units[unit].ID,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.StatusChangedEvent
}

func (r *recordingNotifier) NotifyStatusChanged(_ context.Context, e domain.StatusChangedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func fixedClock(ts string) func() time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

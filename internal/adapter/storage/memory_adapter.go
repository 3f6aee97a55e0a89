package storage

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/port"
)

type memTxKey struct{}

type memState struct {
	users       map[string]domain.User
	products    map[string]domain.Product
	inventory   map[string]domain.Inventory
	units       map[string]domain.UnitOfMeasure
	conversions map[[2]string]domain.UomConversion
	orders      map[string]domain.Order
}

func newMemState() memState {
	return memState{
		users:       make(map[string]domain.User),
		products:    make(map[string]domain.Product),
		inventory:   make(map[string]domain.Inventory),
		units:       make(map[string]domain.UnitOfMeasure),
		conversions: make(map[[2]string]domain.UomConversion),
		orders:      make(map[string]domain.Order),
	}
}

func (s memState) clone() memState {
	c := memState{
		users:       maps.Clone(s.users),
		products:    maps.Clone(s.products),
		inventory:   maps.Clone(s.inventory),
		units:       maps.Clone(s.units),
		conversions: maps.Clone(s.conversions),
		orders:      make(map[string]domain.Order, len(s.orders)),
	}
	for id, o := range s.orders {
		c.orders[id] = copyOrder(o)
	}
	return c
}

// MemoryAdapter keeps all data in process. A transaction holds the adapter-wide lock for its whole
// duration and restores a snapshot when it fails, so transactions are fully serialized.
type MemoryAdapter struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{state: newMemState(), now: time.Now}
}

func (m *MemoryAdapter) Transact(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	defer func() {
		if p := recover(); p != nil {
			m.state = snapshot
			panic(p)
		}
		if err != nil {
			m.state = snapshot
		}
	}()

	return fn(context.WithValue(ctx, memTxKey{}, true))
}

// lock takes the adapter lock unless ctx already runs inside a transaction that holds it.
func (m *MemoryAdapter) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryAdapter) CreateUser(ctx context.Context, user domain.User) error {
	defer m.lock(ctx)()
	for _, u := range m.state.users {
		if u.Email == user.Email || u.Username == user.Username {
			return port.ErrDuplicateKey
		}
	}
	m.state.users[user.ID] = user
	return nil
}

func (m *MemoryAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer m.lock(ctx)()
	for _, u := range m.state.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryAdapter) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	defer m.lock(ctx)()
	for _, u := range m.state.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductListing, error) {
	defer m.lock(ctx)()

	query := strings.ToLower(filter.Query)
	matched := make([]domain.Product, 0, len(m.state.products))
	for _, p := range m.state.products {
		if filter.SupplierID != "" && p.SupplierID != filter.SupplierID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		matched = append(matched, p)
	}
	slices.SortFunc(matched, func(a, b domain.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	start := min(filter.Skip, len(matched))
	end := min(start+filter.Take, len(matched))
	listings := make([]domain.ProductListing, 0, end-start)
	for _, p := range matched[start:end] {
		listing := domain.ProductListing{
			Product:          p,
			BaseUomSymbol:    m.state.units[p.BaseUomID].Symbol,
			SupplierUsername: m.state.users[p.SupplierID].Username,
		}
		if inv, ok := m.state.inventory[p.ID]; ok {
			stock := inv.Quantity
			listing.Stock = &stock
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	defer m.lock(ctx)()
	p, ok := m.state.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryAdapter) GetProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	defer m.lock(ctx)()
	var out []domain.Product
	for _, id := range ids {
		if p, ok := m.state.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) CreateProduct(ctx context.Context, product domain.Product) error {
	defer m.lock(ctx)()
	if _, ok := m.state.products[product.ID]; ok {
		return port.ErrDuplicateKey
	}
	m.state.products[product.ID] = product
	return nil
}

func (m *MemoryAdapter) UpdateProduct(ctx context.Context, product domain.Product) error {
	defer m.lock(ctx)()
	if _, ok := m.state.products[product.ID]; !ok {
		return port.ErrNotFound
	}
	m.state.products[product.ID] = product
	return nil
}

func (m *MemoryAdapter) GetInventory(ctx context.Context, productID string) (*domain.Inventory, error) {
	defer m.lock(ctx)()
	inv, ok := m.state.inventory[productID]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (m *MemoryAdapter) LockInventories(ctx context.Context, productIDs []string) (map[string]domain.Inventory, error) {
	defer m.lock(ctx)()
	out := make(map[string]domain.Inventory, len(productIDs))
	for _, id := range productIDs {
		if inv, ok := m.state.inventory[id]; ok {
			out[id] = inv
		}
	}
	return out, nil
}

func (m *MemoryAdapter) LockInventory(ctx context.Context, productID string) (*domain.Inventory, error) {
	return m.GetInventory(ctx, productID)
}

func (m *MemoryAdapter) SetStock(ctx context.Context, productID string, quantity decimal.Decimal) error {
	defer m.lock(ctx)()
	if quantity.IsNegative() {
		return port.ErrStockConflict
	}
	if _, ok := m.state.products[productID]; !ok {
		return port.ErrNotFound
	}
	m.state.inventory[productID] = domain.Inventory{ProductID: productID, Quantity: quantity, UpdatedAt: m.now().UTC()}
	return nil
}

func (m *MemoryAdapter) DeductStock(ctx context.Context, productID string, quantity decimal.Decimal) error {
	defer m.lock(ctx)()
	inv, ok := m.state.inventory[productID]
	if !ok || inv.Quantity.LessThan(quantity) {
		return port.ErrStockConflict
	}
	inv.Quantity = inv.Quantity.Sub(quantity)
	inv.UpdatedAt = m.now().UTC()
	m.state.inventory[productID] = inv
	return nil
}

func (m *MemoryAdapter) ListUnits(ctx context.Context) ([]domain.UnitOfMeasure, error) {
	defer m.lock(ctx)()
	units := slices.Collect(maps.Values(m.state.units))
	slices.SortFunc(units, func(a, b domain.UnitOfMeasure) int { return cmp.Compare(a.Symbol, b.Symbol) })
	return units, nil
}

func (m *MemoryAdapter) ListConversions(ctx context.Context) ([]domain.UomConversion, error) {
	defer m.lock(ctx)()
	convs := slices.Collect(maps.Values(m.state.conversions))
	slices.SortFunc(convs, func(a, b domain.UomConversion) int { return cmp.Compare(a.ID, b.ID) })
	return convs, nil
}

func (m *MemoryAdapter) GetUnit(ctx context.Context, id string) (*domain.UnitOfMeasure, error) {
	defer m.lock(ctx)()
	u, ok := m.state.units[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryAdapter) GetConversion(ctx context.Context, fromUomID, toUomID string) (*domain.UomConversion, error) {
	defer m.lock(ctx)()
	c, ok := m.state.conversions[[2]string{fromUomID, toUomID}]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryAdapter) UpsertUnit(ctx context.Context, unit domain.UnitOfMeasure) (domain.UnitOfMeasure, error) {
	defer m.lock(ctx)()
	for _, u := range m.state.units {
		if u.Symbol == unit.Symbol {
			return u, nil
		}
	}
	m.state.units[unit.ID] = unit
	return unit, nil
}

func (m *MemoryAdapter) UpsertConversion(ctx context.Context, conv domain.UomConversion) error {
	defer m.lock(ctx)()
	key := [2]string{conv.FromUomID, conv.ToUomID}
	if existing, ok := m.state.conversions[key]; ok {
		conv.ID = existing.ID
	}
	m.state.conversions[key] = conv
	return nil
}

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	defer m.lock(ctx)()
	if _, ok := m.state.orders[order.ID]; ok {
		return port.ErrDuplicateKey
	}
	m.state.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *MemoryAdapter) LockOrder(ctx context.Context, id string) (*domain.Order, error) {
	defer m.lock(ctx)()
	o, ok := m.state.orders[id]
	if !ok {
		return nil, nil
	}
	out := m.withProductNames(copyOrder(o))
	return &out, nil
}

func (m *MemoryAdapter) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	defer m.lock(ctx)()
	o, ok := m.state.orders[id]
	if !ok {
		return port.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = m.now().UTC()
	m.state.orders[id] = o
	return nil
}

func (m *MemoryAdapter) AppendStatusHistory(ctx context.Context, entry domain.OrderStatusHistory) error {
	defer m.lock(ctx)()
	o, ok := m.state.orders[entry.OrderID]
	if !ok {
		return port.ErrNotFound
	}
	o.StatusHistory = append(slices.Clip(o.StatusHistory), entry)
	m.state.orders[entry.OrderID] = o
	return nil
}

func (m *MemoryAdapter) ListBuyerOrders(ctx context.Context, buyerID string) ([]domain.Order, error) {
	defer m.lock(ctx)()
	out := []domain.Order{}
	for _, o := range m.state.orders {
		if o.BuyerID == buyerID {
			out = append(out, m.withProductNames(copyOrder(o)))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryAdapter) ListSupplierOrders(ctx context.Context, supplierID string) ([]domain.Order, error) {
	defer m.lock(ctx)()
	out := []domain.Order{}
	for _, o := range m.state.orders {
		c := copyOrder(o)
		c.Items = slices.DeleteFunc(c.Items, func(it domain.OrderItem) bool { return it.SupplierID != supplierID })
		if len(c.Items) > 0 {
			out = append(out, m.withProductNames(c))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryAdapter) CountOrdersByStatus(ctx context.Context) ([]domain.StatusCount, error) {
	defer m.lock(ctx)()
	counts := make(map[domain.OrderStatus]int64)
	for _, o := range m.state.orders {
		counts[o.Status]++
	}
	out := []domain.StatusCount{}
	for status, n := range counts {
		out = append(out, domain.StatusCount{Status: status, Count: n})
	}
	slices.SortFunc(out, func(a, b domain.StatusCount) int { return cmp.Compare(a.Status, b.Status) })
	return out, nil
}

func (m *MemoryAdapter) RevenueBySupplier(ctx context.Context) ([]domain.SupplierRevenue, error) {
	defer m.lock(ctx)()
	sums := make(map[string]decimal.Decimal)
	for _, o := range m.state.orders {
		for _, it := range o.Items {
			sums[it.SupplierID] = sums[it.SupplierID].Add(it.LineItemTotal)
		}
	}
	out := []domain.SupplierRevenue{}
	for supplier, revenue := range sums {
		out = append(out, domain.SupplierRevenue{SupplierID: supplier, Revenue: revenue})
	}
	slices.SortFunc(out, func(a, b domain.SupplierRevenue) int { return cmp.Compare(a.SupplierID, b.SupplierID) })
	return out, nil
}

func (m *MemoryAdapter) withProductNames(o domain.Order) domain.Order {
	for i := range o.Items {
		o.Items[i].ProductName = m.state.products[o.Items[i].ProductID].Name
	}
	return o
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem{}, o.Items...)
	o.StatusHistory = append([]domain.OrderStatusHistory{}, o.StatusHistory...)
	return o
}

func sortNewestFirst(orders []domain.Order) {
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// MemoryCache is an in-process CacheRepository. Keys never expire.
type MemoryCache struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{keys: make(map[string]struct{})}
}

func (c *MemoryCache) SetIdempotency(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[key]; ok {
		return false, nil
	}
	c.keys[key] = struct{}{}
	return true, nil
}

func (c *MemoryCache) ReleaseIdempotency(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

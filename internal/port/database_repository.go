package port

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mini-oms/internal/core/domain"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrStockConflict = errors.New("stock conflict")
)

// Transactor runs fn inside one database transaction. Repository calls made with the ctx passed
// to fn join that transaction; a non-nil error from fn rolls everything back.
type Transactor interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	// CreateUser returns ErrDuplicateKey when username or email is taken
	CreateUser(ctx context.Context, user domain.User) error

	// GetUserByEmail returns nil when no user has the email
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetUserByUsername returns nil when no user has the username
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type ProductRepository interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductListing, error)

	// GetProduct returns nil when the product does not exist
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	// GetProducts returns the products that exist among ids, in no particular order
	GetProducts(ctx context.Context, ids []string) ([]domain.Product, error)

	CreateProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
}

type InventoryRepository interface {
	// GetInventory returns nil when the product has no inventory row
	GetInventory(ctx context.Context, productID string) (*domain.Inventory, error)

	// LockInventories reads inventory rows for productIDs and holds a shared lock until the
	// surrounding transaction ends. Missing rows are absent from the map.
	LockInventories(ctx context.Context, productIDs []string) (map[string]domain.Inventory, error)

	// LockInventory reads one inventory row for update
	LockInventory(ctx context.Context, productID string) (*domain.Inventory, error)

	// SetStock creates or overwrites the stock of a product
	SetStock(ctx context.Context, productID string, quantity decimal.Decimal) error

	// DeductStock subtracts quantity only if enough stock is present, otherwise ErrStockConflict
	DeductStock(ctx context.Context, productID string, quantity decimal.Decimal) error
}

type UnitRepository interface {
	ListUnits(ctx context.Context) ([]domain.UnitOfMeasure, error)
	ListConversions(ctx context.Context) ([]domain.UomConversion, error)

	// GetUnit returns nil when the unit does not exist
	GetUnit(ctx context.Context, id string) (*domain.UnitOfMeasure, error)

	// GetConversion returns nil when there is no row for the ordered pair
	GetConversion(ctx context.Context, fromUomID, toUomID string) (*domain.UomConversion, error)

	// UpsertUnit inserts the unit or, when the symbol exists, returns the stored one
	UpsertUnit(ctx context.Context, unit domain.UnitOfMeasure) (domain.UnitOfMeasure, error)

	// UpsertConversion inserts or updates the factor for the ordered pair
	UpsertConversion(ctx context.Context, conv domain.UomConversion) error
}

type OrderRepository interface {
	// CreateOrder persists the order with its items and status history
	CreateOrder(ctx context.Context, order domain.Order) error

	// LockOrder loads an order with its items for update; nil when absent
	LockOrder(ctx context.Context, id string) (*domain.Order, error)

	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error
	AppendStatusHistory(ctx context.Context, entry domain.OrderStatusHistory) error

	ListBuyerOrders(ctx context.Context, buyerID string) ([]domain.Order, error)

	// ListSupplierOrders returns orders containing supplier items, restricted to those items
	ListSupplierOrders(ctx context.Context, supplierID string) ([]domain.Order, error)

	CountOrdersByStatus(ctx context.Context) ([]domain.StatusCount, error)
	RevenueBySupplier(ctx context.Context) ([]domain.SupplierRevenue, error)
}

// DatabaseRepository is the full set of persistence operations one storage adapter provides.
type DatabaseRepository interface {
	Transactor
	UserRepository
	ProductRepository
	InventoryRepository
	UnitRepository
	OrderRepository
}

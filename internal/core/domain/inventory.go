package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inventory is the stock of one product, expressed in the product's base unit.
type Inventory struct {
	ProductID string          `db:"product_id" json:"productId"`
	Quantity  decimal.Decimal `db:"current_stock_quantity" json:"currentStockQuantity"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

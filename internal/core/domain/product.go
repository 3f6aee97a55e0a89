package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Description  *string         `db:"description" json:"description"`
	PricePerUnit decimal.Decimal `db:"price_per_unit" json:"pricePerUnit"`
	BaseUomID    string          `db:"base_uom_id" json:"baseUomId"`
	SupplierID   string          `db:"supplier_id" json:"supplierId"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// ProductListing is a product joined with its base unit, stock and supplier for catalog browsing.
type ProductListing struct {
	Product
	BaseUomSymbol    string           `db:"base_uom_symbol" json:"baseUomSymbol"`
	Stock            *decimal.Decimal `db:"current_stock_quantity" json:"currentStockQuantity"`
	SupplierUsername string           `db:"supplier_username" json:"supplierUsername"`
}

type ProductFilter struct {
	Query      string
	SupplierID string
	Skip       int
	Take       int
}

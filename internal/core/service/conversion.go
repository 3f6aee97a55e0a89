package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/port"
)

// UnitConverter expresses quantities in a product's base unit using stored direct conversion rows.
// Multi-hop paths and inverse lookups are not attempted.
type UnitConverter struct {
	products port.ProductRepository
	units    port.UnitRepository
}

func NewUnitConverter(products port.ProductRepository, units port.UnitRepository) *UnitConverter {
	return &UnitConverter{products: products, units: units}
}

func (c *UnitConverter) ToBase(ctx context.Context, productID, fromUomID string, quantity decimal.Decimal) (decimal.Decimal, error) {
	product, err := c.products.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return decimal.Zero, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}

	return c.toBase(ctx, *product, fromUomID, quantity)
}

func (c *UnitConverter) toBase(ctx context.Context, product domain.Product, fromUomID string, quantity decimal.Decimal) (decimal.Decimal, error) {
	if fromUomID == product.BaseUomID {
		return quantity, nil
	}

	conv, err := c.units.GetConversion(ctx, fromUomID, product.BaseUomID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get conversion: %w", err)
	}
	if conv == nil {
		return decimal.Zero, fmt.Errorf("%w: %s to %s", ErrNoConversion, fromUomID, product.BaseUomID)
	}

	return quantity.Mul(conv.Factor), nil
}

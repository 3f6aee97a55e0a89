package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/port"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ProductInput struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  *string          `json:"description"`
	PricePerUnit decimal.Decimal  `json:"pricePerUnit"`
	BaseUomID    string           `json:"baseUomId"`
	InitialStock *decimal.Decimal `json:"initialStock"`
}

type StockUpdate struct {
	Quantity decimal.Decimal `json:"quantity"`
	Absolute bool            `json:"absolute"`
	UomID    string          `json:"uomId"`
}

type CatalogService struct {
	db        port.DatabaseRepository
	converter *UnitConverter
	now       func() time.Time
}

func NewCatalogService(db port.DatabaseRepository) *CatalogService {
	return &CatalogService{
		db:        db,
		converter: NewUnitConverter(db, db),
		now:       time.Now,
	}
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductListing, error) {
	if filter.Skip < 0 || filter.Take < 0 {
		return nil, fmt.Errorf("%w: skip and take must not be negative", ErrValidation)
	}
	if filter.Take == 0 {
		filter.Take = defaultPageSize
	}
	filter.Take = min(filter.Take, maxPageSize)
	filter.Query = strings.TrimSpace(filter.Query)

	return s.db.ListProducts(ctx, filter)
}

// UpsertProduct creates a product owned by the principal, or updates an existing one. The bool
// result reports whether a new product was created.
func (s *CatalogService) UpsertProduct(ctx context.Context, principal domain.Principal, in ProductInput) (*domain.Product, bool, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.PricePerUnit = domain.RoundAmount(in.PricePerUnit)
	if in.InitialStock != nil {
		stock := domain.RoundAmount(*in.InitialStock)
		in.InitialStock = &stock
	}

	switch {
	case in.Name == "":
		return nil, false, fmt.Errorf("%w: name is required", ErrValidation)
	case in.BaseUomID == "":
		return nil, false, fmt.Errorf("%w: baseUomId is required", ErrValidation)
	case in.PricePerUnit.IsNegative():
		return nil, false, fmt.Errorf("%w: pricePerUnit must not be negative", ErrValidation)
	case !domain.AmountFits(in.PricePerUnit):
		return nil, false, fmt.Errorf("%w: pricePerUnit exceeds the supported amount range", ErrValidation)
	case in.InitialStock != nil && in.InitialStock.IsNegative():
		return nil, false, ErrNegativeStock
	case in.InitialStock != nil && !domain.AmountFits(*in.InitialStock):
		return nil, false, fmt.Errorf("%w: initialStock exceeds the supported amount range", ErrValidation)
	}

	var (
		product domain.Product
		created bool
	)
	err := s.db.Transact(ctx, func(ctx context.Context) error {
		unit, err := s.db.GetUnit(ctx, in.BaseUomID)
		if err != nil {
			return fmt.Errorf("get unit: %w", err)
		}
		if unit == nil {
			return fmt.Errorf("%w: unit %s", ErrNotFound, in.BaseUomID)
		}

		var existing *domain.Product
		if in.ID != "" {
			if existing, err = s.db.GetProduct(ctx, in.ID); err != nil {
				return fmt.Errorf("get product: %w", err)
			}
		}

		now := s.now().UTC()
		if existing != nil {
			if !canManage(principal, *existing) {
				return fmt.Errorf("%w: product %s belongs to another supplier", ErrForbidden, existing.ID)
			}
			product = *existing
			product.Name = in.Name
			product.Description = in.Description
			product.PricePerUnit = in.PricePerUnit
			product.BaseUomID = in.BaseUomID
			product.UpdatedAt = now
			if err := s.db.UpdateProduct(ctx, product); err != nil {
				return fmt.Errorf("update product: %w", err)
			}
		} else {
			created = true
			product = domain.Product{
				ID:           uuid.NewString(),
				Name:         in.Name,
				Description:  in.Description,
				PricePerUnit: in.PricePerUnit,
				BaseUomID:    in.BaseUomID,
				SupplierID:   principal.UserID,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.db.CreateProduct(ctx, product); err != nil {
				return fmt.Errorf("create product: %w", err)
			}
		}

		if in.InitialStock != nil {
			if err := s.db.SetStock(ctx, product.ID, *in.InitialStock); err != nil {
				return fmt.Errorf("set stock: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &product, created, nil
}

// UpdateStock applies a delta, or an absolute value when in.Absolute is set, to a product's
// stock. A non-base unit is converted into the product's base unit first.
func (s *CatalogService) UpdateStock(ctx context.Context, principal domain.Principal, productID string, in StockUpdate) (*domain.Inventory, error) {
	var inventory domain.Inventory
	err := s.db.Transact(ctx, func(ctx context.Context) error {
		product, err := s.db.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return fmt.Errorf("%w: product %s", ErrNotFound, productID)
		}
		if !canManage(principal, *product) {
			return fmt.Errorf("%w: product %s belongs to another supplier", ErrForbidden, product.ID)
		}

		quantity := in.Quantity
		if in.UomID != "" {
			if quantity, err = s.converter.toBase(ctx, *product, in.UomID, quantity); err != nil {
				return err
			}
		}
		quantity = domain.RoundAmount(quantity)

		current, err := s.db.LockInventory(ctx, productID)
		if err != nil {
			return fmt.Errorf("get inventory: %w", err)
		}

		next := quantity
		switch {
		case current == nil && !in.Absolute:
			return fmt.Errorf("%w: no inventory for product %s", ErrNotFound, productID)
		case !in.Absolute:
			next = current.Quantity.Add(quantity)
		}
		if next.IsNegative() {
			return ErrNegativeStock
		}
		if !domain.AmountFits(next) {
			return fmt.Errorf("%w: stock exceeds the supported amount range", ErrValidation)
		}

		if err := s.db.SetStock(ctx, productID, next); err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		inventory = domain.Inventory{ProductID: productID, Quantity: next, UpdatedAt: s.now().UTC()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &inventory, nil
}

func canManage(principal domain.Principal, product domain.Product) bool {
	return principal.Role == domain.RoleAdmin || product.SupplierID == principal.UserID
}

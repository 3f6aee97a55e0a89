package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/port"
)

var tracer = otel.Tracer("github.com/rl1809/mini-oms/internal/core/service")

type PlaceOrderItem struct {
	ProductID  string          `json:"productId"`
	SupplierID string          `json:"supplierId"`
	Quantity   decimal.Decimal `json:"quantity"`
	UomID      string          `json:"uomId"`
}

type OrderService struct {
	db        port.DatabaseRepository
	converter *UnitConverter
	notifier  port.Notifier
	cache     port.CacheRepository
	now       func() time.Time
}

// NewOrderService wires the order workflow. cache may be nil, in which case idempotency keys
// are ignored; a nil notifier drops status events.
func NewOrderService(db port.DatabaseRepository, notifier port.Notifier, cache port.CacheRepository) *OrderService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &OrderService{
		db:        db,
		converter: NewUnitConverter(db, db),
		notifier:  notifier,
		cache:     cache,
		now:       time.Now,
	}
}

// PlaceOrder prices and stock-checks every line in the product's base unit and stores a PENDING
// order. Stock is only verified here; it is deducted when the order is approved.
func (s *OrderService) PlaceOrder(ctx context.Context, buyerID string, items []PlaceOrderItem, requestID string) (_ *domain.Order, err error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	for i, it := range items {
		if it.ProductID == "" || it.SupplierID == "" || it.UomID == "" {
			return nil, fmt.Errorf("%w: item %d requires productId, supplierId and uomId", ErrValidation, i)
		}
		if !it.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i)
		}
	}

	if requestID != "" && s.cache != nil {
		idempotencyKey := fmt.Sprintf("order:%s:%s", buyerID, requestID)

		var ok bool
		ok, err = s.cache.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
		defer func() {
			if err != nil {
				_ = s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), idempotencyKey)
			}
		}()
	}

	ctx, span := tracer.Start(ctx, "OrderService.PlaceOrder", trace.WithAttributes(
		attribute.String("buyer.id", buyerID),
		attribute.Int("order.lines", len(items)),
	))
	defer span.End()

	var order domain.Order
	err = s.db.Transact(ctx, func(ctx context.Context) error {
		productIDs := uniqueProductIDs(items)

		products, err := s.db.GetProducts(ctx, productIDs)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		byID := make(map[string]domain.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		now := s.now().UTC()
		order = domain.Order{
			ID:        uuid.NewString(),
			BuyerID:   buyerID,
			Status:    domain.OrderStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}

		for i, it := range items {
			product, ok := byID[it.ProductID]
			if !ok {
				return fmt.Errorf("%w: product %s", ErrNotFound, it.ProductID)
			}
			if product.SupplierID != it.SupplierID {
				return fmt.Errorf("%w: product %s is not supplied by %s", ErrSupplierMismatch, product.ID, it.SupplierID)
			}

			baseQty, err := s.converter.toBase(ctx, product, it.UomID, it.Quantity)
			if err != nil {
				return err
			}
			baseQty = domain.RoundAmount(baseQty)
			if !baseQty.IsPositive() {
				return fmt.Errorf("%w: item %d quantity is below the smallest storable amount", ErrValidation, i)
			}
			lineTotal := domain.RoundAmount(product.PricePerUnit.Mul(baseQty))
			if !domain.AmountFits(baseQty) || !domain.AmountFits(lineTotal) {
				return fmt.Errorf("%w: item %d exceeds the supported amount range", ErrValidation, i)
			}

			order.Items = append(order.Items, domain.OrderItem{
				ID:            uuid.NewString(),
				OrderID:       order.ID,
				ProductID:     product.ID,
				ProductName:   product.Name,
				SupplierID:    product.SupplierID,
				Quantity:      baseQty,
				UomID:         product.BaseUomID,
				PriceAtOrder:  product.PricePerUnit,
				LineItemTotal: lineTotal,
			})
		}

		// Each line is checked on its own; over-commitment is caught by the deduction on approval.
		stock, err := s.db.LockInventories(ctx, productIDs)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}
		for _, item := range order.Items {
			available := decimal.Zero
			if inv, ok := stock[item.ProductID]; ok {
				available = inv.Quantity
			}
			if available.LessThan(item.Quantity) {
				return fmt.Errorf("%w for product: %s", ErrInsufficientStock, item.ProductID)
			}
		}

		order.TotalAmount = order.SumLineTotals()
		if !domain.AmountFits(order.TotalAmount) {
			return fmt.Errorf("%w: order total exceeds the supported amount range", ErrValidation)
		}
		order.StatusHistory = []domain.OrderStatusHistory{{
			ID:              uuid.NewString(),
			OrderID:         order.ID,
			NewStatus:       domain.OrderStatusPending,
			ChangedByUserID: buyerID,
			ChangedAt:       now,
		}}

		return s.db.CreateOrder(ctx, order)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	return &order, nil
}

// ChangeStatus moves an order to newStatus. Only the PENDING to APPROVED transition touches
// stock; any other pair is recorded without side effects.
func (s *OrderService) ChangeStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus, actorID string) (*domain.Order, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, newStatus)
	}

	ctx, span := tracer.Start(ctx, "OrderService.ChangeStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(newStatus)),
	))
	defer span.End()

	var (
		order     *domain.Order
		oldStatus domain.OrderStatus
	)
	err := s.db.Transact(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.db.LockOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		if order == nil {
			return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		oldStatus = order.Status

		if oldStatus == domain.OrderStatusPending && newStatus == domain.OrderStatusApproved {
			for _, item := range order.Items {
				err := s.db.DeductStock(ctx, item.ProductID, item.Quantity)
				if errors.Is(err, port.ErrStockConflict) {
					return fmt.Errorf("%w during approval for product: %s", ErrInsufficientStock, item.ProductID)
				}
				if err != nil {
					return fmt.Errorf("deduct stock: %w", err)
				}
			}
		}

		now := s.now().UTC()
		if err := s.db.UpdateOrderStatus(ctx, order.ID, newStatus); err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		old := oldStatus
		entry := domain.OrderStatusHistory{
			ID:              uuid.NewString(),
			OrderID:         order.ID,
			OldStatus:       &old,
			NewStatus:       newStatus,
			ChangedByUserID: actorID,
			ChangedAt:       now,
		}
		if err := s.db.AppendStatusHistory(ctx, entry); err != nil {
			return fmt.Errorf("append status history: %w", err)
		}

		order.Status = newStatus
		order.UpdatedAt = now
		order.StatusHistory = append(order.StatusHistory, entry)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.notifier.NotifyStatusChanged(ctx, domain.StatusChangedEvent{
		OrderID:   order.ID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	})

	return order, nil
}

// ListOrdersFor returns the orders visible to the principal. Admins must name the supplier
// whose orders they want to see.
func (s *OrderService) ListOrdersFor(ctx context.Context, principal domain.Principal, supplierID string) ([]domain.Order, error) {
	switch principal.Role {
	case domain.RoleBuyer:
		return s.db.ListBuyerOrders(ctx, principal.UserID)
	case domain.RoleSupplier:
		return s.db.ListSupplierOrders(ctx, principal.UserID)
	case domain.RoleAdmin:
		if supplierID == "" {
			return nil, fmt.Errorf("%w: supplier_id is required for admin", ErrValidation)
		}
		return s.db.ListSupplierOrders(ctx, supplierID)
	}
	return nil, ErrForbidden
}

func (s *OrderService) Analytics(ctx context.Context) (*domain.Analytics, error) {
	counts, err := s.db.CountOrdersByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	revenue, err := s.db.RevenueBySupplier(ctx)
	if err != nil {
		return nil, fmt.Errorf("revenue by supplier: %w", err)
	}

	return &domain.Analytics{Counts: counts, RevenueBySupplier: revenue}, nil
}

func uniqueProductIDs(items []PlaceOrderItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

type nopNotifier struct{}

func (nopNotifier) NotifyStatusChanged(context.Context, domain.StatusChangedEvent) {}

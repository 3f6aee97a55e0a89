package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusApproved  OrderStatus = "APPROVED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatuses lists every status an order can hold.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusApproved,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type Order struct {
	ID            string               `db:"id" json:"id"`
	BuyerID       string               `db:"buyer_id" json:"buyerId"`
	TotalAmount   decimal.Decimal      `db:"total_amount" json:"totalAmount"`
	Status        OrderStatus          `db:"current_status" json:"currentStatus"`
	CreatedAt     time.Time            `db:"created_at" json:"orderDate"`
	UpdatedAt     time.Time            `db:"updated_at" json:"updatedAt"`
	Items         []OrderItem          `db:"-" json:"items"`
	StatusHistory []OrderStatusHistory `db:"-" json:"statusHistory"`
}

// OrderItem snapshots price and base-unit quantity at the time the order was placed.
type OrderItem struct {
	ID            string          `db:"id" json:"id"`
	OrderID       string          `db:"order_id" json:"orderId"`
	ProductID     string          `db:"product_id" json:"productId"`
	ProductName   string          `db:"product_name" json:"productName,omitempty"`
	SupplierID    string          `db:"supplier_id" json:"supplierId"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	UomID         string          `db:"uom_id" json:"uomId"`
	PriceAtOrder  decimal.Decimal `db:"price_at_order" json:"priceAtOrder"`
	LineItemTotal decimal.Decimal `db:"line_item_total" json:"lineItemTotal"`
}

// OrderStatusHistory is one append-only audit row. OldStatus is nil for the initial entry.
type OrderStatusHistory struct {
	ID              string       `db:"id" json:"id"`
	OrderID         string       `db:"order_id" json:"orderId"`
	OldStatus       *OrderStatus `db:"old_status" json:"oldStatus"`
	NewStatus       OrderStatus  `db:"new_status" json:"newStatus"`
	ChangedByUserID string       `db:"changed_by_user_id" json:"changedByUserId"`
	ChangedAt       time.Time    `db:"change_timestamp" json:"changeTimestamp"`
}

// SumLineTotals returns the sum of all line totals of the order.
func (o Order) SumLineTotals() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineItemTotal)
	}
	return total
}

package domain

import "github.com/shopspring/decimal"

type StatusCount struct {
	Status OrderStatus `db:"current_status" json:"currentStatus"`
	Count  int64       `db:"count" json:"count"`
}

type SupplierRevenue struct {
	SupplierID string          `db:"supplier_id" json:"supplierId"`
	Revenue    decimal.Decimal `db:"revenue" json:"revenue"`
}

type Analytics struct {
	Counts            []StatusCount     `json:"counts"`
	RevenueBySupplier []SupplierRevenue `json:"revenueBySupplier"`
}

package domain

import "github.com/shopspring/decimal"

type UnitOfMeasure struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Symbol string `db:"symbol" json:"symbol"`
	IsBase bool   `db:"is_base" json:"isBase"`
}

// UomConversion converts a quantity in FromUomID into ToUomID by multiplying with Factor.
type UomConversion struct {
	ID        string          `db:"id" json:"id"`
	FromUomID string          `db:"from_uom_id" json:"fromUomId"`
	ToUomID   string          `db:"to_uom_id" json:"toUomId"`
	Factor    decimal.Decimal `db:"conversion_factor" json:"conversionFactor"`
}

// UnitWithConversions is a unit together with the conversion edges touching it.
type UnitWithConversions struct {
	UnitOfMeasure
	ConversionsFrom []UomConversion `json:"uomConversionsFrom"`
	ConversionsTo   []UomConversion `json:"uomConversionsTo"`
}

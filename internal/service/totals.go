package service

import (
	"github.com/kiwari-pos/tableservice/internal/database"
	"github.com/shopspring/decimal"
)

// DefaultCoverCharge is the per-diner fee added to table orders.
var DefaultCoverCharge = decimal.RequireFromString("0.20")

// Totals is the money side of an order.
type Totals struct {
	Subtotal    decimal.Decimal
	CoverCharge decimal.Decimal
	Total       decimal.Decimal
}

// ItemTotal is (unit + supplements) x quantity.
func ItemTotal(unitPrice, supplementsTotal decimal.Decimal, quantity int32) decimal.Decimal {
	return unitPrice.Add(supplementsTotal).Mul(decimal.NewFromInt32(quantity))
}

// ComputeTotals derives order totals from the persisted items. An order with
// no items costs nothing, cover charge included. Takeaway orders carry no
// cover charge.
func ComputeTotals(items []database.OrderItem, covers int32, takeaway bool, perCover decimal.Decimal) Totals {
	if len(items) == 0 {
		return Totals{Subtotal: decimal.Zero, CoverCharge: decimal.Zero, Total: decimal.Zero}
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(ItemTotal(
			database.NumericToDecimal(it.UnitPrice),
			database.NumericToDecimal(it.SupplementsTotal),
			it.Quantity,
		))
	}
	subtotal = subtotal.Round(2)

	cover := decimal.Zero
	if !takeaway {
		cover = perCover.Mul(decimal.NewFromInt32(covers)).Round(2)
	}
	return Totals{
		Subtotal:    subtotal,
		CoverCharge: cover,
		Total:       subtotal.Add(cover),
	}
}

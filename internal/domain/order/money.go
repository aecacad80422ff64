package order

import "github.com/shopspring/decimal"

// PriceToCents converts a price in major currency units to minor units.
//
// The conversion is exact: the decimal is shifted by two places and rounded
// half away from zero, so 19.995 becomes 2000 and -0.005 becomes -1. Every
// Store implementation converts line prices through this function.
func PriceToCents(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

// LineItems converts caller lines to stored line items, keeping input order.
func LineItems(lines []Line) []LineItem {
	items := make([]LineItem, len(lines))
	for i, l := range lines {
		items[i] = LineItem{
			SKU:            l.SKU,
			Title:          l.Title,
			UnitPriceCents: PriceToCents(l.Price),
			Qty:            l.Qty,
		}
	}
	return items
}

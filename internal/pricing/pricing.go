package pricing

import (
	"math"

	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/domain"
)

// Line is a quantity/price pair, the only inputs the calculator needs.
type Line struct {
	Quantity   int
	PriceCents int64
}

type Totals struct {
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	TotalCents    int64
}

// Compute derives subtotal, discount, tax and total from a line list and a
// discount policy. DiscountValue is a percent for "percentage" and an amount
// in cents for "fixed"; anything else yields a zero discount. The discount is
// clamped to [0, subtotal]. Rounding happens once per derived amount, never
// mid-sum. Callers reject negative inputs before invoking.
func Compute(lines []Line, discountType string, discountValue float64, taxPercent float64) Totals {
	subtotal := int64(0)
	for _, line := range lines {
		subtotal += int64(line.Quantity) * line.PriceCents
	}

	discount := int64(0)
	switch discountType {
	case domain.DiscountPercentage:
		discount = int64(math.Round(float64(subtotal) * discountValue / 100))
	case domain.DiscountFixed:
		discount = int64(math.Round(discountValue))
	}
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}

	taxable := subtotal - discount
	tax := int64(math.Round(float64(taxable) * taxPercent / 100))

	return Totals{
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TaxCents:      tax,
		TotalCents:    taxable + tax,
	}
}

// LinesFromSaleItems adapts normalized sale rows for recomputation.
func LinesFromSaleItems(items []domain.SaleItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{Quantity: item.Quantity, PriceCents: item.PriceCents})
	}
	return lines
}

// LinesFromOrderItems adapts order rows for totals on the online path.
func LinesFromOrderItems(items []domain.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{Quantity: item.Quantity, PriceCents: item.PriceCents})
	}
	return lines
}

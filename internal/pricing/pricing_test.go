package pricing

import (
	"testing"

	"github.com/arpitthekumar/clothinv-e-com-sub000/internal/domain"
)

func TestComputeFixedDiscountWithTax(t *testing.T) {
	// 2 x 100.00 with fixed 20.00 discount and 10% tax.
	totals := Compute([]Line{{Quantity: 2, PriceCents: 10000}}, domain.DiscountFixed, 2000, 10)

	if totals.SubtotalCents != 20000 {
		t.Fatalf("expected subtotal 20000, got %d", totals.SubtotalCents)
	}
	if totals.DiscountCents != 2000 {
		t.Fatalf("expected discount 2000, got %d", totals.DiscountCents)
	}
	if totals.TaxCents != 1800 {
		t.Fatalf("expected tax 1800, got %d", totals.TaxCents)
	}
	if totals.TotalCents != 19800 {
		t.Fatalf("expected total 19800, got %d", totals.TotalCents)
	}
}

func TestComputePercentageDiscount(t *testing.T) {
	totals := Compute([]Line{{Quantity: 3, PriceCents: 5000}}, domain.DiscountPercentage, 10, 0)

	if totals.SubtotalCents != 15000 {
		t.Fatalf("expected subtotal 15000, got %d", totals.SubtotalCents)
	}
	if totals.DiscountCents != 1500 {
		t.Fatalf("expected discount 1500, got %d", totals.DiscountCents)
	}
	if totals.TotalCents != 13500 {
		t.Fatalf("expected total 13500, got %d", totals.TotalCents)
	}
}

func TestComputeNoDiscountType(t *testing.T) {
	totals := Compute([]Line{{Quantity: 1, PriceCents: 9900}}, domain.DiscountNone, 5000, 0)
	if totals.DiscountCents != 0 {
		t.Fatalf("expected zero discount without a type, got %d", totals.DiscountCents)
	}
	if totals.TotalCents != 9900 {
		t.Fatalf("expected total 9900, got %d", totals.TotalCents)
	}
}

func TestComputeClampsFixedDiscountToSubtotal(t *testing.T) {
	totals := Compute([]Line{{Quantity: 1, PriceCents: 1000}}, domain.DiscountFixed, 5000, 10)
	if totals.DiscountCents != 1000 {
		t.Fatalf("expected discount clamped to subtotal 1000, got %d", totals.DiscountCents)
	}
	if totals.TotalCents != 0 {
		t.Fatalf("expected total 0 after full clamp, got %d", totals.TotalCents)
	}
}

func TestComputeEmptyLines(t *testing.T) {
	totals := Compute(nil, domain.DiscountFixed, 2000, 10)
	if totals.SubtotalCents != 0 || totals.DiscountCents != 0 || totals.TaxCents != 0 || totals.TotalCents != 0 {
		t.Fatalf("expected all-zero totals for empty lines, got %+v", totals)
	}
}

// The core identity must hold for every discount type and tax rate:
// total == (subtotal - discount) + tax, with discount in [0, subtotal].
func TestComputeTotalsInvariant(t *testing.T) {
	lines := []Line{
		{Quantity: 2, PriceCents: 10000},
		{Quantity: 1, PriceCents: 333},
		{Quantity: 7, PriceCents: 1999},
	}
	discountTypes := []string{domain.DiscountNone, domain.DiscountPercentage, domain.DiscountFixed}
	discountValues := []float64{0, 5, 20, 99.9, 100, 2000, 1000000}
	taxPercents := []float64{0, 5, 10, 11.5, 25}

	for _, dt := range discountTypes {
		for _, dv := range discountValues {
			for _, tp := range taxPercents {
				totals := Compute(lines, dt, dv, tp)
				if totals.DiscountCents < 0 || totals.DiscountCents > totals.SubtotalCents {
					t.Fatalf("discount %d out of [0, %d] for type=%q value=%v", totals.DiscountCents, totals.SubtotalCents, dt, dv)
				}
				want := (totals.SubtotalCents - totals.DiscountCents) + totals.TaxCents
				if totals.TotalCents != want {
					t.Fatalf("invariant broken for type=%q value=%v tax=%v: total %d != %d", dt, dv, tp, totals.TotalCents, want)
				}
			}
		}
	}
}

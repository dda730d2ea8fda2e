package booking

import "github.com/shopspring/decimal"

// =============================================================================
// PRICING - Full days and half days per person
// =============================================================================

// PriceBreakdown is the monetary breakdown of a stay, in whole currency units.
type PriceBreakdown struct {
	Nights        int
	FullDays      int
	HalfDays      int
	AdultSubtotal decimal.Decimal
	ChildSubtotal decimal.Decimal
	Total         decimal.Decimal
}

var half = decimal.NewFromFloat(0.5)

// Price computes the breakdown for c.
//
// Every night is a full day at the per-person rate. The arrival block never
// adds a charge. A night departure adds one half day at 50% of the rate; a
// morning departure adds nothing. Subtotals are rounded half up.
func Price(c Candidate, params Parameters) PriceBreakdown {
	nights := c.Nights()
	if nights < 0 {
		nights = 0
	}

	halfDays := 0
	if c.DepartureBlock == BlockNight {
		halfDays = 1
	}

	adults := subtotal(c.Adults, params.AdultPricePerDay, nights, halfDays)
	children := subtotal(c.Children, params.ChildPricePerDay, nights, halfDays)

	return PriceBreakdown{
		Nights:        nights,
		FullDays:      nights,
		HalfDays:      halfDays,
		AdultSubtotal: adults,
		ChildSubtotal: children,
		Total:         adults.Add(children),
	}
}

func subtotal(people int, rate decimal.Decimal, fullDays, halfDays int) decimal.Decimal {
	if people <= 0 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(people))
	full := n.Mul(rate).Mul(decimal.NewFromInt(int64(fullDays)))
	partial := n.Mul(rate.Mul(half)).Mul(decimal.NewFromInt(int64(halfDays)))
	return full.Add(partial).Round(0)
}

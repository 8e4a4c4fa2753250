package pricing

import "errors"

// ErrInvalidQuantity is returned when a line is priced with a quantity of zero or less.
var ErrInvalidQuantity = errors.New("pricing: quantity must be positive")

// Line holds the computed selling figures for one cart line.
type Line struct {
	Qty    int32
	Rate   Money
	Amount Money
}

// ClampBps limits a basis-point value to the meaningful 0..10000 range.
func ClampBps(bps int32) int32 {
	if bps < 0 {
		return 0
	}
	if bps > 10000 {
		return 10000
	}
	return bps
}

// PriceLine derives the per-unit selling rate and extended amount for a line.
// The rate is the list price less the discount, rounded half up to the paisa;
// the amount is rate times quantity and needs no further rounding.
func PriceLine(listPrice Money, discountBps int32, qty int32) (Line, error) {
	if qty <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	if listPrice < 0 {
		listPrice = 0
	}
	disc := ClampBps(discountBps)
	rate := RoundHalfUp(listPrice*Money(10000-disc), 10000)
	return Line{
		Qty:    qty,
		Rate:   rate,
		Amount: rate * Money(qty),
	}, nil
}

package pricing

// Money represents a monetary value stored in paise (minor units).
type Money = int64

const paisePerRupee Money = 100

// RoundHalfUp divides n by d rounding half away from zero. Both arguments
// must be non-negative; monetary inputs in this engine never go below zero.
func RoundHalfUp(n, d Money) Money {
	if d <= 0 {
		return 0
	}
	return (n + d/2) / d
}

// RoundToRupee rounds a paise amount to the nearest whole rupee, half up.
// 28350 (283.50) rounds to 28400 (284).
func RoundToRupee(m Money) Money {
	return RoundHalfUp(m, paisePerRupee) * paisePerRupee
}

// Rupees splits a paise amount into whole rupees and the paise remainder.
func Rupees(m Money) (rupees int64, paise int64) {
	return m / paisePerRupee, m % paisePerRupee
}

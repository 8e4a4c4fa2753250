// Package tax computes invoice totals and splits the aggregate GST by
// jurisdiction. One configurable rate applies to the whole taxable amount;
// per-item tax codes are carried on lines for downstream consumers but do
// not change the arithmetic.
package tax

import (
	"strings"

	"github.com/noah-isme/backend-billing/internal/pricing"
)

// Line is the priced input to totals computation.
type Line struct {
	ListPrice pricing.Money
	Qty       int32
	Amount    pricing.Money
}

// Totals aggregates the monetary components of one invoice. All values are
// paise. GrandTotal is rounded to the whole rupee; RoundOff is the signed
// adjustment from the exact total to the rounded one.
type Totals struct {
	Subtotal       pricing.Money
	DiscountAmount pricing.Money
	TaxableAmount  pricing.Money
	TotalTax       pricing.Money
	CGST           pricing.Money
	SGST           pricing.Money
	IGST           pricing.Money
	RoundOff       pricing.Money
	GrandTotal     pricing.Money
}

// Compute derives totals for the given lines. An empty slice yields zero
// totals, not an error. Rounding is half up throughout: the tax amount to
// the paisa, the grand total to the rupee.
func Compute(lines []Line, taxed bool, rateBps int32) Totals {
	var subtotal, listValue pricing.Money
	for _, l := range lines {
		if l.Qty <= 0 {
			continue
		}
		subtotal += l.Amount
		listValue += l.ListPrice * pricing.Money(l.Qty)
	}

	t := Totals{
		Subtotal:       subtotal,
		DiscountAmount: listValue - subtotal,
		TaxableAmount:  subtotal,
	}
	if taxed {
		t.TotalTax = pricing.RoundHalfUp(t.TaxableAmount*pricing.Money(pricing.ClampBps(rateBps)), 10000)
	}
	exact := t.Subtotal + t.TotalTax
	t.GrandTotal = pricing.RoundToRupee(exact)
	t.RoundOff = t.GrandTotal - exact
	return t
}

// Split attributes the total tax by jurisdiction. A same-state buyer pays the
// two local components; any other registered buyer pays the single remote
// component. Without a buyer tax id the tax cannot be attributed and all
// components are zero; the commit path rejects that case before it gets here.
func Split(totalTax pricing.Money, sellerStateCode, buyerTaxID string) (cgst, sgst, igst pricing.Money) {
	buyerTaxID = strings.TrimSpace(buyerTaxID)
	if totalTax <= 0 || len(buyerTaxID) < 2 {
		return 0, 0, 0
	}
	if strings.EqualFold(buyerTaxID[:2], strings.TrimSpace(sellerStateCode)) {
		// an odd paisa lands on the state half so the two always sum to the total
		cgst = totalTax / 2
		sgst = totalTax - cgst
		return cgst, sgst, 0
	}
	return 0, 0, totalTax
}

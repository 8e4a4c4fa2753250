package tax

import "testing"

func tonicLines() []Line {
	// 300.00 list at 55% off, quantity 2: rate 135.00, amount 270.00.
	return []Line{{ListPrice: 30_000, Qty: 2, Amount: 27_000}}
}

func TestComputeUntaxed(t *testing.T) {
	got := Compute(tonicLines(), false, 500)
	if got.Subtotal != 27_000 {
		t.Fatalf("subtotal = %d, want 27000", got.Subtotal)
	}
	if got.DiscountAmount != 33_000 {
		t.Fatalf("discount = %d, want 33000", got.DiscountAmount)
	}
	if got.TotalTax != 0 || got.CGST != 0 || got.SGST != 0 || got.IGST != 0 {
		t.Fatalf("untaxed totals must carry no tax: %+v", got)
	}
	if got.GrandTotal != 27_000 || got.RoundOff != 0 {
		t.Fatalf("grand total = %d round off = %d, want 27000 and 0", got.GrandTotal, got.RoundOff)
	}
}

func TestComputeTaxedRoundsGrandTotalUp(t *testing.T) {
	got := Compute(tonicLines(), true, 500)
	if got.TotalTax != 1_350 {
		t.Fatalf("tax = %d, want 1350", got.TotalTax)
	}
	if got.GrandTotal != 28_400 {
		t.Fatalf("grand total = %d, want 28400", got.GrandTotal)
	}
	if got.RoundOff != 50 {
		t.Fatalf("round off = %d, want 50", got.RoundOff)
	}
	if got.GrandTotal-got.RoundOff != got.Subtotal+got.TotalTax {
		t.Fatalf("round off does not reconcile: %+v", got)
	}
}

func TestComputeEmptyCartYieldsZeroes(t *testing.T) {
	got := Compute(nil, true, 500)
	if got != (Totals{}) {
		t.Fatalf("empty cart should produce zero totals, got %+v", got)
	}
}

func TestComputeSkipsNonPositiveQuantities(t *testing.T) {
	lines := append(tonicLines(), Line{ListPrice: 10_000, Qty: 0, Amount: 99_999})
	got := Compute(lines, false, 0)
	if got.Subtotal != 27_000 {
		t.Fatalf("subtotal = %d, want 27000", got.Subtotal)
	}
}

func TestSplitSameState(t *testing.T) {
	cgst, sgst, igst := Split(1_350, "19", "19ABCDE1234F1Z5")
	if cgst != 675 || sgst != 675 || igst != 0 {
		t.Fatalf("same-state split = %d/%d/%d, want 675/675/0", cgst, sgst, igst)
	}
}

func TestSplitOddPaisaStaysReconciled(t *testing.T) {
	cgst, sgst, igst := Split(1_351, "19", "19ABCDE1234F1Z5")
	if cgst+sgst+igst != 1_351 {
		t.Fatalf("components must sum to the total: %d+%d+%d", cgst, sgst, igst)
	}
	if sgst-cgst != 1 {
		t.Fatalf("odd paisa should land on the state half: cgst=%d sgst=%d", cgst, sgst)
	}
}

func TestSplitOtherState(t *testing.T) {
	cgst, sgst, igst := Split(1_350, "19", "07ABCDE1234F1Z5")
	if cgst != 0 || sgst != 0 || igst != 1_350 {
		t.Fatalf("inter-state split = %d/%d/%d, want 0/0/1350", cgst, sgst, igst)
	}
}

func TestSplitWithoutBuyerTaxID(t *testing.T) {
	cgst, sgst, igst := Split(1_350, "19", "")
	if cgst != 0 || sgst != 0 || igst != 0 {
		t.Fatalf("unattributable tax must zero all components, got %d/%d/%d", cgst, sgst, igst)
	}
}

package billing

import (
	"errors"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-billing/internal/pricing"
)

// ErrLineIndex is returned when a cart edit references a line that is not there.
var ErrLineIndex = errors.New("billing: line index out of range")

// CartLine is one priced sale line. Product fields are snapshotted at the
// moment the line is added so a later catalog edit cannot change a bill in
// progress.
type CartLine struct {
	ProductID   pgtype.UUID
	Name        string
	HSNCode     pgtype.Text
	BatchNo     pgtype.Text
	ExpiryDate  pgtype.Date
	ListPrice   pricing.Money
	DiscountBps int32
	Quantity    int32
	Rate        pricing.Money
	Amount      pricing.Money
}

// Cart is an uncommitted bill under construction. It lives in memory on the
// caller's side; nothing is persisted until Commit.
type Cart struct {
	Lines []CartLine
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// RemoveLine deletes the line at the given zero-based position.
func (c *Cart) RemoveLine(index int) error {
	if c == nil || index < 0 || index >= len(c.Lines) {
		return ErrLineIndex
	}
	c.Lines = append(c.Lines[:index], c.Lines[index+1:]...)
	return nil
}

// Subtotal sums the extended amounts of all lines.
func (c *Cart) Subtotal() pricing.Money {
	if c == nil {
		return 0
	}
	var total pricing.Money
	for _, l := range c.Lines {
		total += l.Amount
	}
	return total
}

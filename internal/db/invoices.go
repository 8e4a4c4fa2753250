package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const invoiceColumns = `id, invoice_no, customer_id, buyer_name, buyer_phone, buyer_address,
	buyer_gstin, salesperson_id, taxed, payment_mode, subtotal, discount_total, taxable_amount,
	cgst, sgst, igst, round_off, grand_total, created_by, created_at`

func scanInvoice(row scanner) (Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.InvoiceNo, &inv.CustomerID, &inv.BuyerName, &inv.BuyerPhone, &inv.BuyerAddress,
		&inv.BuyerGSTIN, &inv.SalespersonID, &inv.Taxed, &inv.PaymentMode, &inv.Subtotal,
		&inv.DiscountTotal, &inv.TaxableAmount, &inv.CGST, &inv.SGST, &inv.IGST,
		&inv.RoundOff, &inv.GrandTotal, &inv.CreatedBy, &inv.CreatedAt,
	)
	return inv, err
}

// NextInvoiceSequenceParams identifies one numbering scope.
type NextInvoiceSequenceParams struct {
	Prefix     string
	FiscalYear string
}

// NextInvoiceSequence atomically allocates the next number in the scope.
// Concurrent callers serialize on the row; the first call of a fiscal year
// creates it. The stored counter is the last number handed out.
func (q *Queries) NextInvoiceSequence(ctx context.Context, arg NextInvoiceSequenceParams) (int64, error) {
	var counter int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO invoice_sequences (prefix, fiscal_year, counter)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, fiscal_year)
		DO UPDATE SET counter = invoice_sequences.counter + 1, updated_at = now()
		RETURNING counter`,
		arg.Prefix, arg.FiscalYear,
	).Scan(&counter)
	return counter, err
}

// InvoiceNumberExists reports whether a committed invoice already carries the number.
func (q *Queries) InvoiceNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_no = $1)`, number).Scan(&exists)
	return exists, err
}

// CreateInvoiceParams carries the full header of a new invoice.
type CreateInvoiceParams struct {
	InvoiceNo     string
	CustomerID    pgtype.UUID
	BuyerName     string
	BuyerPhone    pgtype.Text
	BuyerAddress  pgtype.Text
	BuyerGSTIN    pgtype.Text
	SalespersonID pgtype.UUID
	Taxed         bool
	PaymentMode   string
	Subtotal      int64
	DiscountTotal int64
	TaxableAmount int64
	CGST          int64
	SGST          int64
	IGST          int64
	RoundOff      int64
	GrandTotal    int64
	CreatedBy     string
}

// CreateInvoice inserts the immutable invoice header.
func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO invoices (invoice_no, customer_id, buyer_name, buyer_phone, buyer_address,
			buyer_gstin, salesperson_id, taxed, payment_mode, subtotal, discount_total,
			taxable_amount, cgst, sgst, igst, round_off, grand_total, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING `+invoiceColumns,
		arg.InvoiceNo, arg.CustomerID, arg.BuyerName, arg.BuyerPhone, arg.BuyerAddress,
		arg.BuyerGSTIN, arg.SalespersonID, arg.Taxed, arg.PaymentMode, arg.Subtotal,
		arg.DiscountTotal, arg.TaxableAmount, arg.CGST, arg.SGST, arg.IGST,
		arg.RoundOff, arg.GrandTotal, arg.CreatedBy,
	)
	return scanInvoice(row)
}

// CreateInvoiceLineParams carries one snapshotted sale line.
type CreateInvoiceLineParams struct {
	InvoiceID  pgtype.UUID
	ProductID  pgtype.UUID
	Name       string
	HSNCode    pgtype.Text
	BatchNo    pgtype.Text
	ExpiryDate pgtype.Date
	Quantity   int32
	Rate       int64
	Amount     int64
}

// CreateInvoiceLine inserts one invoice line.
func (q *Queries) CreateInvoiceLine(ctx context.Context, arg CreateInvoiceLineParams) (InvoiceLine, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO invoice_lines (invoice_id, product_id, name, hsn_code, batch_no,
			expiry_date, quantity, rate, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, invoice_id, product_id, name, hsn_code, batch_no, expiry_date, quantity, rate, amount`,
		arg.InvoiceID, arg.ProductID, arg.Name, arg.HSNCode, arg.BatchNo,
		arg.ExpiryDate, arg.Quantity, arg.Rate, arg.Amount,
	)
	var line InvoiceLine
	err := row.Scan(&line.ID, &line.InvoiceID, &line.ProductID, &line.Name, &line.HSNCode,
		&line.BatchNo, &line.ExpiryDate, &line.Quantity, &line.Rate, &line.Amount)
	return line, err
}

// GetInvoice fetches one invoice header by id.
func (q *Queries) GetInvoice(ctx context.Context, id pgtype.UUID) (Invoice, error) {
	row := q.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

// GetInvoiceByNumber fetches one invoice header by its unique number.
func (q *Queries) GetInvoiceByNumber(ctx context.Context, number string) (Invoice, error) {
	row := q.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_no = $1`, number)
	return scanInvoice(row)
}

// ListInvoiceLines returns the lines of one invoice in insertion order.
func (q *Queries) ListInvoiceLines(ctx context.Context, invoiceID pgtype.UUID) ([]InvoiceLine, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, invoice_id, product_id, name, hsn_code, batch_no, expiry_date, quantity, rate, amount
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ProductID, &line.Name, &line.HSNCode,
			&line.BatchNo, &line.ExpiryDate, &line.Quantity, &line.Rate, &line.Amount); err != nil {
			return nil, err
		}
		items = append(items, line)
	}
	return items, rows.Err()
}

// ListInvoicesParams pages through committed invoices.
type ListInvoicesParams struct {
	Limit  int32
	Offset int32
}

// ListInvoices returns invoices, newest first.
func (q *Queries) ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]Invoice, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC, invoice_no DESC LIMIT $1 OFFSET $2`,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, inv)
	}
	return items, rows.Err()
}

// CountInvoices returns the number of committed invoices.
func (q *Queries) CountInvoices(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM invoices`).Scan(&count)
	return count, err
}

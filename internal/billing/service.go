// Package billing turns an in-memory cart into a committed, numbered,
// immutable invoice. The commit is one database transaction: customer
// upsert, number allocation, invoice and line inserts, and stock ledger
// updates all land together or not at all.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/db"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/obs"
	"github.com/noah-isme/backend-billing/internal/pricing"
	"github.com/noah-isme/backend-billing/internal/sequence"
	"github.com/noah-isme/backend-billing/internal/tax"
)

// Queries is the slice of the query layer the billing service uses.
// *db.Queries satisfies it; tests substitute fakes.
type Queries interface {
	GetProduct(ctx context.Context, id pgtype.UUID) (db.Product, error)
	GetProductForUpdate(ctx context.Context, id pgtype.UUID) (db.Product, error)
	DecrementProductStock(ctx context.Context, arg db.DecrementProductStockParams) (db.Product, error)
	UpsertCustomerByPhone(ctx context.Context, arg db.UpsertCustomerParams) (db.Customer, error)
	GetSalesperson(ctx context.Context, id pgtype.UUID) (db.Salesperson, error)
	NextInvoiceSequence(ctx context.Context, arg db.NextInvoiceSequenceParams) (int64, error)
	InvoiceNumberExists(ctx context.Context, number string) (bool, error)
	CreateInvoice(ctx context.Context, arg db.CreateInvoiceParams) (db.Invoice, error)
	CreateInvoiceLine(ctx context.Context, arg db.CreateInvoiceLineParams) (db.InvoiceLine, error)
	CreateStockMovement(ctx context.Context, arg db.CreateStockMovementParams) (db.StockMovement, error)
	GetInvoice(ctx context.Context, id pgtype.UUID) (db.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (db.Invoice, error)
	ListInvoiceLines(ctx context.Context, invoiceID pgtype.UUID) ([]db.InvoiceLine, error)
	ListInvoices(ctx context.Context, arg db.ListInvoicesParams) ([]db.Invoice, error)
	CountInvoices(ctx context.Context) (int64, error)
}

// Txer runs fn inside one transaction against a transaction-bound query set.
type Txer interface {
	InTx(ctx context.Context, fn func(q Queries) error) error
}

// PoolTxer is the production Txer over a pgx pool.
type PoolTxer struct {
	Pool *pgxpool.Pool
	Q    *db.Queries
}

// InTx begins a transaction, runs fn with queries bound to it, and commits.
// Any error rolls the whole unit back.
func (p PoolTxer) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(p.Q.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Service prices cart lines and commits invoices. The Seller fields are the
// shop's own tax profile, echoed on every invoice payload.
type Service struct {
	Q               Queries
	Tx              Txer
	Seq             sequence.Sequencer
	Bus             *events.Bus
	SellerName      string
	SellerGSTIN     string
	SellerStateCode string
	TaxRateBps      int32
	Logger          zerolog.Logger
}

// Buyer is the customer identity captured at the counter.
type Buyer struct {
	Name    string
	Phone   string
	Address string
	GSTIN   string
}

// CommitInput is everything Commit needs to turn a cart into an invoice.
type CommitInput struct {
	Cart          *Cart
	Buyer         Buyer
	SalespersonID pgtype.UUID
	Taxed         bool
	PaymentMode   string
	CreatedBy     string
}

// Totals is the computed monetary summary of a cart or invoice.
type Totals struct {
	tax.Totals
	AmountInWords string
}

// Receipt is the result of a successful commit.
type Receipt struct {
	Invoice db.Invoice
	Lines   []db.InvoiceLine
	Totals  Totals
}

// AddLine prices one product into the cart. The product snapshot travels
// with the line so later catalog edits cannot change this bill.
func (s *Service) AddLine(ctx context.Context, cart *Cart, productID pgtype.UUID, qty int32, discountBps *int32) (CartLine, error) {
	if cart == nil {
		return CartLine{}, common.NewAppError("VALIDATION_ERROR", "cart is required", http.StatusUnprocessableEntity, nil)
	}
	if qty <= 0 {
		return CartLine{}, common.NewAppError("VALIDATION_ERROR", "quantity must be positive", http.StatusUnprocessableEntity, nil)
	}
	p, err := s.Q.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CartLine{}, common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, err)
		}
		return CartLine{}, common.NewAppError("STORAGE_FAILURE", "load product", http.StatusInternalServerError, err)
	}
	if qty > p.CurrentStock {
		return CartLine{}, common.NewAppError("VALIDATION_ERROR",
			fmt.Sprintf("insufficient stock for %s: %d available", p.Name, p.CurrentStock),
			http.StatusUnprocessableEntity, nil)
	}
	disc := p.DefaultDiscountBps
	if discountBps != nil {
		disc = pricing.ClampBps(*discountBps)
	}
	priced, err := pricing.PriceLine(p.ListPrice, disc, qty)
	if err != nil {
		return CartLine{}, common.NewAppError("VALIDATION_ERROR", err.Error(), http.StatusUnprocessableEntity, err)
	}
	line := CartLine{
		ProductID:   p.ID,
		Name:        p.Name,
		HSNCode:     p.HSNCode,
		BatchNo:     p.BatchNo,
		ExpiryDate:  p.ExpiryDate,
		ListPrice:   p.ListPrice,
		DiscountBps: disc,
		Quantity:    qty,
		Rate:        priced.Rate,
		Amount:      priced.Amount,
	}
	cart.Lines = append(cart.Lines, line)
	return line, nil
}

// PreviewTotals computes the totals the cart would commit at, without
// touching storage or allocating a number.
func (s *Service) PreviewTotals(cart *Cart, taxed bool, buyerGSTIN string) Totals {
	var lines []tax.Line
	if cart != nil {
		for _, l := range cart.Lines {
			lines = append(lines, tax.Line{ListPrice: l.ListPrice, Qty: l.Quantity, Amount: l.Amount})
		}
	}
	t := tax.Compute(lines, taxed, s.TaxRateBps)
	if taxed {
		t.CGST, t.SGST, t.IGST = tax.Split(t.TotalTax, s.SellerStateCode, buyerGSTIN)
	}
	return Totals{Totals: t, AmountInWords: pricing.AmountInWords(t.GrandTotal)}
}

// PaymentModes are the accepted tender types; an empty mode commits as CASH.
var PaymentModes = map[string]bool{"CASH": true, "CARD": true, "UPI": true, "CREDIT": true}

func normalizePaymentMode(mode string) string {
	mode = strings.ToUpper(strings.TrimSpace(mode))
	if mode == "" {
		return "CASH"
	}
	return mode
}

func (in CommitInput) validate() error {
	if in.Cart.IsEmpty() {
		return common.NewAppError("VALIDATION_ERROR", "cart is empty", http.StatusUnprocessableEntity, nil)
	}
	if strings.TrimSpace(in.Buyer.Name) == "" {
		return common.NewAppError("VALIDATION_ERROR", "buyer name is required", http.StatusUnprocessableEntity, nil)
	}
	if !in.SalespersonID.Valid {
		return common.NewAppError("VALIDATION_ERROR", "salesperson is required", http.StatusUnprocessableEntity, nil)
	}
	if gstin := strings.TrimSpace(in.Buyer.GSTIN); gstin != "" && !common.ValidGSTIN(gstin) {
		return common.NewAppError("VALIDATION_ERROR", "buyer gstin is malformed", http.StatusUnprocessableEntity, nil)
	} else if in.Taxed && gstin == "" {
		return common.NewAppError("VALIDATION_ERROR", "buyer gstin is required on a taxed invoice", http.StatusUnprocessableEntity, nil)
	}
	if !PaymentModes[in.PaymentMode] {
		return common.NewAppError("VALIDATION_ERROR", "payment mode must be one of CASH, CARD, UPI, CREDIT", http.StatusUnprocessableEntity, nil)
	}
	return nil
}

type lowStockAlert struct {
	ProductID    pgtype.UUID
	Name         string
	CurrentStock int32
	MinStock     int32
}

// Commit atomically persists the cart as a numbered invoice, decrements
// stock, and appends the stock ledger rows. On success it emits the
// committed and any low-stock events; emission failures are logged, never
// surfaced, because the sale has already happened.
func (s *Service) Commit(ctx context.Context, in CommitInput) (Receipt, error) {
	in.PaymentMode = normalizePaymentMode(in.PaymentMode)
	if err := in.validate(); err != nil {
		return Receipt{}, err
	}

	start := time.Now()
	totals := s.PreviewTotals(in.Cart, in.Taxed, in.Buyer.GSTIN)

	var rec Receipt
	var alerts []lowStockAlert
	var newBuyer *db.Customer
	err := s.Tx.InTx(ctx, func(q Queries) error {
		cust, err := q.UpsertCustomerByPhone(ctx, db.UpsertCustomerParams{
			Name:    strings.TrimSpace(in.Buyer.Name),
			Phone:   textOrNull(in.Buyer.Phone),
			Address: textOrNull(in.Buyer.Address),
			GSTIN:   textOrNull(in.Buyer.GSTIN),
		})
		if err != nil {
			return common.NewAppError("STORAGE_FAILURE", "upsert customer", http.StatusInternalServerError, err)
		}
		// An upsert that matched an existing buyer bumps updated_at past
		// created_at; equal stamps mean this sale introduced the buyer.
		if cust.CreatedAt.Valid && cust.UpdatedAt.Valid && cust.CreatedAt.Time.Equal(cust.UpdatedAt.Time) {
			c := cust
			newBuyer = &c
		}

		sp, err := q.GetSalesperson(ctx, in.SalespersonID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NewAppError("NOT_FOUND", "salesperson not found", http.StatusNotFound, err)
			}
			return common.NewAppError("STORAGE_FAILURE", "load salesperson", http.StatusInternalServerError, err)
		}
		if !sp.Active {
			return common.NewAppError("VALIDATION_ERROR", "salesperson is not active", http.StatusUnprocessableEntity, nil)
		}

		// Aggregate quantities per product so a cart carrying the same
		// item on two lines is checked against the combined demand, and
		// lock rows in a stable order so concurrent commits cannot
		// deadlock on each other.
		demand := map[pgtype.UUID]int32{}
		order := make([]pgtype.UUID, 0, len(in.Cart.Lines))
		for _, l := range in.Cart.Lines {
			if _, seen := demand[l.ProductID]; !seen {
				order = append(order, l.ProductID)
			}
			demand[l.ProductID] += l.Quantity
		}
		sort.Slice(order, func(i, j int) bool {
			return string(order[i].Bytes[:]) < string(order[j].Bytes[:])
		})

		locked := map[pgtype.UUID]db.Product{}
		for _, id := range order {
			p, err := q.GetProductForUpdate(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return common.NewAppError("NOT_FOUND", "product no longer exists", http.StatusNotFound, err)
				}
				return common.NewAppError("STORAGE_FAILURE", "lock product", http.StatusInternalServerError, err)
			}
			if demand[id] > p.CurrentStock {
				return common.NewAppError("VALIDATION_ERROR",
					fmt.Sprintf("insufficient stock for %s: %d available, %d requested", p.Name, p.CurrentStock, demand[id]),
					http.StatusUnprocessableEntity, nil)
			}
			locked[id] = p
		}

		number, err := s.Seq.Next(ctx, q)
		if err != nil {
			return common.NewAppError("SEQUENCING_FAILURE", "allocate invoice number", http.StatusInternalServerError, err)
		}

		inv, err := q.CreateInvoice(ctx, db.CreateInvoiceParams{
			InvoiceNo:     number,
			CustomerID:    cust.ID,
			BuyerName:     strings.TrimSpace(in.Buyer.Name),
			BuyerPhone:    textOrNull(in.Buyer.Phone),
			BuyerAddress:  textOrNull(in.Buyer.Address),
			BuyerGSTIN:    textOrNull(in.Buyer.GSTIN),
			SalespersonID: sp.ID,
			Taxed:         in.Taxed,
			PaymentMode:   in.PaymentMode,
			Subtotal:      totals.Subtotal,
			DiscountTotal: totals.DiscountAmount,
			TaxableAmount: totals.TaxableAmount,
			CGST:          totals.CGST,
			SGST:          totals.SGST,
			IGST:          totals.IGST,
			RoundOff:      totals.RoundOff,
			GrandTotal:    totals.GrandTotal,
			CreatedBy:     in.CreatedBy,
		})
		if err != nil {
			return common.NewAppError("STORAGE_FAILURE", "insert invoice", http.StatusInternalServerError, err)
		}

		lines := make([]db.InvoiceLine, 0, len(in.Cart.Lines))
		for _, l := range in.Cart.Lines {
			created, err := q.CreateInvoiceLine(ctx, db.CreateInvoiceLineParams{
				InvoiceID:  inv.ID,
				ProductID:  l.ProductID,
				Name:       l.Name,
				HSNCode:    l.HSNCode,
				BatchNo:    l.BatchNo,
				ExpiryDate: l.ExpiryDate,
				Quantity:   l.Quantity,
				Rate:       l.Rate,
				Amount:     l.Amount,
			})
			if err != nil {
				return common.NewAppError("STORAGE_FAILURE", "insert invoice line", http.StatusInternalServerError, err)
			}
			lines = append(lines, created)
		}

		for _, id := range order {
			before := locked[id]
			after, err := q.DecrementProductStock(ctx, db.DecrementProductStockParams{ID: id, Quantity: demand[id]})
			if err != nil {
				return common.NewAppError("STORAGE_FAILURE", "decrement stock", http.StatusInternalServerError, err)
			}
			if _, err := q.CreateStockMovement(ctx, db.CreateStockMovementParams{
				ProductID:      id,
				ChangeType:     "sale",
				QuantityBefore: before.CurrentStock,
				QuantityAfter:  after.CurrentStock,
				InvoiceID:      inv.ID,
				CreatedBy:      in.CreatedBy,
			}); err != nil {
				return common.NewAppError("STORAGE_FAILURE", "append stock movement", http.StatusInternalServerError, err)
			}
			if after.CurrentStock <= after.MinStock {
				alerts = append(alerts, lowStockAlert{
					ProductID:    id,
					Name:         after.Name,
					CurrentStock: after.CurrentStock,
					MinStock:     after.MinStock,
				})
			}
		}

		rec = Receipt{Invoice: inv, Lines: lines, Totals: totals}
		return nil
	})

	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		recordCommit(in.Taxed, "error", elapsed)
		return Receipt{}, err
	}
	recordCommit(in.Taxed, "ok", elapsed)

	s.emitCommitted(ctx, rec, alerts, newBuyer)
	return rec, nil
}

func (s *Service) emitCommitted(ctx context.Context, rec Receipt, alerts []lowStockAlert, newBuyer *db.Customer) {
	if s.Bus == nil {
		return
	}
	if newBuyer != nil {
		if _, err := s.Bus.Emit(ctx, events.TopicCustomerCreated, uuidString(newBuyer.ID), map[string]any{
			"name":  newBuyer.Name,
			"phone": newBuyer.Phone.String,
		}); err != nil {
			s.Logger.Error().Err(err).Str("customer", newBuyer.Name).Msg("emit customer created event")
		}
	}
	invoiceID := uuidString(rec.Invoice.ID)
	if _, err := s.Bus.Emit(ctx, events.TopicInvoiceCommitted, invoiceID, map[string]any{
		"invoiceNo":  rec.Invoice.InvoiceNo,
		"grandTotal": rec.Invoice.GrandTotal,
		"taxed":      rec.Invoice.Taxed,
		"lineCount":  len(rec.Lines),
	}); err != nil {
		s.Logger.Error().Err(err).Str("invoice_no", rec.Invoice.InvoiceNo).Msg("emit invoice committed event")
	}
	for _, a := range alerts {
		if obs.StockLowTotal != nil {
			obs.StockLowTotal.Inc()
		}
		if _, err := s.Bus.Emit(ctx, events.TopicStockLow, uuidString(a.ProductID), map[string]any{
			"name":         a.Name,
			"currentStock": a.CurrentStock,
			"minStock":     a.MinStock,
			"invoiceNo":    rec.Invoice.InvoiceNo,
		}); err != nil {
			s.Logger.Error().Err(err).Str("product", a.Name).Msg("emit stock low event")
		}
	}
}

func recordCommit(taxed bool, result string, elapsedMs float64) {
	taxedLabel := "false"
	if taxed {
		taxedLabel = "true"
	}
	if obs.InvoicesCommittedTotal != nil {
		obs.InvoicesCommittedTotal.WithLabelValues(taxedLabel, result).Inc()
	}
	if obs.CommitDuration != nil {
		obs.CommitDuration.WithLabelValues(result).Observe(elapsedMs)
	}
}

// InvoiceByID fetches one committed invoice with its lines.
func (s *Service) InvoiceByID(ctx context.Context, id pgtype.UUID) (Receipt, error) {
	inv, err := s.Q.GetInvoice(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, common.NewAppError("NOT_FOUND", "invoice not found", http.StatusNotFound, err)
		}
		return Receipt{}, common.NewAppError("STORAGE_FAILURE", "load invoice", http.StatusInternalServerError, err)
	}
	return s.assembleReceipt(ctx, inv)
}

// InvoiceByNumber fetches one committed invoice by its printable number.
func (s *Service) InvoiceByNumber(ctx context.Context, number string) (Receipt, error) {
	inv, err := s.Q.GetInvoiceByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, common.NewAppError("NOT_FOUND", "invoice not found", http.StatusNotFound, err)
		}
		return Receipt{}, common.NewAppError("STORAGE_FAILURE", "load invoice", http.StatusInternalServerError, err)
	}
	return s.assembleReceipt(ctx, inv)
}

func (s *Service) assembleReceipt(ctx context.Context, inv db.Invoice) (Receipt, error) {
	lines, err := s.Q.ListInvoiceLines(ctx, inv.ID)
	if err != nil {
		return Receipt{}, common.NewAppError("STORAGE_FAILURE", "load invoice lines", http.StatusInternalServerError, err)
	}
	return Receipt{
		Invoice: inv,
		Lines:   lines,
		Totals: Totals{
			Totals: tax.Totals{
				Subtotal:       inv.Subtotal,
				DiscountAmount: inv.DiscountTotal,
				TaxableAmount:  inv.TaxableAmount,
				TotalTax:       inv.CGST + inv.SGST + inv.IGST,
				CGST:           inv.CGST,
				SGST:           inv.SGST,
				IGST:           inv.IGST,
				RoundOff:       inv.RoundOff,
				GrandTotal:     inv.GrandTotal,
			},
			AmountInWords: pricing.AmountInWords(inv.GrandTotal),
		},
	}, nil
}

// ListInvoices pages through committed invoices, newest first.
func (s *Service) ListInvoices(ctx context.Context, limit, offset int32) ([]db.Invoice, int64, error) {
	items, err := s.Q.ListInvoices(ctx, db.ListInvoicesParams{Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, common.NewAppError("STORAGE_FAILURE", "list invoices", http.StatusInternalServerError, err)
	}
	total, err := s.Q.CountInvoices(ctx)
	if err != nil {
		return nil, 0, common.NewAppError("STORAGE_FAILURE", "count invoices", http.StatusInternalServerError, err)
	}
	return items, total, nil
}

func textOrNull(v string) pgtype.Text {
	v = strings.TrimSpace(v)
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	v, err := id.Value()
	if err != nil {
		return ""
	}
	str, _ := v.(string)
	return str
}

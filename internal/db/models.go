package db

import "github.com/jackc/pgx/v5/pgtype"

// Product is a catalog item. Prices are paise, percentages basis points.
type Product struct {
	ID                 pgtype.UUID
	Name               string
	HSNCode            pgtype.Text
	ListPrice          int64
	DefaultDiscountBps int32
	TaxRateBps         int32
	CurrentStock       int32
	MinStock           int32
	Unit               string
	BatchNo            pgtype.Text
	ExpiryDate         pgtype.Date
	CreatedAt          pgtype.Timestamptz
	UpdatedAt          pgtype.Timestamptz
}

// Customer is a buyer record. Committed invoices snapshot its fields rather
// than referencing them live.
type Customer struct {
	ID        pgtype.UUID
	Name      string
	Phone     pgtype.Text
	Address   pgtype.Text
	GSTIN     pgtype.Text
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// Salesperson is a member of the selling staff referenced by invoices.
type Salesperson struct {
	ID        pgtype.UUID
	Name      string
	Phone     pgtype.Text
	Active    bool
	CreatedAt pgtype.Timestamptz
}

// Invoice is an immutable committed bill. Monetary columns are paise.
type Invoice struct {
	ID            pgtype.UUID
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
	CreatedAt     pgtype.Timestamptz
}

// InvoiceLine is one snapshotted sale line belonging to an invoice.
type InvoiceLine struct {
	ID         pgtype.UUID
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

// StockMovement is one append-only audit row for an inventory change.
type StockMovement struct {
	ID             pgtype.UUID
	ProductID      pgtype.UUID
	ChangeType     string
	QuantityBefore int32
	QuantityAfter  int32
	InvoiceID      pgtype.UUID
	CreatedBy      string
	CreatedAt      pgtype.Timestamptz
}

// DomainEvent is a persisted fact other systems can subscribe to.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID string
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}

// WebhookEndpoint is a registered external consumer of domain events.
type WebhookEndpoint struct {
	ID        pgtype.UUID
	Name      string
	URL       string
	Secret    string
	Topics    []string
	Active    bool
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

// WebhookDelivery tracks one endpoint's receipt of one event.
type WebhookDelivery struct {
	ID             pgtype.UUID
	EndpointID     pgtype.UUID
	EventID        pgtype.UUID
	Status         string
	Attempt        int32
	MaxAttempt     int32
	NextAttemptAt  pgtype.Timestamptz
	LastError      pgtype.Text
	ResponseStatus pgtype.Int4
	DeliveredAt    pgtype.Timestamptz
	CreatedAt      pgtype.Timestamptz
}

// WebhookDlq holds deliveries that exhausted their attempts.
type WebhookDlq struct {
	ID         pgtype.UUID
	DeliveryID pgtype.UUID
	Reason     pgtype.Text
	CreatedAt  pgtype.Timestamptz
}

// AuditLog is an append-only record of an administrative action.
type AuditLog struct {
	ID         pgtype.UUID
	ActorID    pgtype.Text
	ActorKind  string
	Action     string
	TargetKind pgtype.Text
	TargetID   pgtype.Text
	Method     string
	Path       string
	Status     int32
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
}

package events

// Topic constants for domain events emitted by the billing engine.
const (
	TopicInvoiceCommitted = "billing.invoice.committed"
	TopicStockLow         = "billing.stock.low"
	TopicStockAdjusted    = "billing.stock.adjusted"
	TopicCustomerCreated  = "billing.customer.created"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicInvoiceCommitted,
		TopicStockLow,
		TopicStockAdjusted,
		TopicCustomerCreated,
	}
}

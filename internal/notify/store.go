package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-billing/internal/db"
)

// Store defines the persistence operations required for webhook management.
type Store interface {
	CreateWebhookEndpoint(ctx context.Context, arg db.CreateWebhookEndpointParams) (db.WebhookEndpoint, error)
	UpdateWebhookEndpoint(ctx context.Context, arg db.UpdateWebhookEndpointParams) (db.WebhookEndpoint, error)
	GetWebhookEndpoint(ctx context.Context, id pgtype.UUID) (db.WebhookEndpoint, error)
	ListWebhookEndpoints(ctx context.Context, arg db.ListWebhookEndpointsParams) ([]db.WebhookEndpoint, error)
	CountWebhookEndpoints(ctx context.Context) (int64, error)
	DeleteWebhookEndpoint(ctx context.Context, id pgtype.UUID) error

	ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]db.WebhookEndpoint, error)
	EnqueueDelivery(ctx context.Context, arg db.EnqueueDeliveryParams) (db.WebhookDelivery, error)
	DequeueDueDeliveries(ctx context.Context, limit int32) ([]db.WebhookDelivery, error)
	ClaimWebhookDelivery(ctx context.Context, id pgtype.UUID) (db.WebhookDelivery, error)
	MarkDelivered(ctx context.Context, arg db.MarkDeliveredParams) error
	MarkFailedWithBackoff(ctx context.Context, arg db.MarkFailedWithBackoffParams) error
	MoveToDLQ(ctx context.Context, arg db.MoveToDLQParams) error
	InsertWebhookDlq(ctx context.Context, arg db.InsertWebhookDlqParams) (db.WebhookDlq, error)
	GetWebhookDelivery(ctx context.Context, id pgtype.UUID) (db.WebhookDelivery, error)
	ResetDeliveryForReplay(ctx context.Context, id pgtype.UUID) (db.WebhookDelivery, error)
	DeleteDlqByDelivery(ctx context.Context, deliveryID pgtype.UUID) error
	ListWebhookDeliveries(ctx context.Context, arg db.ListWebhookDeliveriesParams) ([]db.WebhookDelivery, error)
	CountWebhookDeliveries(ctx context.Context, arg db.ListWebhookDeliveriesParams) (int64, error)

	GetDomainEvent(ctx context.Context, id pgtype.UUID) (db.DomainEvent, error)
}

// NewStore returns a Store backed by the query layer.
func NewStore(q *db.Queries) Store {
	if q == nil {
		return nil
	}
	return q
}

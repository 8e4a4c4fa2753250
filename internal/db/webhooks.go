package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const webhookEndpointColumns = `id, name, url, secret, topics, active, created_at, updated_at`

func scanWebhookEndpoint(row scanner) (WebhookEndpoint, error) {
	var ep WebhookEndpoint
	err := row.Scan(&ep.ID, &ep.Name, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt, &ep.UpdatedAt)
	return ep, err
}

// CreateWebhookEndpointParams registers a new event consumer.
type CreateWebhookEndpointParams struct {
	Name   string
	URL    string
	Secret string
	Topics []string
	Active bool
}

// CreateWebhookEndpoint inserts an endpoint registration.
func (q *Queries) CreateWebhookEndpoint(ctx context.Context, arg CreateWebhookEndpointParams) (WebhookEndpoint, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO webhook_endpoints (name, url, secret, topics, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+webhookEndpointColumns,
		arg.Name, arg.URL, arg.Secret, arg.Topics, arg.Active,
	)
	return scanWebhookEndpoint(row)
}

// UpdateWebhookEndpointParams replaces the mutable fields of an endpoint.
type UpdateWebhookEndpointParams struct {
	ID     pgtype.UUID
	Name   string
	URL    string
	Secret string
	Topics []string
	Active bool
}

// UpdateWebhookEndpoint rewrites the endpoint registration.
func (q *Queries) UpdateWebhookEndpoint(ctx context.Context, arg UpdateWebhookEndpointParams) (WebhookEndpoint, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE webhook_endpoints
		SET name = $2, url = $3, secret = $4, topics = $5, active = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+webhookEndpointColumns,
		arg.ID, arg.Name, arg.URL, arg.Secret, arg.Topics, arg.Active,
	)
	return scanWebhookEndpoint(row)
}

// GetWebhookEndpoint fetches one endpoint by id.
func (q *Queries) GetWebhookEndpoint(ctx context.Context, id pgtype.UUID) (WebhookEndpoint, error) {
	row := q.db.QueryRow(ctx, `SELECT `+webhookEndpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	return scanWebhookEndpoint(row)
}

// DeleteWebhookEndpoint removes an endpoint and cascades its deliveries.
func (q *Queries) DeleteWebhookEndpoint(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	return err
}

// ListWebhookEndpointsParams pages through registered endpoints.
type ListWebhookEndpointsParams struct {
	Limit  int32
	Offset int32
}

// ListWebhookEndpoints returns endpoints ordered by creation time.
func (q *Queries) ListWebhookEndpoints(ctx context.Context, arg ListWebhookEndpointsParams) ([]WebhookEndpoint, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+webhookEndpointColumns+` FROM webhook_endpoints
		ORDER BY created_at LIMIT $1 OFFSET $2`,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WebhookEndpoint
	for rows.Next() {
		ep, err := scanWebhookEndpoint(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ep)
	}
	return items, rows.Err()
}

// CountWebhookEndpoints returns the number of registered endpoints.
func (q *Queries) CountWebhookEndpoints(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM webhook_endpoints`).Scan(&count)
	return count, err
}

// ListActiveEndpointsForTopic returns active endpoints subscribed to the topic.
func (q *Queries) ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]WebhookEndpoint, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+webhookEndpointColumns+` FROM webhook_endpoints
		WHERE active AND $1 = ANY(topics)
		ORDER BY created_at`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WebhookEndpoint
	for rows.Next() {
		ep, err := scanWebhookEndpoint(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ep)
	}
	return items, rows.Err()
}

const webhookDeliveryColumns = `id, endpoint_id, event_id, status, attempt, max_attempt,
	next_attempt_at, last_error, response_status, delivered_at, created_at`

func scanWebhookDelivery(row scanner) (WebhookDelivery, error) {
	var d WebhookDelivery
	err := row.Scan(&d.ID, &d.EndpointID, &d.EventID, &d.Status, &d.Attempt, &d.MaxAttempt,
		&d.NextAttemptAt, &d.LastError, &d.ResponseStatus, &d.DeliveredAt, &d.CreatedAt)
	return d, err
}

// EnqueueDeliveryParams schedules one event for one endpoint.
type EnqueueDeliveryParams struct {
	EndpointID pgtype.UUID
	EventID    pgtype.UUID
	MaxAttempt int32
}

// EnqueueDelivery inserts a pending delivery. Re-enqueueing the same
// event for the same endpoint is a no-op so emitters can retry safely.
func (q *Queries) EnqueueDelivery(ctx context.Context, arg EnqueueDeliveryParams) (WebhookDelivery, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO webhook_deliveries (endpoint_id, event_id, status, attempt, max_attempt, next_attempt_at)
		VALUES ($1, $2, 'pending', 0, $3, now())
		ON CONFLICT (endpoint_id, event_id)
		DO UPDATE SET endpoint_id = webhook_deliveries.endpoint_id
		RETURNING `+webhookDeliveryColumns,
		arg.EndpointID, arg.EventID, arg.MaxAttempt,
	)
	return scanWebhookDelivery(row)
}

// GetWebhookDelivery fetches one delivery by id.
func (q *Queries) GetWebhookDelivery(ctx context.Context, id pgtype.UUID) (WebhookDelivery, error) {
	row := q.db.QueryRow(ctx, `SELECT `+webhookDeliveryColumns+` FROM webhook_deliveries WHERE id = $1`, id)
	return scanWebhookDelivery(row)
}

// DequeueDueDeliveries claims up to limit deliveries whose retry time has
// arrived. SKIP LOCKED lets concurrent workers drain the table without
// stepping on each other; claimed rows move to 'delivering'.
func (q *Queries) DequeueDueDeliveries(ctx context.Context, limit int32) ([]WebhookDelivery, error) {
	rows, err := q.db.Query(ctx, `
		UPDATE webhook_deliveries
		SET status = 'delivering', attempt = attempt + 1
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status IN ('pending', 'failed') AND next_attempt_at <= now()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+webhookDeliveryColumns,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WebhookDelivery
	for rows.Next() {
		d, err := scanWebhookDelivery(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// ClaimWebhookDelivery claims a single delivery by id regardless of its
// retry schedule. Used by the queue-driven worker path where the task
// itself carries the timing.
func (q *Queries) ClaimWebhookDelivery(ctx context.Context, id pgtype.UUID) (WebhookDelivery, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE webhook_deliveries
		SET status = 'delivering', attempt = attempt + 1
		WHERE id = $1 AND status IN ('pending', 'failed')
		RETURNING `+webhookDeliveryColumns,
		id,
	)
	return scanWebhookDelivery(row)
}

// MarkDeliveredParams records a successful delivery response.
type MarkDeliveredParams struct {
	ID             pgtype.UUID
	ResponseStatus int32
}

// MarkDelivered finalizes a successful delivery.
func (q *Queries) MarkDelivered(ctx context.Context, arg MarkDeliveredParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'delivered', response_status = $2, delivered_at = now(), last_error = NULL
		WHERE id = $1`,
		arg.ID, arg.ResponseStatus,
	)
	return err
}

// MarkFailedWithBackoffParams reschedules a failed delivery.
type MarkFailedWithBackoffParams struct {
	ID        pgtype.UUID
	DelaySec  int64
	LastError string
}

// MarkFailedWithBackoff records the failure and pushes the next attempt out.
func (q *Queries) MarkFailedWithBackoff(ctx context.Context, arg MarkFailedWithBackoffParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'failed', last_error = $3,
			next_attempt_at = now() + make_interval(secs => $2)
		WHERE id = $1`,
		arg.ID, arg.DelaySec, arg.LastError,
	)
	return err
}

// MoveToDLQParams parks an exhausted delivery.
type MoveToDLQParams struct {
	ID        pgtype.UUID
	LastError string
}

// MoveToDLQ marks the delivery dead and records why.
func (q *Queries) MoveToDLQ(ctx context.Context, arg MoveToDLQParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE webhook_deliveries SET status = 'dlq', last_error = $2 WHERE id = $1`,
		arg.ID, arg.LastError,
	)
	return err
}

// InsertWebhookDlqParams records why a delivery was parked.
type InsertWebhookDlqParams struct {
	DeliveryID pgtype.UUID
	Reason     string
}

// InsertWebhookDlq appends a dead-letter row for the delivery.
func (q *Queries) InsertWebhookDlq(ctx context.Context, arg InsertWebhookDlqParams) (WebhookDlq, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO webhook_dlq (delivery_id, reason)
		VALUES ($1, $2)
		ON CONFLICT (delivery_id) DO UPDATE SET reason = EXCLUDED.reason
		RETURNING id, delivery_id, reason, created_at`,
		arg.DeliveryID, arg.Reason,
	)
	var d WebhookDlq
	err := row.Scan(&d.ID, &d.DeliveryID, &d.Reason, &d.CreatedAt)
	return d, err
}

// ResetDeliveryForReplay returns a dead delivery to the pending queue with
// a fresh attempt budget.
func (q *Queries) ResetDeliveryForReplay(ctx context.Context, id pgtype.UUID) (WebhookDelivery, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE webhook_deliveries
		SET status = 'pending', attempt = 0, last_error = NULL, next_attempt_at = now()
		WHERE id = $1 AND status = 'dlq'
		RETURNING `+webhookDeliveryColumns,
		id,
	)
	return scanWebhookDelivery(row)
}

// DeleteDlqByDelivery discards the dead-letter row after a replay.
func (q *Queries) DeleteDlqByDelivery(ctx context.Context, deliveryID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM webhook_dlq WHERE delivery_id = $1`, deliveryID)
	return err
}

// ListWebhookDeliveriesParams filters the delivery audit trail. Zero-value
// UUIDs and an empty status match everything.
type ListWebhookDeliveriesParams struct {
	EndpointID pgtype.UUID
	EventID    pgtype.UUID
	Status     string
	Limit      int32
	Offset     int32
}

// ListWebhookDeliveries returns deliveries, newest first.
func (q *Queries) ListWebhookDeliveries(ctx context.Context, arg ListWebhookDeliveriesParams) ([]WebhookDelivery, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+webhookDeliveryColumns+` FROM webhook_deliveries
		WHERE (NOT $1::boolean OR endpoint_id = $2)
		  AND (NOT $3::boolean OR event_id = $4)
		  AND ($5 = '' OR status = $5)
		ORDER BY created_at DESC LIMIT $6 OFFSET $7`,
		arg.EndpointID.Valid, arg.EndpointID, arg.EventID.Valid, arg.EventID,
		arg.Status, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WebhookDelivery
	for rows.Next() {
		d, err := scanWebhookDelivery(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// CountWebhookDeliveries counts deliveries matching the same filters.
func (q *Queries) CountWebhookDeliveries(ctx context.Context, arg ListWebhookDeliveriesParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM webhook_deliveries
		WHERE (NOT $1::boolean OR endpoint_id = $2)
		  AND (NOT $3::boolean OR event_id = $4)
		  AND ($5 = '' OR status = $5)`,
		arg.EndpointID.Valid, arg.EndpointID, arg.EventID.Valid, arg.EventID, arg.Status,
	).Scan(&count)
	return count, err
}

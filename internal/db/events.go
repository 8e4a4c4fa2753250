package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const domainEventColumns = `id, topic, aggregate_id, payload, occurred_at`

func scanDomainEvent(row scanner) (DomainEvent, error) {
	var ev DomainEvent
	err := row.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}

// InsertDomainEventParams carries one fact to persist.
type InsertDomainEventParams struct {
	Topic       string
	AggregateID string
	Payload     []byte
}

// InsertDomainEvent appends one event to the log.
func (q *Queries) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING `+domainEventColumns,
		arg.Topic, arg.AggregateID, arg.Payload,
	)
	return scanDomainEvent(row)
}

// GetDomainEvent fetches one event by id.
func (q *Queries) GetDomainEvent(ctx context.Context, id pgtype.UUID) (DomainEvent, error) {
	row := q.db.QueryRow(ctx, `SELECT `+domainEventColumns+` FROM domain_events WHERE id = $1`, id)
	return scanDomainEvent(row)
}

// ListDomainEventsParams pages through the event log, newest first.
type ListDomainEventsParams struct {
	Topic  string
	Limit  int32
	Offset int32
}

// ListDomainEvents returns events, optionally filtered by topic.
func (q *Queries) ListDomainEvents(ctx context.Context, arg ListDomainEventsParams) ([]DomainEvent, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+domainEventColumns+` FROM domain_events
		WHERE ($1 = '' OR topic = $1)
		ORDER BY occurred_at DESC LIMIT $2 OFFSET $3`,
		arg.Topic, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DomainEvent
	for rows.Next() {
		ev, err := scanDomainEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ev)
	}
	return items, rows.Err()
}

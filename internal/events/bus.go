package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-billing/internal/db"
)

// EventStore persists emitted events to the domain_events table.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error)
}

// DeliveryScheduler fans a persisted event out to webhook deliveries.
type DeliveryScheduler interface {
	Schedule(ctx context.Context, event db.DomainEvent) error
}

// Notifier reacts to emitted events (email, metrics, and the like).
type Notifier interface {
	Notify(ctx context.Context, event db.DomainEvent) error
}

// Bus persists domain events and fans them out to downstream handlers.
// The event row is the source of truth: fan-out failures are reported but
// never roll the event back.
type Bus struct {
	Store     EventStore
	Scheduler DeliveryScheduler
	Notifiers []Notifier
}

// Emit records the event and dispatches it to all configured handlers.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) (db.DomainEvent, error) {
	if b == nil || b.Store == nil {
		return db.DomainEvent{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return db.DomainEvent{}, errors.New("events: topic is required")
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return db.DomainEvent{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := b.Store.InsertDomainEvent(ctx, db.InsertDomainEventParams{
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
	})
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: persist event: %w", err)
	}
	return ev, b.fanOut(ctx, ev)
}

// fanOut pushes the event to the scheduler and every notifier, collecting
// failures so one broken handler cannot starve the rest.
func (b *Bus) fanOut(ctx context.Context, ev db.DomainEvent) error {
	var joined error
	if b.Scheduler != nil {
		if err := b.Scheduler.Schedule(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: schedule deliveries: %w", err))
		}
	}
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
		}
	}
	return joined
}

// encodePayload normalises the payload into a JSON document. Raw inputs
// must already be valid JSON; anything else is marshalled, and an absent
// payload becomes an empty object.
func encodePayload(payload any) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	case string:
		raw = []byte(strings.TrimSpace(v))
	default:
		return json.Marshal(v)
	}
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), raw...), nil
}

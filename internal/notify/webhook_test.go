package notify_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/db"
	"github.com/noah-isme/backend-billing/internal/notify"
	"github.com/noah-isme/backend-billing/internal/resilience"
)

func toUUID(u uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: u, Valid: true}
}

func uuidString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func TestSignatureAndHeaders(t *testing.T) {
	type recorded struct {
		req  *http.Request
		body []byte
	}
	received := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- recorded{req: r, body: body}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	dispatcher := &notify.Dispatcher{
		HTTP: &resilience.HTTPClient{
			Client:      srv.Client(),
			Breaker:     resilience.NewBreaker(1, 1, time.Second),
			MaxAttempts: 1,
			Timeout:     time.Second,
			Target:      "webhook-delivery",
		},
		Enabled: true,
	}
	endpoint := db.WebhookEndpoint{URL: srv.URL, Secret: "secret", ID: toUUID(uuid.New())}
	event := db.DomainEvent{
		ID:         toUUID(uuid.New()),
		Topic:      "billing.invoice.committed",
		Payload:    []byte(`{"invoiceNo":"NH/1/25-26"}`),
		OccurredAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	delivery := db.WebhookDelivery{ID: toUUID(uuid.New())}

	status, _, err := dispatcher.Deliver(context.Background(), endpoint, event, delivery)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	record := <-received
	req := record.req
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))
	require.Equal(t, uuidString(event.ID), req.Header.Get("X-Event-ID"))
	require.Equal(t, uuidString(delivery.ID), req.Header.Get("X-Idempotency-Key"))
	timestamp := req.Header.Get("X-Timestamp")
	require.NotEmpty(t, timestamp)
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	require.NoError(t, err)
	bodyBytes := record.body
	require.Equal(t, notify.ComputeSignature(endpoint.Secret, ts, req.Header.Get("X-Event-ID"), bodyBytes), req.Header.Get("X-Signature"))
}

type retryStore struct {
	attempt  int32
	endpoint db.WebhookEndpoint
	event    db.DomainEvent
	failed   []db.MarkFailedWithBackoffParams
	dlq      []db.MoveToDLQParams
}

func (r *retryStore) CreateWebhookEndpoint(context.Context, db.CreateWebhookEndpointParams) (db.WebhookEndpoint, error) {
	return db.WebhookEndpoint{}, errors.New("not implemented")
}

func (r *retryStore) UpdateWebhookEndpoint(context.Context, db.UpdateWebhookEndpointParams) (db.WebhookEndpoint, error) {
	return db.WebhookEndpoint{}, errors.New("not implemented")
}

func (r *retryStore) GetWebhookEndpoint(context.Context, pgtype.UUID) (db.WebhookEndpoint, error) {
	return r.endpoint, nil
}

func (r *retryStore) ListWebhookEndpoints(context.Context, db.ListWebhookEndpointsParams) ([]db.WebhookEndpoint, error) {
	return nil, nil
}

func (r *retryStore) CountWebhookEndpoints(context.Context) (int64, error) { return 0, nil }

func (r *retryStore) DeleteWebhookEndpoint(context.Context, pgtype.UUID) error { return nil }

func (r *retryStore) ListActiveEndpointsForTopic(context.Context, string) ([]db.WebhookEndpoint, error) {
	return nil, nil
}

func (r *retryStore) EnqueueDelivery(context.Context, db.EnqueueDeliveryParams) (db.WebhookDelivery, error) {
	return db.WebhookDelivery{}, nil
}

func (r *retryStore) DequeueDueDeliveries(context.Context, int32) ([]db.WebhookDelivery, error) {
	if r.attempt >= 2 {
		return nil, nil
	}
	r.attempt++
	delivery := db.WebhookDelivery{
		ID:         toUUID(uuid.New()),
		EndpointID: r.endpoint.ID,
		EventID:    r.event.ID,
		Attempt:    r.attempt,
		MaxAttempt: 2,
	}
	return []db.WebhookDelivery{delivery}, nil
}

func (r *retryStore) ClaimWebhookDelivery(context.Context, pgtype.UUID) (db.WebhookDelivery, error) {
	return db.WebhookDelivery{}, errors.New("not implemented")
}

func (r *retryStore) MarkDelivered(context.Context, db.MarkDeliveredParams) error { return nil }

func (r *retryStore) MarkFailedWithBackoff(_ context.Context, arg db.MarkFailedWithBackoffParams) error {
	r.failed = append(r.failed, arg)
	return nil
}

func (r *retryStore) MoveToDLQ(_ context.Context, arg db.MoveToDLQParams) error {
	r.dlq = append(r.dlq, arg)
	return nil
}

func (r *retryStore) InsertWebhookDlq(context.Context, db.InsertWebhookDlqParams) (db.WebhookDlq, error) {
	return db.WebhookDlq{}, nil
}

func (r *retryStore) GetWebhookDelivery(context.Context, pgtype.UUID) (db.WebhookDelivery, error) {
	return db.WebhookDelivery{}, errors.New("not implemented")
}

func (r *retryStore) ResetDeliveryForReplay(context.Context, pgtype.UUID) (db.WebhookDelivery, error) {
	return db.WebhookDelivery{}, errors.New("not implemented")
}

func (r *retryStore) DeleteDlqByDelivery(context.Context, pgtype.UUID) error { return nil }

func (r *retryStore) ListWebhookDeliveries(context.Context, db.ListWebhookDeliveriesParams) ([]db.WebhookDelivery, error) {
	return nil, nil
}

func (r *retryStore) CountWebhookDeliveries(context.Context, db.ListWebhookDeliveriesParams) (int64, error) {
	return 0, nil
}

func (r *retryStore) GetDomainEvent(context.Context, pgtype.UUID) (db.DomainEvent, error) {
	return r.event, nil
}

func TestRetryAndDLQ(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := &retryStore{
		endpoint: db.WebhookEndpoint{ID: toUUID(uuid.New()), URL: srv.URL, Secret: "secret"},
		event:    db.DomainEvent{ID: toUUID(uuid.New()), Topic: "billing.invoice.committed", Payload: []byte(`{"invoiceNo":"NH/1/25-26"}`), OccurredAt: pgtype.Timestamptz{Time: time.Now(), Valid: true}},
	}

	dispatcher := &notify.Dispatcher{
		Store: store,
		HTTP: &resilience.HTTPClient{
			Client:      srv.Client(),
			Breaker:     resilience.NewBreaker(1, 1, time.Second),
			MaxAttempts: 1,
			Timeout:     time.Second,
			Target:      "webhook-delivery",
		},
		BackoffBaseSec:     3,
		DefaultMaxAttempts: 2,
		Enabled:            true,
	}

	require.NoError(t, dispatcher.WorkOnce(context.Background(), 1))
	require.Len(t, store.failed, 1)
	require.Equal(t, int64(3), store.failed[0].DelaySec)

	require.NoError(t, dispatcher.WorkOnce(context.Background(), 1))
	require.Len(t, store.dlq, 1)
}

type scheduleStore struct {
	endpoints []db.WebhookEndpoint
	enqueued  int
}

func (s *scheduleStore) CreateWebhookEndpoint(context.Context, db.CreateWebhookEndpointParams) (db.WebhookEndpoint, error) {
	return db.WebhookEndpoint{}, nil
}

func (s *scheduleStore) UpdateWebhookEndpoint(context.Context, db.UpdateWebhookEndpointParams) (db.WebhookEndpoint, error) {
	return db.WebhookEndpoint{}, nil
}

func (s *scheduleStore) GetWebhookEndpoint(context.Context, pgtype.UUID) (db.WebhookEndpoint, error) {
	return db.WebhookEndpoint{}, nil
}

func (s *scheduleStore) ListWebhookEndpoints(context.Context, db.ListWebhookEndpointsParams) ([]db.WebhookEndpoint, error) {
	return nil, nil
}

func (s *scheduleStore) CountWebhookEndpoints(context.Context) (int64, error) { return 0, nil }

func (s *scheduleStore) DeleteWebhookEndpoint(context.Context, pgtype.UUID) error { return nil }

func (s *scheduleStore) ListActiveEndpointsForTopic(context.Context, string) ([]db.WebhookEndpoint, error) {
	return s.endpoints, nil
}

func (s *scheduleStore) EnqueueDelivery(_ context.Context, arg db.EnqueueDeliveryParams) (db.WebhookDelivery, error) {
	s.enqueued++
	if s.enqueued == 1 {
		return db.WebhookDelivery{}, &pgconn.PgError{Code: "23505"}
	}
	return db.WebhookDelivery{ID: toUUID(uuid.New()), MaxAttempt: arg.MaxAttempt}, nil
}

func (s *scheduleStore) DequeueDueDeliveries(context.Context, int32) ([]db.WebhookDelivery, error) {
	return nil, nil
}
func (s *scheduleStore) ClaimWebhookDelivery(context.Context, pgtype.UUID) (db.WebhookDelivery, error) {
	return db.WebhookDelivery{}, nil
}
func (s *scheduleStore) MarkDelivered(context.Context, db.MarkDeliveredParams) error { return nil }
func (s *scheduleStore) MarkFailedWithBackoff(context.Context, db.MarkFailedWithBackoffParams) error {
	return nil
}
func (s *scheduleStore) MoveToDLQ(context.Context, db.MoveToDLQParams) error { return nil }
func (s *scheduleStore) InsertWebhookDlq(context.Context, db.InsertWebhookDlqParams) (db.WebhookDlq, error) {
	return db.WebhookDlq{}, nil
}
func (s *scheduleStore) GetWebhookDelivery(context.Context, pgtype.UUID) (db.WebhookDelivery, error) {
	return db.WebhookDelivery{}, nil
}
func (s *scheduleStore) ResetDeliveryForReplay(context.Context, pgtype.UUID) (db.WebhookDelivery, error) {
	return db.WebhookDelivery{}, nil
}
func (s *scheduleStore) DeleteDlqByDelivery(context.Context, pgtype.UUID) error { return nil }
func (s *scheduleStore) ListWebhookDeliveries(context.Context, db.ListWebhookDeliveriesParams) ([]db.WebhookDelivery, error) {
	return nil, nil
}
func (s *scheduleStore) CountWebhookDeliveries(context.Context, db.ListWebhookDeliveriesParams) (int64, error) {
	return 0, nil
}
func (s *scheduleStore) GetDomainEvent(context.Context, pgtype.UUID) (db.DomainEvent, error) {
	return db.DomainEvent{}, nil
}

func TestIdempotencyUniqueDelivery(t *testing.T) {
	store := &scheduleStore{endpoints: []db.WebhookEndpoint{{ID: toUUID(uuid.New())}, {ID: toUUID(uuid.New())}}}
	dispatcher := &notify.Dispatcher{
		Store: store,
		HTTP: &resilience.HTTPClient{
			Client:      http.DefaultClient,
			Breaker:     resilience.NewBreaker(1, 1, time.Second),
			MaxAttempts: 1,
			Timeout:     time.Second,
			Target:      "webhook-delivery",
		},
		Enabled: true,
	}
	event := db.DomainEvent{ID: toUUID(uuid.New()), Topic: "billing.stock.low"}

	err := dispatcher.Schedule(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, 2, store.enqueued)
}

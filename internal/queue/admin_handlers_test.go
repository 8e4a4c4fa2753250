package queue_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/queue"
)

func seedDLQEntry(t *testing.T, store *memoryStore, kind, key string) queue.DLQEntry {
	t.Helper()
	raw, err := json.Marshal(struct {
		Kind        string `json:"kind"`
		Key         string `json:"key"`
		Payload     []byte `json:"payload"`
		Attempt     int    `json:"attempt"`
		MaxAttempts int    `json:"max_attempts"`
		AvailableAt int64  `json:"available_at"`
	}{
		Kind:        kind,
		Key:         key,
		Payload:     []byte("delivery-id"),
		Attempt:     2,
		MaxAttempts: 3,
		AvailableAt: time.Now().UnixNano(),
	})
	require.NoError(t, err)

	entry := queue.DLQEntry{
		Kind:           kind,
		IdempotencyKey: key,
		Payload:        raw,
		Attempts:       2,
		CreatedAt:      time.Now(),
	}
	entry.ID, err = store.InsertQueueDlq(context.Background(), entry)
	require.NoError(t, err)
	return entry
}

func TestReplayDLQByID(t *testing.T) {
	client := newQueueClient(t)
	store := newMemoryStore()
	handler := queue.AdminHandler{
		Store:             store,
		Queue:             queue.Enqueuer{R: client, Prefix: "adm", DedupTTL: time.Minute, MaxAttempts: 5},
		PageSize:          10,
		VisibilityTimeout: 60 * time.Second,
	}

	entry := seedDLQEntry(t, store, "webhook", "dlq1")

	body := bytes.NewBufferString(`{"ids":["` + entry.ID.String() + `"]}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/queue/dlq/replay", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	handler.ReplayDLQ(rr, req)

	res := rr.Result()
	require.Equal(t, http.StatusOK, res.StatusCode)
	defer func() { _ = res.Body.Close() }()

	var resp struct {
		Replayed []string          `json:"replayed"`
		Failed   map[string]string `json:"failed"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	require.Contains(t, resp.Replayed, entry.ID.String())
	require.Empty(t, resp.Failed)

	// Task is back on the ready queue and gone from the DLQ.
	depth, err := client.ZCard(context.Background(), "adm:queue:webhook").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	_, err = store.GetQueueDlq(context.Background(), entry.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListDLQFiltersByKind(t *testing.T) {
	client := newQueueClient(t)
	store := newMemoryStore()
	handler := queue.AdminHandler{
		Store:    store,
		Queue:    queue.Enqueuer{R: client, Prefix: "adm"},
		PageSize: 10,
	}

	seedDLQEntry(t, store, "webhook", "w1")
	seedDLQEntry(t, store, "webhook", "w2")
	seedDLQEntry(t, store, "email", "e1")

	rr := httptest.NewRecorder()
	handler.ListDLQ(rr, httptest.NewRequest(http.MethodGet, "/admin/queue/dlq?kind=webhook", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data  []map[string]any `json:"data"`
		Total int64            `json:"total"`
		Kind  string           `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, int64(2), resp.Total)
	require.Equal(t, "webhook", resp.Kind)
	require.Len(t, resp.Data, 2)
	for _, item := range resp.Data {
		require.Equal(t, "webhook", item["kind"])
	}
}

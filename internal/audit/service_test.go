package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/db"
	"github.com/noah-isme/backend-billing/internal/obs"
)

type stubStore struct {
	lastInsert db.InsertAuditLogParams
	called     bool
}

func (s *stubStore) InsertAuditLog(_ context.Context, arg db.InsertAuditLogParams) (db.AuditLog, error) {
	s.called = true
	s.lastInsert = arg
	return db.AuditLog{}, nil
}

func (s *stubStore) ListAuditLogs(context.Context, db.ListAuditLogsParams) ([]db.AuditLog, error) {
	return nil, nil
}

func (s *stubStore) CountAuditLogs(context.Context) (int64, error) { return 0, nil }

func TestServiceRecord(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true, SamplingRate: 1}
	operatorID := "operator-9"

	req := httptest.NewRequest(http.MethodPost, "https://api.test/api/v1/admin/webhooks?active=true", nil)
	req.Header.Set("X-Request-ID", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	ctx := common.WithActorID(req.Context(), operatorID)
	ctx = obs.WithRoutePattern(ctx, "/api/v1/admin/webhooks")
	req = req.WithContext(ctx)

	if err := svc.Record(req.Context(), Actor{Kind: ActorKindOperator, ID: &operatorID}, "", "", "", req, http.StatusCreated, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if !store.called {
		t.Fatal("expected store to be called")
	}
	if store.lastInsert.ActorKind != string(ActorKindOperator) {
		t.Fatalf("unexpected actor kind: %s", store.lastInsert.ActorKind)
	}
	if !store.lastInsert.ActorID.Valid || store.lastInsert.ActorID.String != operatorID {
		t.Fatalf("unexpected stored actor id: %+v", store.lastInsert.ActorID)
	}
	if store.lastInsert.Action != "POST /api/v1/admin/webhooks" {
		t.Fatalf("unexpected action: %s", store.lastInsert.Action)
	}
	if !store.lastInsert.TargetKind.Valid || store.lastInsert.TargetKind.String != "admin.webhooks" {
		t.Fatalf("unexpected target kind: %+v", store.lastInsert.TargetKind)
	}
	if store.lastInsert.Status != int32(http.StatusCreated) {
		t.Fatalf("unexpected status: %d", store.lastInsert.Status)
	}
	if len(store.lastInsert.Metadata) == 0 {
		t.Fatal("expected metadata to be set")
	}
	var meta map[string]string
	if err := json.Unmarshal(store.lastInsert.Metadata, &meta); err != nil {
		t.Fatalf("metadata json: %v", err)
	}
	if meta["query"] != "active=true" {
		t.Fatalf("unexpected metadata query: %s", meta["query"])
	}
	if meta["ip"] != "10.0.0.2" {
		t.Fatalf("unexpected metadata ip: %s", meta["ip"])
	}
	if meta["requestId"] != "req-123" {
		t.Fatalf("unexpected metadata request id: %s", meta["requestId"])
	}
}

func TestServiceRecordDisabled(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: false}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := svc.Record(req.Context(), Actor{}, "", "", "", req, http.StatusOK, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if store.called {
		t.Fatal("expected no insert when disabled")
	}
}

func TestServiceRecordAnonymousFallback(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true}
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/salespeople/abc", nil)
	if err := svc.Record(req.Context(), Actor{Kind: "ghost"}, "", "", "abc", req, http.StatusNoContent, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if store.lastInsert.ActorKind != string(ActorKindAnonymous) {
		t.Fatalf("unexpected actor kind: %s", store.lastInsert.ActorKind)
	}
	if !store.lastInsert.TargetID.Valid || store.lastInsert.TargetID.String != "abc" {
		t.Fatalf("unexpected target id: %+v", store.lastInsert.TargetID)
	}
}

package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/db"
)

type fakeLedgerQueries struct {
	movements []db.StockMovement
}

func (f *fakeLedgerQueries) ListStockMovementsForProduct(_ context.Context, arg db.ListStockMovementsParams) ([]db.StockMovement, error) {
	var out []db.StockMovement
	for _, m := range f.movements {
		if m.ProductID == arg.ProductID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeLedgerQueries) CountStockMovementsForProduct(_ context.Context, productID pgtype.UUID) (int64, error) {
	var n int64
	for _, m := range f.movements {
		if m.ProductID == productID {
			n++
		}
	}
	return n, nil
}

func TestMovementsEndpoint(t *testing.T) {
	productID := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	otherID := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	q := &fakeLedgerQueries{movements: []db.StockMovement{
		{
			ID:             pgtype.UUID{Bytes: uuid.New(), Valid: true},
			ProductID:      productID,
			ChangeType:     "sale",
			QuantityBefore: 10,
			QuantityAfter:  7,
			CreatedBy:      "operator-1",
			CreatedAt:      pgtype.Timestamptz{Time: time.Now(), Valid: true},
		},
		{
			ID:         pgtype.UUID{Bytes: uuid.New(), Valid: true},
			ProductID:  otherID,
			ChangeType: "sale",
			CreatedBy:  "operator-2",
		},
	}}
	h := &Handler{Svc: &Service{Q: q}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+uuidToString(productID)+"/movements", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("productID", uuidToString(productID))
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	h.Movements(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	require.Contains(t, rec.Body.String(), `"createdBy":"operator-1"`)
	require.NotContains(t, rec.Body.String(), "operator-2", "other products' movements must not leak in")
}

func TestMovementsEndpointRejectsBadID(t *testing.T) {
	h := &Handler{Svc: &Service{Q: &fakeLedgerQueries{}}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/nope/movements", nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("productID", "nope")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	h.Movements(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

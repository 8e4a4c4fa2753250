package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/db"
)

type fakeCatalogQueries struct {
	products  map[pgtype.UUID]*db.Product
	movements []db.StockMovement // guards against stray ledger writes
	listCalls int
}

func newFakeCatalogQueries() *fakeCatalogQueries {
	return &fakeCatalogQueries{products: map[pgtype.UUID]*db.Product{}}
}

func (f *fakeCatalogQueries) CreateProduct(_ context.Context, arg db.CreateProductParams) (db.Product, error) {
	p := db.Product{
		ID:                 pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Name:               arg.Name,
		HSNCode:            arg.HSNCode,
		ListPrice:          arg.ListPrice,
		DefaultDiscountBps: arg.DefaultDiscountBps,
		TaxRateBps:         arg.TaxRateBps,
		CurrentStock:       arg.CurrentStock,
		MinStock:           arg.MinStock,
		Unit:               arg.Unit,
		BatchNo:            arg.BatchNo,
		ExpiryDate:         arg.ExpiryDate,
		CreatedAt:          pgtype.Timestamptz{Time: time.Now(), Valid: true},
		UpdatedAt:          pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	f.products[p.ID] = &p
	return p, nil
}

func (f *fakeCatalogQueries) UpdateProduct(_ context.Context, arg db.UpdateProductParams) (db.Product, error) {
	p, ok := f.products[arg.ID]
	if !ok {
		return db.Product{}, pgx.ErrNoRows
	}
	p.Name = arg.Name
	p.HSNCode = arg.HSNCode
	p.ListPrice = arg.ListPrice
	p.DefaultDiscountBps = arg.DefaultDiscountBps
	p.TaxRateBps = arg.TaxRateBps
	p.CurrentStock = arg.CurrentStock
	p.MinStock = arg.MinStock
	p.Unit = arg.Unit
	p.BatchNo = arg.BatchNo
	p.ExpiryDate = arg.ExpiryDate
	return *p, nil
}

func (f *fakeCatalogQueries) GetProduct(_ context.Context, id pgtype.UUID) (db.Product, error) {
	if p, ok := f.products[id]; ok {
		return *p, nil
	}
	return db.Product{}, pgx.ErrNoRows
}

func (f *fakeCatalogQueries) GetProductForUpdate(ctx context.Context, id pgtype.UUID) (db.Product, error) {
	return f.GetProduct(ctx, id)
}

func (f *fakeCatalogQueries) DecrementProductStock(_ context.Context, arg db.DecrementProductStockParams) (db.Product, error) {
	p, ok := f.products[arg.ID]
	if !ok {
		return db.Product{}, pgx.ErrNoRows
	}
	p.CurrentStock -= arg.Quantity
	return *p, nil
}

func (f *fakeCatalogQueries) CreateStockMovement(_ context.Context, arg db.CreateStockMovementParams) (db.StockMovement, error) {
	m := db.StockMovement{
		ID:             pgtype.UUID{Bytes: uuid.New(), Valid: true},
		ProductID:      arg.ProductID,
		ChangeType:     arg.ChangeType,
		QuantityBefore: arg.QuantityBefore,
		QuantityAfter:  arg.QuantityAfter,
		CreatedBy:      arg.CreatedBy,
	}
	f.movements = append(f.movements, m)
	return m, nil
}

func (f *fakeCatalogQueries) ListProducts(_ context.Context, arg db.ListProductsParams) ([]db.Product, error) {
	f.listCalls++
	var out []db.Product
	for _, p := range f.products {
		out = append(out, *p)
	}
	if int(arg.Offset) >= len(out) {
		return nil, nil
	}
	end := int(arg.Offset + arg.Limit)
	if end > len(out) {
		end = len(out)
	}
	return out[arg.Offset:end], nil
}

func (f *fakeCatalogQueries) CountProducts(_ context.Context) (int64, error) {
	return int64(len(f.products)), nil
}

func (f *fakeCatalogQueries) ListLowStockProducts(_ context.Context) ([]db.Product, error) {
	var out []db.Product
	for _, p := range f.products {
		if p.CurrentStock <= p.MinStock {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeRunner struct {
	q *fakeCatalogQueries
}

func (r fakeRunner) InTx(_ context.Context, fn func(q queryProvider) error) error {
	return fn(r.q)
}

func newTestHandler(t *testing.T, q *fakeCatalogQueries, cache *Cache) *Handler {
	t.Helper()
	svc, err := NewService(ServiceConfig{Queries: q, Tx: fakeRunner{q: q}, Cache: cache, DefaultLimit: 20, MaxLimit: 100, DefaultDiscountBps: 5500})
	require.NoError(t, err)
	return NewHandler(HandlerConfig{Service: svc, Validate: validator.New()})
}

func seedProduct(q *fakeCatalogQueries, name string, stock, minStock int32) pgtype.UUID {
	id := pgtype.UUID{Bytes: uuid.New(), Valid: true}
	q.products[id] = &db.Product{
		ID:           id,
		Name:         name,
		ListPrice:    10000,
		CurrentStock: stock,
		MinStock:     minStock,
		Unit:         "pcs",
	}
	return id
}

func withProductID(req *http.Request, id string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("productID", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestCreateProductEndpoint(t *testing.T) {
	q := newFakeCatalogQueries()
	h := newTestHandler(t, q, nil)

	body := `{"name":"Ring 22k","listPrice":12000,"defaultDiscountBps":5500,"taxRateBps":500,"currentStock":10,"minStock":2,"unit":"pcs","expiryDate":"2027-01-31"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.CreateProduct(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, q.products, 1)
	require.Contains(t, rec.Body.String(), `"name":"Ring 22k"`)
}

func TestCreateProductAppliesDefaultDiscount(t *testing.T) {
	q := newFakeCatalogQueries()
	h := newTestHandler(t, q, nil)

	body := `{"name":"Ring 22k","listPrice":12000,"taxRateBps":500,"currentStock":10,"minStock":2,"unit":"pcs"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.CreateProduct(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"defaultDiscountBps":5500`)

	// An explicit zero is an answer, not an omission.
	body = `{"name":"Coin","listPrice":8000,"defaultDiscountBps":0,"taxRateBps":300,"currentStock":5,"minStock":1,"unit":"pcs"}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString(body))
	rec = httptest.NewRecorder()
	h.CreateProduct(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"defaultDiscountBps":0`)
}

func TestCreateProductValidation(t *testing.T) {
	h := newTestHandler(t, newFakeCatalogQueries(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString(`{"listPrice":-1}`))
	rec := httptest.NewRecorder()
	h.CreateProduct(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListUsesCacheOnRepeat(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)

	q := newFakeCatalogQueries()
	seedProduct(q, "Chain", 5, 1)
	h := newTestHandler(t, q, cache)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		rec := httptest.NewRecorder()
		h.Products(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, 1, q.listCalls, "second request should come from cache")
}

func TestUpdateProductKeepsStock(t *testing.T) {
	q := newFakeCatalogQueries()
	id := seedProduct(q, "Chain", 7, 1)
	h := newTestHandler(t, q, nil)

	body := `{"name":"Chain 18k","listPrice":15000,"unit":"pcs","currentStock":999,"minStock":1}`
	req := withProductID(httptest.NewRequest(http.MethodPut, "/api/v1/products/"+uuidString(id), bytes.NewBufferString(body)), uuidString(id))
	rec := httptest.NewRecorder()
	h.UpdateProduct(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Chain 18k", q.products[id].Name)
	// stock edits must go through the ledger, not product update
	require.Equal(t, int32(7), q.products[id].CurrentStock)
}

func TestAdjustStockLeavesLedgerAlone(t *testing.T) {
	q := newFakeCatalogQueries()
	id := seedProduct(q, "Chain", 7, 1)
	h := newTestHandler(t, q, nil)

	req := withProductID(httptest.NewRequest(http.MethodPost, "/api/v1/products/"+uuidString(id)+"/stock", bytes.NewBufferString(`{"currentStock":12}`)), uuidString(id))
	rec := httptest.NewRecorder()
	h.AdjustStock(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int32(12), q.products[id].CurrentStock)
	// Movement rows are invoice-attributed sales only; a manual correction
	// must never forge one.
	require.Empty(t, q.movements)
}

func TestLowStockEndpoint(t *testing.T) {
	q := newFakeCatalogQueries()
	seedProduct(q, "Plenty", 50, 2)
	seedProduct(q, "Scarce", 1, 2)
	h := newTestHandler(t, q, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/low-stock", nil)
	rec := httptest.NewRecorder()
	h.LowStock(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data []Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	require.Equal(t, "Scarce", envelope.Data[0].Name)
}

func TestProductEndpointRejectsBadID(t *testing.T) {
	h := newTestHandler(t, newFakeCatalogQueries(), nil)
	req := withProductID(httptest.NewRequest(http.MethodGet, "/api/v1/products/nope", nil), "nope")
	rec := httptest.NewRecorder()
	h.Product(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

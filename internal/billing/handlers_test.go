package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/common"
)

func newTestHandler(q *fakeQueries) *Handler {
	return &Handler{Svc: newTestService(q, &memoryEventStore{}), Validate: common.NewValidator()}
}

func decodeData(t *testing.T, body *bytes.Buffer) map[string]any {
	t.Helper()
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(body.Bytes(), &envelope))
	data, ok := envelope["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %s", body.String())
	return data
}

func TestPriceLineEndpoint(t *testing.T) {
	q := newFakeQueries()
	productID := seedProduct(q, "Ring", 12000, 5500, 10, 2)
	h := newTestHandler(q)

	payload := fmt.Sprintf(`{"productId":%q,"quantity":2}`, uuidString(productID))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/price", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	h.PriceLine(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec.Body)
	require.Equal(t, float64(5400), data["rate"])
	require.Equal(t, float64(10800), data["amount"])
}

func TestPriceLineRejectsBadPayload(t *testing.T) {
	h := newTestHandler(newFakeQueries())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/price", bytes.NewBufferString(`{"quantity":0}`))
	rec := httptest.NewRecorder()
	h.PriceLine(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPreviewEndpoint(t *testing.T) {
	q := newFakeQueries()
	productID := seedProduct(q, "Coin", 10100, 0, 5, 0)
	h := newTestHandler(q)

	payload := fmt.Sprintf(`{"lines":[{"productId":%q,"quantity":1}],"taxed":true,"buyerGstin":"19AAACB1234F1Z5"}`, uuidString(productID))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/preview", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	h.Preview(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec.Body)
	totals, ok := data["totals"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(505), totals["totalTax"])
	require.Equal(t, float64(252), totals["cgst"])
	require.Equal(t, float64(253), totals["sgst"])
	require.Equal(t, float64(10600), totals["grandTotal"])
	require.NotEmpty(t, totals["amountInWords"])
}

func TestCommitEndpoint(t *testing.T) {
	q := newFakeQueries()
	productID := seedProduct(q, "Bangle", 10000, 0, 10, 2)
	spID := seedSalesperson(q, "Asha", true)
	h := newTestHandler(q)

	payload := fmt.Sprintf(`{
		"lines":[{"productId":%q,"quantity":3}],
		"buyer":{"name":"Walk In","phone":"9876543210"},
		"salespersonId":%q,
		"taxed":false,
		"paymentMode":"CASH"
	}`, uuidString(productID), uuidString(spID))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	h.Commit(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := decodeData(t, rec.Body)
	require.Equal(t, "NH/1/25-26", data["invoiceNo"])
	totals, ok := data["totals"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(30000), totals["grandTotal"])
	seller, ok := data["seller"].(map[string]any)
	require.True(t, ok, "invoice payload must carry the seller tax profile")
	require.Equal(t, "Noah Jewellers", seller["name"])
	require.Equal(t, "19AABCU9603R1ZM", seller["gstin"])
	require.Equal(t, "19", seller["stateCode"])
	require.Len(t, q.invoices, 1)
}

func TestCommitEndpointValidation(t *testing.T) {
	h := newTestHandler(newFakeQueries())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", bytes.NewBufferString(`{"lines":[]}`))
	rec := httptest.NewRecorder()
	h.Commit(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Empty(t, h.Svc.Q.(*fakeQueries).invoices)
}

func TestCommitEndpointRejectsBadPaymentModeAndGSTIN(t *testing.T) {
	q := newFakeQueries()
	productID := seedProduct(q, "Bangle", 10000, 0, 10, 2)
	spID := seedSalesperson(q, "Asha", true)
	h := newTestHandler(q)

	for _, body := range []string{
		fmt.Sprintf(`{"lines":[{"productId":%q,"quantity":1}],"buyer":{"name":"Walk In"},"salespersonId":%q,"paymentMode":"iou"}`,
			uuidString(productID), uuidString(spID)),
		fmt.Sprintf(`{"lines":[{"productId":%q,"quantity":1}],"buyer":{"name":"Walk In","gstin":"zz-garbage"},"salespersonId":%q,"paymentMode":"CASH"}`,
			uuidString(productID), uuidString(spID)),
	} {
		rec := httptest.NewRecorder()
		h.Commit(rec, httptest.NewRequest(http.MethodPost, "/api/v1/invoices", bytes.NewBufferString(body)))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
	}
	require.Empty(t, q.invoices)
}

func TestGetInvoiceEndpoint(t *testing.T) {
	q := newFakeQueries()
	productID := seedProduct(q, "Bangle", 10000, 0, 10, 2)
	spID := seedSalesperson(q, "Asha", true)
	h := newTestHandler(q)

	var cart Cart
	_, err := h.Svc.AddLine(context.Background(), &cart, productID, 1, nil)
	require.NoError(t, err)
	committed, err := h.Svc.Commit(context.Background(), CommitInput{
		Cart:          &cart,
		Buyer:         Buyer{Name: "Buyer"},
		SalespersonID: spID,
		PaymentMode:   "cash",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+uuidString(committed.Invoice.ID), nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("invoiceID", uuidString(committed.Invoice.ID))
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec.Body)
	require.Equal(t, committed.Invoice.InvoiceNo, data["invoiceNo"])
	lines, ok := data["lines"].([]any)
	require.True(t, ok)
	require.Len(t, lines, 1)
}

func TestLookupEndpoint(t *testing.T) {
	q := newFakeQueries()
	productID := seedProduct(q, "Bangle", 10000, 0, 10, 2)
	spID := seedSalesperson(q, "Asha", true)
	h := newTestHandler(q)

	var cart Cart
	_, err := h.Svc.AddLine(context.Background(), &cart, productID, 1, nil)
	require.NoError(t, err)
	committed, err := h.Svc.Commit(context.Background(), CommitInput{
		Cart:          &cart,
		Buyer:         Buyer{Name: "Buyer"},
		SalespersonID: spID,
		PaymentMode:   "cash",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/lookup?number="+committed.Invoice.InvoiceNo, nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/invoices/lookup?number=NH/404/25-26", nil)
	rec = httptest.NewRecorder()
	h.Lookup(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListInvoicesEndpoint(t *testing.T) {
	q := newFakeQueries()
	productID := seedProduct(q, "Bangle", 10000, 0, 10, 2)
	spID := seedSalesperson(q, "Asha", true)
	h := newTestHandler(q)

	for i := 0; i < 2; i++ {
		var cart Cart
		_, err := h.Svc.AddLine(context.Background(), &cart, productID, 1, nil)
		require.NoError(t, err)
		_, err = h.Svc.Commit(context.Background(), CommitInput{
			Cart:          &cart,
			Buyer:         Buyer{Name: "Buyer"},
			SalespersonID: spID,
			PaymentMode:   "cash",
		})
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices?page=1&perPage=10", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-Total-Count"))
}

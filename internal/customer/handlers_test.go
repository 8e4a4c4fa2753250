package customer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/db"
)

type fakeCustomerQueries struct {
	customers []db.Customer
}

func (f *fakeCustomerQueries) GetCustomer(_ context.Context, id pgtype.UUID) (db.Customer, error) {
	for _, c := range f.customers {
		if c.ID == id {
			return c, nil
		}
	}
	return db.Customer{}, pgx.ErrNoRows
}

func (f *fakeCustomerQueries) GetCustomerByPhone(_ context.Context, phone string) (db.Customer, error) {
	for _, c := range f.customers {
		if c.Phone.Valid && c.Phone.String == phone {
			return c, nil
		}
	}
	return db.Customer{}, pgx.ErrNoRows
}

func (f *fakeCustomerQueries) ListCustomers(_ context.Context, arg db.ListCustomersParams) ([]db.Customer, error) {
	if int(arg.Offset) >= len(f.customers) {
		return nil, nil
	}
	end := int(arg.Offset + arg.Limit)
	if end > len(f.customers) {
		end = len(f.customers)
	}
	return f.customers[arg.Offset:end], nil
}

func (f *fakeCustomerQueries) CountCustomers(_ context.Context) (int64, error) {
	return int64(len(f.customers)), nil
}

func seedCustomer(f *fakeCustomerQueries, name, phone string) db.Customer {
	c := db.Customer{
		ID:   pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Name: name,
	}
	if phone != "" {
		c.Phone = pgtype.Text{String: phone, Valid: true}
	}
	f.customers = append(f.customers, c)
	return c
}

func TestLookupByPhone(t *testing.T) {
	q := &fakeCustomerQueries{}
	seedCustomer(q, "Repeat Buyer", "9876543210")
	h := &Handler{Svc: &Service{Q: q}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/lookup?phone=9876543210", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Repeat Buyer")
}

func TestLookupByPhoneMissing(t *testing.T) {
	h := &Handler{Svc: &Service{Q: &fakeCustomerQueries{}}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/lookup?phone=0000000000", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/customers/lookup", nil)
	rec = httptest.NewRecorder()
	h.Lookup(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListCustomers(t *testing.T) {
	q := &fakeCustomerQueries{}
	seedCustomer(q, "One", "111")
	seedCustomer(q, "Two", "")
	h := &Handler{Svc: &Service{Q: q}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-Total-Count"))
}

// Package customer exposes the buyer directory. Buyers are created as a
// side effect of invoice commits; this package only reads and lists them.
package customer

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/db"
)

// Queries is the slice of the query layer the customer directory reads.
type Queries interface {
	GetCustomer(ctx context.Context, id pgtype.UUID) (db.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (db.Customer, error)
	ListCustomers(ctx context.Context, arg db.ListCustomersParams) ([]db.Customer, error)
	CountCustomers(ctx context.Context) (int64, error)
}

// Service reads the buyer directory.
type Service struct {
	Q Queries
}

// Customer is the public buyer payload.
type Customer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	GSTIN     string `json:"gstin,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Get fetches one buyer by id.
func (s *Service) Get(ctx context.Context, id pgtype.UUID) (Customer, error) {
	row, err := s.Q.GetCustomer(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, common.NewAppError("NOT_FOUND", "customer not found", http.StatusNotFound, err)
		}
		return Customer{}, common.NewAppError("STORAGE_FAILURE", "load customer", http.StatusInternalServerError, err)
	}
	return toCustomer(row), nil
}

// LookupByPhone finds the buyer carrying the exact phone number.
func (s *Service) LookupByPhone(ctx context.Context, phone string) (Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Customer{}, common.NewAppError("VALIDATION_ERROR", "phone is required", http.StatusUnprocessableEntity, nil)
	}
	row, err := s.Q.GetCustomerByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, common.NewAppError("NOT_FOUND", "customer not found", http.StatusNotFound, err)
		}
		return Customer{}, common.NewAppError("STORAGE_FAILURE", "lookup customer", http.StatusInternalServerError, err)
	}
	return toCustomer(row), nil
}

// List pages through buyers, newest first.
func (s *Service) List(ctx context.Context, limit, offset int32) ([]Customer, int64, error) {
	rows, err := s.Q.ListCustomers(ctx, db.ListCustomersParams{Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, common.NewAppError("STORAGE_FAILURE", "list customers", http.StatusInternalServerError, err)
	}
	total, err := s.Q.CountCustomers(ctx)
	if err != nil {
		return nil, 0, common.NewAppError("STORAGE_FAILURE", "count customers", http.StatusInternalServerError, err)
	}
	out := make([]Customer, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCustomer(row))
	}
	return out, total, nil
}

func toCustomer(row db.Customer) Customer {
	c := Customer{
		ID:   uuidString(row.ID),
		Name: row.Name,
	}
	if row.Phone.Valid {
		c.Phone = row.Phone.String
	}
	if row.Address.Valid {
		c.Address = row.Address.String
	}
	if row.GSTIN.Valid {
		c.GSTIN = row.GSTIN.String
	}
	if row.CreatedAt.Valid {
		c.CreatedAt = row.CreatedAt.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return c
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	v, err := id.Value()
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Package staff manages the selling roster referenced by invoices. Members
// are never deleted, only deactivated, so committed invoices keep their
// salesperson reference.
package staff

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

// Queries is the slice of the query layer the roster uses.
type Queries interface {
	CreateSalesperson(ctx context.Context, arg db.CreateSalespersonParams) (db.Salesperson, error)
	GetSalesperson(ctx context.Context, id pgtype.UUID) (db.Salesperson, error)
	ListSalespeople(ctx context.Context) ([]db.Salesperson, error)
	DeactivateSalesperson(ctx context.Context, id pgtype.UUID) (db.Salesperson, error)
}

// Service manages the roster.
type Service struct {
	Q Queries
}

// Salesperson is the public roster payload.
type Salesperson struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Create adds a member to the roster.
func (s *Service) Create(ctx context.Context, name, phone string) (Salesperson, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Salesperson{}, common.NewAppError("VALIDATION_ERROR", "name is required", http.StatusUnprocessableEntity, nil)
	}
	params := db.CreateSalespersonParams{Name: name}
	if phone = strings.TrimSpace(phone); phone != "" {
		params.Phone = pgtype.Text{String: phone, Valid: true}
	}
	row, err := s.Q.CreateSalesperson(ctx, params)
	if err != nil {
		return Salesperson{}, common.NewAppError("STORAGE_FAILURE", "create salesperson", http.StatusInternalServerError, err)
	}
	return toSalesperson(row), nil
}

// List returns the whole roster, active members first.
func (s *Service) List(ctx context.Context) ([]Salesperson, error) {
	rows, err := s.Q.ListSalespeople(ctx)
	if err != nil {
		return nil, common.NewAppError("STORAGE_FAILURE", "list salespeople", http.StatusInternalServerError, err)
	}
	out := make([]Salesperson, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSalesperson(row))
	}
	return out, nil
}

// Deactivate retires a member from active selling.
func (s *Service) Deactivate(ctx context.Context, id pgtype.UUID) (Salesperson, error) {
	row, err := s.Q.DeactivateSalesperson(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Salesperson{}, common.NewAppError("NOT_FOUND", "salesperson not found", http.StatusNotFound, err)
		}
		return Salesperson{}, common.NewAppError("STORAGE_FAILURE", "deactivate salesperson", http.StatusInternalServerError, err)
	}
	return toSalesperson(row), nil
}

func toSalesperson(row db.Salesperson) Salesperson {
	sp := Salesperson{
		ID:     uuidString(row.ID),
		Name:   row.Name,
		Active: row.Active,
	}
	if row.Phone.Valid {
		sp.Phone = row.Phone.String
	}
	if row.CreatedAt.Valid {
		sp.CreatedAt = row.CreatedAt.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return sp
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

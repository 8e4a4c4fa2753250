package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const salespersonColumns = `id, name, phone, active, created_at`

func scanSalesperson(row scanner) (Salesperson, error) {
	var s Salesperson
	err := row.Scan(&s.ID, &s.Name, &s.Phone, &s.Active, &s.CreatedAt)
	return s, err
}

// CreateSalespersonParams carries a new roster entry.
type CreateSalespersonParams struct {
	Name  string
	Phone pgtype.Text
}

// CreateSalesperson adds a member to the selling staff.
func (q *Queries) CreateSalesperson(ctx context.Context, arg CreateSalespersonParams) (Salesperson, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO salespeople (name, phone) VALUES ($1, $2)
		RETURNING `+salespersonColumns,
		arg.Name, arg.Phone,
	)
	return scanSalesperson(row)
}

// GetSalesperson fetches one roster entry by id.
func (q *Queries) GetSalesperson(ctx context.Context, id pgtype.UUID) (Salesperson, error) {
	row := q.db.QueryRow(ctx, `SELECT `+salespersonColumns+` FROM salespeople WHERE id = $1`, id)
	return scanSalesperson(row)
}

// ListSalespeople returns the roster, active entries first.
func (q *Queries) ListSalespeople(ctx context.Context) ([]Salesperson, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+salespersonColumns+` FROM salespeople ORDER BY active DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Salesperson
	for rows.Next() {
		s, err := scanSalesperson(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// DeactivateSalesperson removes a member from active selling without
// breaking historical invoice references.
func (q *Queries) DeactivateSalesperson(ctx context.Context, id pgtype.UUID) (Salesperson, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE salespeople SET active = false WHERE id = $1
		RETURNING `+salespersonColumns, id)
	return scanSalesperson(row)
}

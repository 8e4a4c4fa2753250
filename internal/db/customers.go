package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, name, phone, address, gstin, created_at, updated_at`

func scanCustomer(row scanner) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.GSTIN, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// UpsertCustomerParams carries the buyer fields captured at the counter.
type UpsertCustomerParams struct {
	Name    string
	Phone   pgtype.Text
	Address pgtype.Text
	GSTIN   pgtype.Text
}

// UpsertCustomerByPhone matches an existing buyer by phone and refreshes its
// fields, or inserts a new row. A null phone never conflicts, so walk-in
// buyers without a phone always insert.
func (q *Queries) UpsertCustomerByPhone(ctx context.Context, arg UpsertCustomerParams) (Customer, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO customers (name, phone, address, gstin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) WHERE phone IS NOT NULL DO UPDATE SET
			name = EXCLUDED.name,
			address = COALESCE(NULLIF(EXCLUDED.address, ''), customers.address),
			gstin = COALESCE(NULLIF(EXCLUDED.gstin, ''), customers.gstin),
			updated_at = now()
		RETURNING `+customerColumns,
		arg.Name, arg.Phone, arg.Address, arg.GSTIN,
	)
	return scanCustomer(row)
}

// GetCustomer fetches one buyer by id.
func (q *Queries) GetCustomer(ctx context.Context, id pgtype.UUID) (Customer, error) {
	row := q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

// GetCustomerByPhone fetches one buyer by exact phone match.
func (q *Queries) GetCustomerByPhone(ctx context.Context, phone string) (Customer, error) {
	row := q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone)
	return scanCustomer(row)
}

// ListCustomersParams pages through buyers.
type ListCustomersParams struct {
	Limit  int32
	Offset int32
}

// ListCustomers returns buyers ordered by most recent activity.
func (q *Queries) ListCustomers(ctx context.Context, arg ListCustomersParams) ([]Customer, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+customerColumns+` FROM customers ORDER BY updated_at DESC LIMIT $1 OFFSET $2`,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// CountCustomers returns the number of buyer records.
func (q *Queries) CountCustomers(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM customers`).Scan(&count)
	return count, err
}

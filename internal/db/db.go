// Package db is the hand-maintained query layer over pgx. Services hold a
// *Queries and rebind it to a transaction with WithTx inside commit units.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx alike.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// scanner lets row helpers accept pgx.Row and pgx.Rows alike.
type scanner interface {
	Scan(dest ...any) error
}

// Queries bundles every SQL statement the service issues.
type Queries struct {
	db DBTX
}

// New constructs a Queries bound to the given connection source.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the provided transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

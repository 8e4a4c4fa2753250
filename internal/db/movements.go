package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const movementColumns = `id, product_id, change_type, quantity_before, quantity_after,
	invoice_id, created_by, created_at`

func scanMovement(row scanner) (StockMovement, error) {
	var m StockMovement
	err := row.Scan(&m.ID, &m.ProductID, &m.ChangeType, &m.QuantityBefore, &m.QuantityAfter,
		&m.InvoiceID, &m.CreatedBy, &m.CreatedAt)
	return m, err
}

// CreateStockMovementParams captures one audited quantity change.
type CreateStockMovementParams struct {
	ProductID      pgtype.UUID
	ChangeType     string
	QuantityBefore int32
	QuantityAfter  int32
	InvoiceID      pgtype.UUID
	CreatedBy      string
}

// CreateStockMovement appends one ledger row. Rows are never updated or
// deleted afterwards.
func (q *Queries) CreateStockMovement(ctx context.Context, arg CreateStockMovementParams) (StockMovement, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO stock_movements (product_id, change_type, quantity_before, quantity_after,
			invoice_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+movementColumns,
		arg.ProductID, arg.ChangeType, arg.QuantityBefore, arg.QuantityAfter,
		arg.InvoiceID, arg.CreatedBy,
	)
	return scanMovement(row)
}

// ListStockMovementsParams pages through one product's ledger.
type ListStockMovementsParams struct {
	ProductID pgtype.UUID
	Limit     int32
	Offset    int32
}

// ListStockMovementsForProduct returns ledger rows, newest first.
func (q *Queries) ListStockMovementsForProduct(ctx context.Context, arg ListStockMovementsParams) ([]StockMovement, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+movementColumns+` FROM stock_movements
		WHERE product_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		arg.ProductID, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// CountStockMovementsForProduct returns the ledger length for one product.
func (q *Queries) CountStockMovementsForProduct(ctx context.Context, productID pgtype.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM stock_movements WHERE product_id = $1`, productID).Scan(&count)
	return count, err
}

// Package ledger exposes the append-only stock movement trail. Only the
// billing commit writes rows, so every movement carries the invoice that
// caused it; this package only ever reads them.
package ledger

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/db"
)

// Queries is the slice of the query layer the ledger reads from.
type Queries interface {
	ListStockMovementsForProduct(ctx context.Context, arg db.ListStockMovementsParams) ([]db.StockMovement, error)
	CountStockMovementsForProduct(ctx context.Context, productID pgtype.UUID) (int64, error)
}

// Service reads a product's movement history.
type Service struct {
	Q Queries
}

// MovementsFor returns one product's ledger page plus the total row count.
func (s *Service) MovementsFor(ctx context.Context, productID pgtype.UUID, limit, offset int32) ([]db.StockMovement, int64, error) {
	items, err := s.Q.ListStockMovementsForProduct(ctx, db.ListStockMovementsParams{
		ProductID: productID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, 0, common.NewAppError("STORAGE_FAILURE", "list stock movements", http.StatusInternalServerError, err)
	}
	total, err := s.Q.CountStockMovementsForProduct(ctx, productID)
	if err != nil {
		return nil, 0, common.NewAppError("STORAGE_FAILURE", "count stock movements", http.StatusInternalServerError, err)
	}
	return items, total, nil
}

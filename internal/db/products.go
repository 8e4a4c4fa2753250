package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, name, hsn_code, list_price, default_discount_bps, tax_rate_bps,
	current_stock, min_stock, unit, batch_no, expiry_date, created_at, updated_at`

func scanProduct(row scanner) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.Name, &p.HSNCode, &p.ListPrice, &p.DefaultDiscountBps, &p.TaxRateBps,
		&p.CurrentStock, &p.MinStock, &p.Unit, &p.BatchNo, &p.ExpiryDate, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// CreateProductParams carries the writable columns of a product.
type CreateProductParams struct {
	Name               string
	HSNCode            pgtype.Text
	ListPrice          int64
	DefaultDiscountBps int32
	TaxRateBps         int32
	CurrentStock       int32
	MinStock           int32
	Unit               string
	BatchNo            pgtype.Text
	ExpiryDate         pgtype.Date
}

// CreateProduct inserts a catalog item and returns the stored row.
func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO products (name, hsn_code, list_price, default_discount_bps, tax_rate_bps,
			current_stock, min_stock, unit, batch_no, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+productColumns,
		arg.Name, arg.HSNCode, arg.ListPrice, arg.DefaultDiscountBps, arg.TaxRateBps,
		arg.CurrentStock, arg.MinStock, arg.Unit, arg.BatchNo, arg.ExpiryDate,
	)
	return scanProduct(row)
}

// UpdateProductParams carries a full-row product update.
type UpdateProductParams struct {
	ID                 pgtype.UUID
	Name               string
	HSNCode            pgtype.Text
	ListPrice          int64
	DefaultDiscountBps int32
	TaxRateBps         int32
	CurrentStock       int32
	MinStock           int32
	Unit               string
	BatchNo            pgtype.Text
	ExpiryDate         pgtype.Date
}

// UpdateProduct rewrites the mutable columns of a product.
func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products SET name = $2, hsn_code = $3, list_price = $4, default_discount_bps = $5,
			tax_rate_bps = $6, current_stock = $7, min_stock = $8, unit = $9, batch_no = $10,
			expiry_date = $11, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		arg.ID, arg.Name, arg.HSNCode, arg.ListPrice, arg.DefaultDiscountBps,
		arg.TaxRateBps, arg.CurrentStock, arg.MinStock, arg.Unit, arg.BatchNo, arg.ExpiryDate,
	)
	return scanProduct(row)
}

// GetProduct fetches one product by id.
func (q *Queries) GetProduct(ctx context.Context, id pgtype.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// GetProductForUpdate fetches one product taking a row lock; used inside the
// commit transaction so stock checks and decrements cannot interleave.
func (q *Queries) GetProductForUpdate(ctx context.Context, id pgtype.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
	return scanProduct(row)
}

// DecrementProductStockParams identifies the product and the quantity sold.
type DecrementProductStockParams struct {
	ID       pgtype.UUID
	Quantity int32
}

// DecrementProductStock subtracts sold quantity and returns the updated row.
func (q *Queries) DecrementProductStock(ctx context.Context, arg DecrementProductStockParams) (Product, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE products SET current_stock = current_stock - $2, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		arg.ID, arg.Quantity,
	)
	return scanProduct(row)
}

// ListProductsParams pages through the catalog.
type ListProductsParams struct {
	Limit  int32
	Offset int32
}

// ListProducts returns catalog items ordered by name.
func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]Product, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+productColumns+` FROM products ORDER BY name LIMIT $1 OFFSET $2`,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// CountProducts returns the catalog size.
func (q *Queries) CountProducts(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&count)
	return count, err
}

// ListLowStockProducts returns items at or below their minimum stock.
func (q *Queries) ListLowStockProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE current_stock <= min_stock ORDER BY current_stock, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// Package catalog manages the sellable item list: CRUD, the cached public
// listing, low-stock reporting, and audited stock corrections.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/db"
	"github.com/noah-isme/backend-billing/internal/events"
)

type queryProvider interface {
	CreateProduct(ctx context.Context, arg db.CreateProductParams) (db.Product, error)
	UpdateProduct(ctx context.Context, arg db.UpdateProductParams) (db.Product, error)
	GetProduct(ctx context.Context, id pgtype.UUID) (db.Product, error)
	GetProductForUpdate(ctx context.Context, id pgtype.UUID) (db.Product, error)
	DecrementProductStock(ctx context.Context, arg db.DecrementProductStockParams) (db.Product, error)
	ListProducts(ctx context.Context, arg db.ListProductsParams) ([]db.Product, error)
	CountProducts(ctx context.Context) (int64, error)
	ListLowStockProducts(ctx context.Context) ([]db.Product, error)
}

type txRunner interface {
	InTx(ctx context.Context, fn func(q queryProvider) error) error
}

// PoolRunner is the production txRunner over a pgx pool.
type PoolRunner struct {
	Pool *pgxpool.Pool
	Q    *db.Queries
}

// InTx begins a transaction, runs fn with queries bound to it, and commits.
func (p PoolRunner) InTx(ctx context.Context, fn func(q queryProvider) error) error {
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(p.Q.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Emitter publishes catalog domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (db.DomainEvent, error)
}

// Service orchestrates catalog queries, DTO assembly, and caching.
type Service struct {
	queries         queryProvider
	tx              txRunner
	cache           *Cache
	bus             Emitter
	logger          zerolog.Logger
	defaultLimit    int
	maxLimit        int
	defaultDiscount int32
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries      queryProvider
	Tx           txRunner
	Cache        *Cache
	Bus          Emitter
	Logger       zerolog.Logger
	DefaultLimit int
	MaxLimit     int
	// DefaultDiscountBps is applied to new products that do not name
	// their own discount.
	DefaultDiscountBps int32
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		queries:         cfg.Queries,
		tx:              cfg.Tx,
		cache:           cfg.Cache,
		bus:             cfg.Bus,
		logger:          cfg.Logger,
		defaultLimit:    defaultLimit,
		maxLimit:        maxLimit,
		defaultDiscount: cfg.DefaultDiscountBps,
	}, nil
}

// Product is the public catalog payload. Prices are paise, percentages
// basis points.
type Product struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	HSNCode            *string `json:"hsnCode,omitempty"`
	ListPrice          int64   `json:"listPrice"`
	DefaultDiscountBps int32   `json:"defaultDiscountBps"`
	TaxRateBps         int32   `json:"taxRateBps"`
	CurrentStock       int32   `json:"currentStock"`
	MinStock           int32   `json:"minStock"`
	Unit               string  `json:"unit"`
	BatchNo            *string `json:"batchNo,omitempty"`
	ExpiryDate         *string `json:"expiryDate,omitempty"`
	CreatedAt          string  `json:"createdAt,omitempty"`
	UpdatedAt          string  `json:"updatedAt,omitempty"`
}

// ProductInput carries the writable product fields.
type ProductInput struct {
	Name               string `json:"name" validate:"required"`
	HSNCode            string `json:"hsnCode"`
	ListPrice          int64  `json:"listPrice" validate:"gte=0"`
	DefaultDiscountBps *int32 `json:"defaultDiscountBps" validate:"omitempty,gte=0,lte=10000"`
	TaxRateBps         int32  `json:"taxRateBps" validate:"gte=0,lte=10000"`
	CurrentStock       int32  `json:"currentStock" validate:"gte=0"`
	MinStock           int32  `json:"minStock" validate:"gte=0"`
	Unit               string `json:"unit" validate:"required"`
	BatchNo            string `json:"batchNo"`
	ExpiryDate         string `json:"expiryDate"`
}

// ListResult contains one catalog page and its total.
type ListResult struct {
	Items []Product
	Total int64
	Page  int
	Limit int
}

// Create inserts a product and drops the cached listing.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	expiry, err := parseExpiry(in.ExpiryDate)
	if err != nil {
		return Product{}, err
	}
	discount := s.defaultDiscount
	if in.DefaultDiscountBps != nil {
		discount = *in.DefaultDiscountBps
	}
	row, err := s.queries.CreateProduct(ctx, db.CreateProductParams{
		Name:               strings.TrimSpace(in.Name),
		HSNCode:            textOrNull(in.HSNCode),
		ListPrice:          in.ListPrice,
		DefaultDiscountBps: discount,
		TaxRateBps:         in.TaxRateBps,
		CurrentStock:       in.CurrentStock,
		MinStock:           in.MinStock,
		Unit:               strings.TrimSpace(in.Unit),
		BatchNo:            textOrNull(in.BatchNo),
		ExpiryDate:         expiry,
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	s.invalidate(ctx)
	return toProduct(row), nil
}

// Update rewrites the descriptive fields of a product. Stock is deliberately
// left alone: corrections go through AdjustStock so they are audited.
func (s *Service) Update(ctx context.Context, id pgtype.UUID, in ProductInput) (Product, error) {
	expiry, err := parseExpiry(in.ExpiryDate)
	if err != nil {
		return Product{}, err
	}
	existing, err := s.queries.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, notFound(err)
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	discount := existing.DefaultDiscountBps
	if in.DefaultDiscountBps != nil {
		discount = *in.DefaultDiscountBps
	}
	row, err := s.queries.UpdateProduct(ctx, db.UpdateProductParams{
		ID:                 id,
		Name:               strings.TrimSpace(in.Name),
		HSNCode:            textOrNull(in.HSNCode),
		ListPrice:          in.ListPrice,
		DefaultDiscountBps: discount,
		TaxRateBps:         in.TaxRateBps,
		CurrentStock:       existing.CurrentStock,
		MinStock:           in.MinStock,
		Unit:               strings.TrimSpace(in.Unit),
		BatchNo:            textOrNull(in.BatchNo),
		ExpiryDate:         expiry,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, notFound(err)
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	s.invalidate(ctx)
	return toProduct(row), nil
}

// Get fetches one product.
func (s *Service) Get(ctx context.Context, id pgtype.UUID) (Product, error) {
	row, err := s.queries.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, notFound(err)
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return toProduct(row), nil
}

// List returns one catalog page, serving the unfiltered first page from
// cache when possible.
func (s *Service) List(ctx context.Context, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	key, cacheable := s.listCacheKey(page, limit)
	if cacheable {
		var cached cachedList
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return ListResult{Items: cached.Items, Total: cached.Total, Page: page, Limit: limit}, nil
		}
	}

	total, err := s.queries.CountProducts(ctx)
	if err != nil {
		return ListResult{}, fmt.Errorf("count products: %w", err)
	}
	rows, err := s.queries.ListProducts(ctx, db.ListProductsParams{
		Limit:  int32(limit),
		Offset: int32((page - 1) * limit),
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("list products: %w", err)
	}
	items := make([]Product, 0, len(rows))
	for _, row := range rows {
		items = append(items, toProduct(row))
	}
	if cacheable {
		_ = s.cache.SetJSON(ctx, key, cachedList{Items: items, Total: total})
	}
	return ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// LowStock returns every product at or below its minimum stock.
func (s *Service) LowStock(ctx context.Context) ([]Product, error) {
	rows, err := s.queries.ListLowStockProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list low stock products: %w", err)
	}
	items := make([]Product, 0, len(rows))
	for _, row := range rows {
		items = append(items, toProduct(row))
	}
	return items, nil
}

// AdjustStock sets a product's stock to an absolute count. The movement
// ledger is left alone: its rows are invoice-attributed sales only, so a
// manual correction surfaces through the audit trail and the stock.adjusted
// event instead.
func (s *Service) AdjustStock(ctx context.Context, id pgtype.UUID, newStock int32, createdBy string) (Product, error) {
	if newStock < 0 {
		return Product{}, &common.AppError{
			Code: "VALIDATION_ERROR", Message: "stock cannot be negative",
			HTTPStatus: http.StatusUnprocessableEntity,
		}
	}
	if s.tx == nil {
		return Product{}, errors.New("catalog: tx runner not configured")
	}
	var updated db.Product
	err := s.tx.InTx(ctx, func(q queryProvider) error {
		before, err := q.GetProductForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return notFound(err)
			}
			return fmt.Errorf("lock product: %w", err)
		}
		updated, err = q.DecrementProductStock(ctx, db.DecrementProductStockParams{
			ID:       id,
			Quantity: before.CurrentStock - newStock,
		})
		if err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx)
	if s.bus != nil {
		if _, err := s.bus.Emit(ctx, events.TopicStockAdjusted, uuidString(id), map[string]any{
			"productName": updated.Name,
			"newStock":    updated.CurrentStock,
			"adjustedBy":  createdBy,
		}); err != nil {
			s.logger.Error().Err(err).Str("product", updated.Name).Msg("emit stock adjusted event")
		}
	}
	return toProduct(updated), nil
}

type cachedList struct {
	Items []Product `json:"items"`
	Total int64     `json:"total"`
}

func (s *Service) listCacheKey(page, limit int) (string, bool) {
	if s.cache == nil || page != 1 || limit != s.defaultLimit {
		return "", false
	}
	return "catalog:products:list:first", true
}

func (s *Service) invalidate(ctx context.Context) {
	key, _ := s.listCacheKey(1, s.defaultLimit)
	if key != "" {
		_ = s.cache.Delete(ctx, key)
	}
}

func toProduct(row db.Product) Product {
	p := Product{
		ID:                 uuidString(row.ID),
		Name:               row.Name,
		ListPrice:          row.ListPrice,
		DefaultDiscountBps: row.DefaultDiscountBps,
		TaxRateBps:         row.TaxRateBps,
		CurrentStock:       row.CurrentStock,
		MinStock:           row.MinStock,
		Unit:               row.Unit,
	}
	if row.HSNCode.Valid {
		v := row.HSNCode.String
		p.HSNCode = &v
	}
	if row.BatchNo.Valid {
		v := row.BatchNo.String
		p.BatchNo = &v
	}
	if row.ExpiryDate.Valid {
		v := row.ExpiryDate.Time.Format("2006-01-02")
		p.ExpiryDate = &v
	}
	if row.CreatedAt.Valid {
		p.CreatedAt = row.CreatedAt.Time.UTC().Format(time.RFC3339)
	}
	if row.UpdatedAt.Valid {
		p.UpdatedAt = row.UpdatedAt.Time.UTC().Format(time.RFC3339)
	}
	return p
}

func parseExpiry(raw string) (pgtype.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return pgtype.Date{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return pgtype.Date{}, &common.AppError{
			Code: "VALIDATION_ERROR", Message: "expiryDate must be YYYY-MM-DD",
			HTTPStatus: http.StatusUnprocessableEntity, Err: err,
		}
	}
	return pgtype.Date{Time: t, Valid: true}, nil
}

func textOrNull(v string) pgtype.Text {
	v = strings.TrimSpace(v)
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

func notFound(err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	u, err := uuid.FromBytes(id.Bytes[:])
	if err != nil {
		return ""
	}
	return u.String()
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/overbid/liveshow/internal/domain/models"
)

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListByShow(ctx context.Context, showID uuid.UUID) ([]*models.Product, error)
	SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error
}

type productRepo struct {
	db *sqlx.DB
}

func NewProductRepo(db *sqlx.DB) ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) Create(ctx context.Context, product *models.Product) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO products (id, show_id, name, base_price, pinned, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		product.ID,
		product.ShowID,
		product.Name,
		product.BasePrice,
		product.Pinned,
		product.CreatedAt,
		product.UpdatedAt,
	)

	return err
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product

	err := r.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, err
	}

	return &product, nil
}

func (r *productRepo) ListByShow(ctx context.Context, showID uuid.UUID) ([]*models.Product, error) {
	var products []*models.Product

	err := r.db.SelectContext(ctx, &products, "SELECT * FROM products WHERE show_id = $1 ORDER BY created_at", showID)
	if err != nil {
		return nil, err
	}

	return products, nil
}

func (r *productRepo) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	// At most one pinned product per show.
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE products SET pinned = (id = $1 AND $2), updated_at = $3 WHERE show_id = (SELECT show_id FROM products WHERE id = $1)",
		id,
		pinned,
		time.Now(),
	)

	return err
}

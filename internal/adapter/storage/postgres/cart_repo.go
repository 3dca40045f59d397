package postgres

import (
	"context"
	"errors"
	"fmt"

	"learncoins-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const cartJoinSelect = `SELECT c.id, c.user_id, c.product_id, c.quantity, c.price::text, c.created_at,
		p.id, p.name, p.description, p.price::text, p.stock, p.image_url, p.category, p.creator_id, p.created_at, p.updated_at
	FROM carts c JOIN products p ON p.id = c.product_id`

// CartRepo implements ports.CartRepository.
type CartRepo struct {
	pool Pool
}

// NewCartRepo creates a new CartRepo.
func NewCartRepo(pool Pool) *CartRepo {
	return &CartRepo{pool: pool}
}

// ListByUser returns the user's cart lines with their products, oldest line first.
func (r *CartRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.CartItem, error) {
	rows, err := r.pool.Query(ctx, cartJoinSelect+` WHERE c.user_id = $1 ORDER BY c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	return collectCartItems(rows)
}

// ListByUserForUpdate is ListByUser holding row locks on the cart lines.
func (r *CartRepo) ListByUserForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]domain.CartItem, error) {
	rows, err := tx.Query(ctx, cartJoinSelect+` WHERE c.user_id = $1 ORDER BY c.id FOR UPDATE OF c`, userID)
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	return collectCartItems(rows)
}

// GetByUserAndProduct fetches the user's line for a product, if any.
func (r *CartRepo) GetByUserAndProduct(ctx context.Context, userID uuid.UUID, productID int64) (*domain.CartItem, error) {
	query := `SELECT id, user_id, product_id, quantity, price::text, created_at
		FROM carts WHERE user_id = $1 AND product_id = $2`

	var (
		item  domain.CartItem
		price string
	)
	err := r.pool.QueryRow(ctx, query, userID, productID).
		Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &price, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart line: %w", err)
	}
	if item.PriceSnapshot, err = parseNumeric("price", price); err != nil {
		return nil, err
	}
	return &item, nil
}

// Upsert inserts a line or adds to the quantity of the existing one. The first
// price snapshot is kept.
func (r *CartRepo) Upsert(ctx context.Context, item *domain.CartItem) error {
	query := `INSERT INTO carts (user_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = carts.quantity + EXCLUDED.quantity
		RETURNING id, quantity, price::text, created_at`

	var price string
	err := r.pool.QueryRow(ctx, query, item.UserID, item.ProductID, item.Quantity, item.PriceSnapshot.String()).
		Scan(&item.ID, &item.Quantity, &price, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	if item.PriceSnapshot, err = parseNumeric("price", price); err != nil {
		return err
	}
	return nil
}

// Delete removes one line owned by userID.
func (r *CartRepo) Delete(ctx context.Context, userID uuid.UUID, itemID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return false, fmt.Errorf("delete cart line: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteByUser empties the user's cart within a transaction.
func (r *CartRepo) DeleteByUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func collectCartItems(rows pgx.Rows) ([]domain.CartItem, error) {
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var (
			item                    domain.CartItem
			p                       domain.Product
			snapshotPrice, curPrice string
		)
		err := rows.Scan(
			&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &snapshotPrice, &item.CreatedAt,
			&p.ID, &p.Name, &p.Description, &curPrice, &p.Stock, &p.ImageURL, &p.Category, &p.CreatorID,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart row: %w", err)
		}
		if item.PriceSnapshot, err = parseNumeric("cart price", snapshotPrice); err != nil {
			return nil, err
		}
		if p.Price, err = parseNumeric("product price", curPrice); err != nil {
			return nil, err
		}
		item.Product = &p
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart rows: %w", err)
	}
	return items, nil
}

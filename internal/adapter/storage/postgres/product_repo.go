package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const productColumns = `id, name, description, price::text, stock, image_url, category, creator_id, created_at, updated_at`

// ProductRepo implements ports.ProductRepository.
type ProductRepo struct {
	pool Pool
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(pool Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

// Create inserts a product and fills its generated columns.
func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	query := `INSERT INTO products (name, description, price, stock, image_url, category, creator_id)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		p.Name, p.Description, p.Price.String(), p.Stock, p.ImageURL, p.Category, p.CreatorID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID fetches a product by id.
func (r *ProductRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// List pages through the catalogue, newest first, optionally filtered by a search term.
func (r *ProductRepo) List(ctx context.Context, params ports.ProductListParams) ([]domain.Product, int64, error) {
	where := ""
	var args []any
	if q := strings.TrimSpace(params.Query); q != "" {
		where = `WHERE name ILIKE $1 OR description ILIKE $1`
		args = append(args, "%"+escapeLike(q)+"%")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	n := len(args)
	dataQuery := fmt.Sprintf(`SELECT %s FROM products %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		productColumns, where, n+1, n+2)
	args = append(args, params.PageSize, pageOffset(params.Page, params.PageSize))

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, params.PageSize)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, total, nil
}

// LockByIDs locks products in ascending id order for the rest of the transaction.
func (r *ProductRepo) LockByIDs(ctx context.Context, tx pgx.Tx, ids ...int64) (map[int64]*domain.Product, error) {
	rows, err := tx.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sortedUnique(ids))
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan locked product: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locked products: %w", err)
	}
	return out, nil
}

// DecrementStock removes quantity units. It never lets stock go negative.
func (r *ProductRepo) DecrementStock(ctx context.Context, tx pgx.Tx, productID int64, quantity int) error {
	query := `UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1`

	tag, err := tx.Exec(ctx, query, quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d not found or stock below %d", productID, quantity)
	}
	return nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.ImageURL, &p.Category,
		&p.CreatorID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Price, err = parseNumeric("price", price); err != nil {
		return nil, err
	}
	return &p, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

package postgres

import (
	"context"
	"fmt"

	"learncoins-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts the order and its line items within a transaction.
func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, total_amount, status) VALUES ($1, $2::numeric, $3) RETURNING id, created_at`,
		o.UserID, o.TotalAmount.String(), o.Status,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4::numeric) RETURNING id`,
			item.OrderID, item.ProductID, item.Quantity, item.UnitPrice.String(),
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// ListByUser pages through the user's orders, newest first, with their items.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.Order, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, total_amount::text, status, created_at FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, pageSize, pageOffset(page, pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0, pageSize)
	index := make(map[int64]int)
	var ids []int64
	for rows.Next() {
		var (
			o      domain.Order
			amount string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &amount, &o.Status, &o.CreatedAt); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		if o.TotalAmount, err = parseNumeric("total_amount", amount); err != nil {
			rows.Close()
			return nil, 0, err
		}
		o.Items = []domain.OrderItem{}
		index[o.ID] = len(orders)
		ids = append(ids, o.ID)
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	if len(ids) == 0 {
		return orders, total, nil
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price::text FROM order_items WHERE order_id = ANY($1) ORDER BY id`,
		ids)
	if err != nil {
		return nil, 0, fmt.Errorf("list order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			item  domain.OrderItem
			price string
		)
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &price); err != nil {
			return nil, 0, fmt.Errorf("scan order item row: %w", err)
		}
		if item.UnitPrice, err = parseNumeric("unit_price", price); err != nil {
			return nil, 0, err
		}
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order item rows: %w", err)
	}
	return orders, total, nil
}

package memory

import (
	"context"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	s *Store
}

// NewOrderRepo creates an OrderRepo over the store.
func NewOrderRepo(s *Store) *OrderRepo {
	return &OrderRepo{s: s}
}

var _ ports.OrderRepository = (*OrderRepo)(nil)

func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	if err := r.s.checkUnit(tx); err != nil {
		return err
	}
	r.s.data.orderSeq++
	o.ID = r.s.data.orderSeq
	o.CreatedAt = r.s.now()
	for i := range o.Items {
		r.s.data.orderItemSeq++
		o.Items[i].ID = r.s.data.orderItemSeq
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	stored.Items = append([]domain.OrderItem(nil), o.Items...)
	r.s.data.orders = append(r.s.data.orders, stored)
	return nil
}

// ListByUser returns the user's orders newest first.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []domain.Order
	for i := len(r.s.data.orders) - 1; i >= 0; i-- {
		o := r.s.data.orders[i]
		if o.UserID == userID {
			o.Items = append([]domain.OrderItem{}, o.Items...)
			matched = append(matched, o)
		}
	}

	start, end := paginate(len(matched), page, pageSize)
	return append([]domain.Order{}, matched[start:end]...), int64(len(matched)), nil
}

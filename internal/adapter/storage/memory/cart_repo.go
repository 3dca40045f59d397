package memory

import (
	"context"
	"sort"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CartRepo implements ports.CartRepository.
type CartRepo struct {
	s *Store
}

// NewCartRepo creates a CartRepo over the store.
func NewCartRepo(s *Store) *CartRepo {
	return &CartRepo{s: s}
}

var _ ports.CartRepository = (*CartRepo)(nil)

func (r *CartRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.lines(userID), nil
}

func (r *CartRepo) ListByUserForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]domain.CartItem, error) {
	if err := r.s.checkUnit(tx); err != nil {
		return nil, err
	}
	return r.lines(userID), nil
}

// lines joins the user's cart with products, oldest line first.
func (r *CartRepo) lines(userID uuid.UUID) []domain.CartItem {
	items := []domain.CartItem{}
	for _, item := range r.s.data.cart {
		if item.UserID != userID {
			continue
		}
		if p, ok := r.s.data.products[item.ProductID]; ok {
			item.Product = &p
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (r *CartRepo) GetByUserAndProduct(ctx context.Context, userID uuid.UUID, productID int64) (*domain.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, item := range r.s.data.cart {
		if item.UserID == userID && item.ProductID == productID {
			return &item, nil
		}
	}
	return nil, nil
}

func (r *CartRepo) Upsert(ctx context.Context, item *domain.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, existing := range r.s.data.cart {
		if existing.UserID == item.UserID && existing.ProductID == item.ProductID {
			existing.Quantity += item.Quantity
			r.s.data.cart[id] = existing
			item.ID = existing.ID
			item.Quantity = existing.Quantity
			item.PriceSnapshot = existing.PriceSnapshot
			item.CreatedAt = existing.CreatedAt
			return nil
		}
	}

	r.s.data.cartSeq++
	item.ID = r.s.data.cartSeq
	item.CreatedAt = r.s.now()
	stored := *item
	stored.Product = nil
	r.s.data.cart[item.ID] = stored
	return nil
}

func (r *CartRepo) Delete(ctx context.Context, userID uuid.UUID, itemID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	item, ok := r.s.data.cart[itemID]
	if !ok || item.UserID != userID {
		return false, nil
	}
	delete(r.s.data.cart, itemID)
	return true, nil
}

func (r *CartRepo) DeleteByUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	if err := r.s.checkUnit(tx); err != nil {
		return err
	}
	for id, item := range r.s.data.cart {
		if item.UserID == userID {
			delete(r.s.data.cart, id)
		}
	}
	return nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// ProductRepo implements ports.ProductRepository.
type ProductRepo struct {
	s *Store
}

// NewProductRepo creates a ProductRepo over the store.
func NewProductRepo(s *Store) *ProductRepo {
	return &ProductRepo{s: s}
}

var _ ports.ProductRepository = (*ProductRepo)(nil)

func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.data.productSeq++
	now := r.s.now()
	p.ID = r.s.data.productSeq
	p.CreatedAt = now
	p.UpdatedAt = now
	r.s.data.products[p.ID] = *p
	return nil
}

func (r *ProductRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.data.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *ProductRepo) List(ctx context.Context, params ports.ProductListParams) ([]domain.Product, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(params.Query))
	var matched []domain.Product
	for _, p := range r.s.data.products {
		if q == "" || strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Description), q) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	start, end := paginate(len(matched), params.Page, params.PageSize)
	return append([]domain.Product{}, matched[start:end]...), int64(len(matched)), nil
}

func (r *ProductRepo) LockByIDs(ctx context.Context, tx pgx.Tx, ids ...int64) (map[int64]*domain.Product, error) {
	if err := r.s.checkUnit(tx); err != nil {
		return nil, err
	}
	out := make(map[int64]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.s.data.products[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (r *ProductRepo) DecrementStock(ctx context.Context, tx pgx.Tx, productID int64, quantity int) error {
	if err := r.s.checkUnit(tx); err != nil {
		return err
	}
	p, ok := r.s.data.products[productID]
	if !ok || p.Stock < quantity {
		return fmt.Errorf("product %d not found or stock below %d", productID, quantity)
	}
	p.Stock -= quantity
	p.UpdatedAt = r.s.now()
	r.s.data.products[productID] = p
	return nil
}

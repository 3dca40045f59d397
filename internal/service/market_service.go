package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxProductNameLen = 100

// MarketServiceImpl implements ports.MarketService. It never touches
// balances; checkout belongs to the ledger.
type MarketServiceImpl struct {
	products ports.ProductRepository
	cart     ports.CartRepository
	orders   ports.OrderRepository
	log      zerolog.Logger
}

// NewMarketService creates a new MarketServiceImpl.
func NewMarketService(
	products ports.ProductRepository,
	cart ports.CartRepository,
	orders ports.OrderRepository,
	log zerolog.Logger,
) *MarketServiceImpl {
	return &MarketServiceImpl{products: products, cart: cart, orders: orders, log: log}
}

func (s *MarketServiceImpl) ListProducts(ctx context.Context, params ports.ProductListParams) ([]domain.Product, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	params.Query = strings.TrimSpace(params.Query)

	products, total, err := s.products.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list products: %w", err))
	}
	return products, total, nil
}

func (s *MarketServiceImpl) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get product: %w", err))
	}
	if product == nil {
		return nil, apperror.ErrNotFound("Product")
	}
	return product, nil
}

// CreateProduct adds a catalogue item. Only teachers and admins may.
func (s *MarketServiceImpl) CreateProduct(ctx context.Context, actor domain.Principal, req ports.CreateProductRequest) (*domain.Product, error) {
	if !actor.CanManageProducts() {
		return nil, apperror.ErrForbidden()
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxProductNameLen {
		return nil, apperror.Validation("Product name must be 1 to 100 characters")
	}
	if !domain.ValidAmount(req.Price) {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Stock < 0 {
		return nil, apperror.Validation("Stock cannot be negative")
	}

	product := &domain.Product{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
		Category:    strings.TrimSpace(req.Category),
		CreatorID:   actor.UserID,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create product: %w", err))
	}

	s.log.Info().
		Int64("product_id", product.ID).
		Str("creator_id", actor.UserID.String()).
		Str("price", product.Price.String()).
		Msg("product created")

	return product, nil
}

func (s *MarketServiceImpl) GetCart(ctx context.Context, userID uuid.UUID) ([]domain.CartItem, error) {
	items, err := s.cart.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list cart: %w", err))
	}
	return items, nil
}

// AddToCart adds quantity of a product, merging with an existing line.
// The stock check covers the cumulative quantity. Stock is not reserved.
func (s *MarketServiceImpl) AddToCart(ctx context.Context, userID uuid.UUID, productID int64, quantity int) (*domain.CartItem, error) {
	if quantity < 1 {
		return nil, apperror.Validation("Quantity must be at least 1")
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	existing, err := s.cart.GetByUserAndProduct(ctx, userID, productID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get cart line: %w", err))
	}
	wanted := quantity
	if existing != nil {
		wanted += existing.Quantity
	}
	if wanted > product.Stock {
		return nil, apperror.ErrInsufficientStock(product.Name)
	}

	item := &domain.CartItem{
		UserID:        userID,
		ProductID:     productID,
		Quantity:      quantity,
		PriceSnapshot: product.Price,
	}
	if err := s.cart.Upsert(ctx, item); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("upsert cart line: %w", err))
	}
	item.Product = product
	return item, nil
}

func (s *MarketServiceImpl) RemoveFromCart(ctx context.Context, userID uuid.UUID, itemID int64) error {
	removed, err := s.cart.Delete(ctx, userID, itemID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("delete cart line: %w", err))
	}
	if !removed {
		return apperror.ErrNotFound("Cart item")
	}
	return nil
}

func (s *MarketServiceImpl) ListOrders(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.Order, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	orders, total, err := s.orders.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list orders: %w", err))
	}
	return orders, total, nil
}

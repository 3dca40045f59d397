package handler

import (
	"strconv"

	"learncoins-ledger/internal/adapter/http/dto"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/pkg/apperror"
	"learncoins-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// MarketHandler handles the product catalogue, cart and order history.
type MarketHandler struct {
	market ports.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(market ports.MarketService) *MarketHandler {
	return &MarketHandler{market: market}
}

// ListProducts handles GET /api/v1/market/products.
func (h *MarketHandler) ListProducts(c *gin.Context) {
	h.listProducts(c, false)
}

// SearchProducts handles GET /api/v1/market/products/search.
func (h *MarketHandler) SearchProducts(c *gin.Context) {
	h.listProducts(c, true)
}

func (h *MarketHandler) listProducts(c *gin.Context, search bool) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if search && q.Query == "" {
		response.Error(c, apperror.Validation("query is required"))
		return
	}

	params := ports.ProductListParams{
		Query:    q.Query,
		Page:     orDefault(q.Page, 1),
		PageSize: orDefault(q.Limit, defaultPageSize),
	}
	products, total, err := h.market.ListProducts(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, products, total, params.Page, params.PageSize)
}

// GetProduct handles GET /api/v1/market/products/:id.
func (h *MarketHandler) GetProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.market.GetProduct(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, product)
}

// CreateProduct handles POST /api/v1/market/products.
func (h *MarketHandler) CreateProduct(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req dto.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.market.CreateProduct(c.Request.Context(), p, ports.CreateProductRequest{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
		Category:    req.Category,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, product)
}

// GetCart handles GET /api/v1/market/cart.
func (h *MarketHandler) GetCart(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	items, err := h.market.GetCart(c.Request.Context(), p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	lines := make([]dto.CartLineResponse, 0, len(items))
	for _, item := range items {
		lines = append(lines, dto.NewCartLineResponse(item))
	}
	response.OK(c, lines)
}

// AddToCart handles POST /api/v1/market/cart.
func (h *MarketHandler) AddToCart(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req dto.AddToCartRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.market.AddToCart(c.Request.Context(), p.UserID, req.ProductID, req.Quantity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewCartLineResponse(*item))
}

// RemoveFromCart handles DELETE /api/v1/market/cart/:id.
func (h *MarketHandler) RemoveFromCart(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.market.RemoveFromCart(c.Request.Context(), p.UserID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"removed": true})
}

// ListOrders handles GET /api/v1/orders.
func (h *MarketHandler) ListOrders(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	page, pageSize := orDefault(q.Page, 1), orDefault(q.Limit, defaultPageSize)

	orders, total, err := h.market.ListOrders(c.Request.Context(), p.UserID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, orders, total, page, pageSize)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperror.Validation("id must be a positive integer"))
		return 0, false
	}
	return id, true
}

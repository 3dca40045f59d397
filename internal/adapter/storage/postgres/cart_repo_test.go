package postgres

import (
	"context"
	"testing"
	"time"

	"learncoins-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cartJoinColumns() []string {
	return []string{"id", "user_id", "product_id", "quantity", "price", "created_at",
		"p_id", "name", "description", "p_price", "stock", "image_url", "category", "creator_id", "p_created_at", "updated_at"}
}

type cartLine struct {
	id  int64
	qty int
	p   *domain.Product
	at  string // price snapshot
}

func cartJoinRows(userID uuid.UUID, lines ...cartLine) *pgxmock.Rows {
	rows := pgxmock.NewRows(cartJoinColumns())
	now := time.Now().UTC().Truncate(time.Microsecond)
	for _, l := range lines {
		p := l.p
		rows.AddRow(l.id, userID, p.ID, l.qty, l.at, now,
			p.ID, p.Name, p.Description, p.Price.String(), p.Stock, p.ImageURL, p.Category, p.CreatorID, p.CreatedAt, p.UpdatedAt)
	}
	return rows
}

func TestCartRepo_ListByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCartRepo(mock)
	userID := uuid.New()
	pencil := newTestProduct(1, "Pencil", "3.00", 10)

	mock.ExpectQuery(`SELECT .+ FROM carts c JOIN products p .+ WHERE c.user_id = \$1 ORDER BY c.id`).
		WithArgs(userID).
		WillReturnRows(cartJoinRows(userID, cartLine{id: 4, qty: 2, p: pencil, at: "2.50"}))

	items, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, items[0].PriceSnapshot.Equal(decimal.RequireFromString("2.50")))
	require.NotNil(t, items[0].Product)
	assert.True(t, items[0].Product.Price.Equal(decimal.NewFromInt(3)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepo_ListByUserForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCartRepo(mock)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM carts c .+ FOR UPDATE OF c`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows(cartJoinColumns()))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	items, err := repo.ListByUserForUpdate(context.Background(), tx, userID)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepo_GetByUserAndProduct(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCartRepo(mock)
	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM carts WHERE user_id").
		WithArgs(userID, int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "product_id", "quantity", "price", "created_at"}).
			AddRow(int64(8), userID, int64(2), 3, "9.99", now))
	mock.ExpectQuery("SELECT .+ FROM carts WHERE user_id").
		WithArgs(userID, int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "product_id", "quantity", "price", "created_at"}))

	item, err := repo.GetByUserAndProduct(context.Background(), userID, 2)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 3, item.Quantity)

	none, err := repo.GetByUserAndProduct(context.Background(), userID, 3)
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepo_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCartRepo(mock)
	userID := uuid.New()
	now := time.Now().UTC()
	item := &domain.CartItem{UserID: userID, ProductID: 2, Quantity: 1, PriceSnapshot: decimal.RequireFromString("12")}

	mock.ExpectQuery(`INSERT INTO carts .+ ON CONFLICT \(user_id, product_id\) DO UPDATE`).
		WithArgs(userID, int64(2), 1, "12").
		WillReturnRows(pgxmock.NewRows([]string{"id", "quantity", "price", "created_at"}).
			AddRow(int64(8), 4, "10.00", now))

	require.NoError(t, repo.Upsert(context.Background(), item))
	assert.Equal(t, int64(8), item.ID)
	assert.Equal(t, 4, item.Quantity)
	assert.True(t, item.PriceSnapshot.Equal(decimal.NewFromInt(10)), "existing snapshot is kept")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepo_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCartRepo(mock)
	owner := uuid.New()

	mock.ExpectExec("DELETE FROM carts WHERE id").
		WithArgs(int64(8), owner).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM carts WHERE id").
		WithArgs(int64(9), owner).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	removed, err := repo.Delete(context.Background(), owner, 8)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(context.Background(), owner, 9)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartRepo_DeleteByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCartRepo(mock)
	owner := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM carts WHERE user_id").
		WithArgs(owner).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.DeleteByUser(context.Background(), tx, owner))
	assert.NoError(t, mock.ExpectationsWereMet())
}

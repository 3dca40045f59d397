// Package memory is the in-process storage driver. It backs the same
// repository ports as the postgres package and is used for local runs
// and tests. One mutex stands in for row locks: an atomic unit holds it
// from start to commit, so units are fully serialized.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errNoUnit = errors.New("memory: call requires an open unit from this store")

// state is everything a unit can roll back.
type state struct {
	wallets      map[int64]domain.Wallet
	walletSeq    int64
	records      []domain.TransactionRecord
	products     map[int64]domain.Product
	productSeq   int64
	cart         map[int64]domain.CartItem
	cartSeq      int64
	orders       []domain.Order
	orderSeq     int64
	orderItemSeq int64
	idempotency  map[string]domain.IdempotencyLog
}

func newState() state {
	return state{
		wallets:     make(map[int64]domain.Wallet),
		products:    make(map[int64]domain.Product),
		cart:        make(map[int64]domain.CartItem),
		idempotency: make(map[string]domain.IdempotencyLog),
	}
}

func (s state) clone() state {
	c := s
	c.wallets = maps.Clone(s.wallets)
	c.records = append([]domain.TransactionRecord(nil), s.records...)
	c.products = maps.Clone(s.products)
	c.cart = maps.Clone(s.cart)
	c.orders = make([]domain.Order, len(s.orders))
	for i, o := range s.orders {
		o.Items = append([]domain.OrderItem(nil), o.Items...)
		c.orders[i] = o
	}
	c.idempotency = maps.Clone(s.idempotency)
	return c
}

// Store holds all tables of the memory driver.
type Store struct {
	mu    sync.Mutex
	data  state
	audit []domain.AuditLog
	now   func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// Transactor implements ports.Transactor for the memory driver.
type Transactor struct {
	store *Store
}

// NewTransactor creates a Transactor over the store.
func NewTransactor(s *Store) *Transactor {
	return &Transactor{store: s}
}

var _ ports.Transactor = (*Transactor)(nil)

// WithinTx runs fn holding the store lock. State is restored if fn fails.
func (t *Transactor) WithinTx(ctx context.Context, fn ports.TxFunc) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.data.clone()
	tx := &unitTx{store: s}
	defer func() { tx.closed = true }()

	if err := fn(ctx, tx); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) checkUnit(tx pgx.Tx) error {
	u, ok := tx.(*unitTx)
	if !ok || u.store != s || u.closed {
		return errNoUnit
	}
	return nil
}

// HealthCheck implements ports.HealthChecker. The memory driver is always up.
type HealthCheck struct{}

func (HealthCheck) Ping(ctx context.Context) error { return nil }
func (HealthCheck) Name() string                   { return "memory" }

// unitTx marks an open unit. It satisfies pgx.Tx so the memory repos fit the
// same ports as the postgres ones; none of the SQL methods do anything.
type unitTx struct {
	store  *Store
	closed bool
}

func (t *unitTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *unitTx) Commit(ctx context.Context) error          { return nil }
func (t *unitTx) Rollback(ctx context.Context) error        { return nil }
func (t *unitTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errNoUnit
}
func (t *unitTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *unitTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *unitTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errNoUnit
}
func (t *unitTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errNoUnit
}
func (t *unitTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errNoUnit
}
func (t *unitTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *unitTx) Conn() *pgx.Conn                                               { return nil }

func paginate(total, page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return 0, 0
	}
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return start, end
}

package postgres

import (
	"context"
	"fmt"

	"learncoins-ledger/internal/core/ports"
)

// Transactor implements ports.Transactor on a pgx pool.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// WithinTx runs fn in a database transaction, committing only if fn returns nil.
func (t *Transactor) WithinTx(ctx context.Context, fn ports.TxFunc) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

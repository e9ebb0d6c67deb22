package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transactor runs functions inside a transaction on the request connection.
type Transactor struct{}

// NewTransactor creates a Transactor.
func NewTransactor() *Transactor {
	return &Transactor{}
}

// WithinTx runs fn in a transaction opened on the scope connection in ctx.
// fn receives a context carrying the transaction; repositories called with
// it read and write through the transaction. The transaction commits when fn
// returns nil and rolls back otherwise. A call made while a transaction is
// already open joins it.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if InTx(ctx) {
		return fn(ctx)
	}

	scope, ok := GetScope(ctx)
	if !ok || scope.Conn == nil {
		return ErrNoScope
	}

	tx, err := scope.Conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(context.WithValue(ctx, TxKey, Querier(tx))); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

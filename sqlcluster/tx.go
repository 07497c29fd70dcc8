package sqlcluster

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"

	"github.com/maxpert/mirrordb/invocation"
	"github.com/maxpert/mirrordb/node"
	"github.com/rs/zerolog/log"
)

// ErrTxDone is returned by operations on a committed or rolled back transaction
var ErrTxDone = errors.New("sqlcluster: transaction has already been committed or rolled back")

// Tx is a transaction open on every database that was active at BeginTx.
// Databases deactivated during the transaction are rolled back and dropped.
type Tx struct {
	handle *invocation.Handle[*sql.Tx]
	done   atomic.Bool
}

// Handle exposes the per-database transactions
func (tx *Tx) Handle() *invocation.Handle[*sql.Tx] {
	return tx.handle
}

func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (*Result, error) {
	if tx.done.Load() {
		return nil, ErrTxDone
	}
	h, err := invocation.Then(ctx, tx.handle, query,
		func(ctx context.Context, n node.Node, t *sql.Tx) (sql.Result, error) {
			return t.ExecContext(ctx, query, args...)
		})
	if err != nil {
		return nil, err
	}
	return &Result{handle: h}, nil
}

// QueryContext runs query inside the transaction on one database
func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx.done.Load() {
		return nil, ErrTxDone
	}
	return invocation.ThenRead(ctx, tx.handle,
		func(ctx context.Context, n node.Node, t *sql.Tx) (*sql.Rows, error) {
			return t.QueryContext(ctx, query, args...)
		})
}

func (tx *Tx) Commit() error {
	return tx.finish(func(t *sql.Tx) error { return t.Commit() })
}

func (tx *Tx) Rollback() error {
	return tx.finish(func(t *sql.Tx) error { return t.Rollback() })
}

func (tx *Tx) finish(end func(*sql.Tx) error) error {
	if !tx.done.CompareAndSwap(false, true) {
		return ErrTxDone
	}

	tx.rollbackOrphans()

	_, err := invocation.Then(context.Background(), tx.handle, "",
		func(ctx context.Context, n node.Node, t *sql.Tx) (struct{}, error) {
			return struct{}{}, end(t)
		})
	return err
}

// rollbackOrphans releases transactions held on databases that were
// deactivated after BeginTx
func (tx *Tx) rollbackOrphans() {
	for _, n := range tx.handle.Orphaned() {
		t, ok := tx.handle.Result(n)
		if !ok {
			continue
		}
		if err := t.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Debug().Err(err).Str("database", n.ID()).Msg("Failed to roll back orphaned transaction")
		}
	}
}

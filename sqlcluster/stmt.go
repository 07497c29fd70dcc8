package sqlcluster

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/maxpert/mirrordb/invocation"
	"github.com/maxpert/mirrordb/node"
	"github.com/rs/zerolog/log"
)

// Stmt is a statement prepared on every database that was active at
// PrepareContext
type Stmt struct {
	query  string
	handle *invocation.Handle[*sql.Stmt]
	closed atomic.Bool
}

// Handle exposes the per-database statements
func (s *Stmt) Handle() *invocation.Handle[*sql.Stmt] {
	return s.handle
}

// ExecContext executes the statement on every live database. The
// statement text is classified for a lock key as in DB.ExecContext.
func (s *Stmt) ExecContext(ctx context.Context, args ...any) (*Result, error) {
	h, err := invocation.Then(ctx, s.handle, s.query,
		func(ctx context.Context, n node.Node, stmt *sql.Stmt) (sql.Result, error) {
			return stmt.ExecContext(ctx, args...)
		})
	if err != nil {
		return nil, err
	}
	return &Result{handle: h}, nil
}

// QueryContext executes the statement on one live database
func (s *Stmt) QueryContext(ctx context.Context, args ...any) (*sql.Rows, error) {
	return invocation.ThenRead(ctx, s.handle,
		func(ctx context.Context, n node.Node, stmt *sql.Stmt) (*sql.Rows, error) {
			return stmt.QueryContext(ctx, args...)
		})
}

// Close closes the statement on every database it was prepared on,
// including databases deactivated since
func (s *Stmt) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var firstErr error
	for _, n := range s.handle.Nodes() {
		stmt, ok := s.handle.Result(n)
		if !ok {
			continue
		}
		if err := stmt.Close(); err != nil {
			log.Debug().Err(err).Str("database", n.ID()).Msg("Failed to close prepared statement")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

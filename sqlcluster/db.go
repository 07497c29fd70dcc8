// Package sqlcluster presents a cluster as a single database/sql style
// session. Statements that may change data run on every active database;
// plain queries run on one.
package sqlcluster

import (
	"context"
	"database/sql"

	"github.com/maxpert/mirrordb/cluster"
	"github.com/maxpert/mirrordb/dialect"
	"github.com/maxpert/mirrordb/invocation"
	"github.com/maxpert/mirrordb/node"
)

// DB is a logical session over a cluster. Safe for concurrent use.
type DB struct {
	cluster *cluster.Cluster
}

func New(c *cluster.Cluster) *DB {
	return &DB{cluster: c}
}

func (db *DB) Cluster() *cluster.Cluster { return db.cluster }

// Mode reports how query is routed by Execute. Only a single read-only
// SELECT that needs no lock key goes to one database.
func (db *DB) Mode(query string) invocation.Mode {
	if _, locked := db.cluster.Classifier().Classify(query); locked {
		return invocation.ModeWrite
	}
	if dialect.IsReadOnly(query) {
		return invocation.ModeRead
	}
	return invocation.ModeWrite
}

// ExecContext runs query on every active database
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (*Result, error) {
	h, err := invocation.Write(ctx, db.cluster, query,
		func(ctx context.Context, n node.Node, pool *sql.DB) (sql.Result, error) {
			return pool.ExecContext(ctx, query, args...)
		})
	if err != nil {
		return nil, err
	}
	return &Result{handle: h}, nil
}

// QueryContext runs query on one database
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return invocation.Read(ctx, db.cluster,
		func(ctx context.Context, n node.Node, pool *sql.DB) (*sql.Rows, error) {
			return pool.QueryContext(ctx, query, args...)
		})
}

// QueryRowContext runs query on one database and returns its first row
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *Row {
	row, err := invocation.Read(ctx, db.cluster,
		func(ctx context.Context, n node.Node, pool *sql.DB) (*sql.Row, error) {
			row := pool.QueryRowContext(ctx, query, args...)
			return row, row.Err()
		})
	return &Row{row: row, err: err}
}

// Outcome is the result of Execute. Rows is set for reads, Result for writes.
type Outcome struct {
	Mode   invocation.Mode
	Rows   *sql.Rows
	Result *Result
}

// Execute routes query by Mode
func (db *DB) Execute(ctx context.Context, query string, args ...any) (*Outcome, error) {
	mode := db.Mode(query)
	if mode == invocation.ModeRead {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		return &Outcome{Mode: mode, Rows: rows}, nil
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &Outcome{Mode: mode, Result: res}, nil
}

// BeginTx starts a transaction on every active database
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	h, err := invocation.Write(ctx, db.cluster, "",
		func(ctx context.Context, n node.Node, pool *sql.DB) (*sql.Tx, error) {
			return pool.BeginTx(ctx, opts)
		})
	if err != nil {
		return nil, err
	}
	return &Tx{handle: h}, nil
}

// PrepareContext prepares query on every active database
func (db *DB) PrepareContext(ctx context.Context, query string) (*Stmt, error) {
	h, err := invocation.Write(ctx, db.cluster, "",
		func(ctx context.Context, n node.Node, pool *sql.DB) (*sql.Stmt, error) {
			return pool.PrepareContext(ctx, query)
		})
	if err != nil {
		return nil, err
	}
	return &Stmt{query: query, handle: h}, nil
}

// Result is the outcome of an all-database statement. Scalar accessors
// report the database with the lowest id.
type Result struct {
	handle *invocation.Handle[sql.Result]
}

var _ sql.Result = (*Result)(nil)

func (r *Result) LastInsertId() (int64, error) {
	return r.handle.Primary().LastInsertId()
}

func (r *Result) RowsAffected() (int64, error) {
	return r.handle.Primary().RowsAffected()
}

// Handle exposes per-database results
func (r *Result) Handle() *invocation.Handle[sql.Result] {
	return r.handle
}

// Row is the single-row result of QueryRowContext
type Row struct {
	row *sql.Row
	err error
}

func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.row.Scan(dest...)
}

func (r *Row) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.row.Err()
}

// Package nodetest provides in-process test nodes backed by a fake
// database/sql driver whose liveness can be toggled per node.
package nodetest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// DriverName is the database/sql driver registered by this package
const DriverName = "nodetest"

// ErrDown is returned by every driver call against a node marked down
var ErrDown = errors.New("nodetest: node is down")

var (
	seq   atomic.Uint64
	mu    sync.RWMutex
	state = make(map[string]bool) // dsn -> down
)

func init() {
	sql.Register(DriverName, fakeDriver{})
}

func isDown(dsn string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return state[dsn]
}

// Node is a test double for node.Node
type Node struct {
	id     string
	weight int
	dsn    string
}

// New creates an alive test node
func New(id string, weight int) *Node {
	return &Node{
		id:     id,
		weight: weight,
		dsn:    fmt.Sprintf("%s#%d", id, seq.Add(1)),
	}
}

func (n *Node) ID() string { return n.id }

func (n *Node) Weight() int { return n.weight }

func (n *Node) String() string { return n.id }

// SetAlive toggles whether driver calls against this node succeed
func (n *Node) SetAlive(alive bool) {
	mu.Lock()
	defer mu.Unlock()
	state[n.dsn] = !alive
}

func (n *Node) CreateConnectionFactory() (*sql.DB, error) {
	return sql.Open(DriverName, n.dsn)
}

func (n *Node) Connect(ctx context.Context, factory *sql.DB) (*sql.Conn, error) {
	if factory == nil {
		return nil, fmt.Errorf("%s: nil connection factory", n.id)
	}
	return factory.Conn(ctx)
}

type fakeDriver struct{}

func (fakeDriver) Open(dsn string) (driver.Conn, error) {
	if isDown(dsn) {
		return nil, ErrDown
	}
	return &fakeConn{dsn: dsn}, nil
}

type fakeConn struct {
	dsn string
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	if isDown(c.dsn) {
		return nil, ErrDown
	}
	return &fakeStmt{dsn: c.dsn}, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	if isDown(c.dsn) {
		return nil, ErrDown
	}
	return fakeTx{}, nil
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeStmt struct {
	dsn string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	if isDown(s.dsn) {
		return nil, ErrDown
	}
	return driver.RowsAffected(1), nil
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	if isDown(s.dsn) {
		return nil, ErrDown
	}
	return &fakeRows{}, nil
}

type fakeRows struct{}

func (r *fakeRows) Columns() []string              { return []string{} }
func (r *fakeRows) Close() error                   { return nil }
func (r *fakeRows) Next(dest []driver.Value) error { return io.EOF }

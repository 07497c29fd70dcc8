// Package node describes the physical backend databases a cluster drives.
// A node is an opaque backend handle: it knows how to build a connection
// factory (a database/sql pool) and how to open a single connection from it.
package node

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Node is one physical backend database participating in a cluster.
// Identity is immutable; weight influences balancer selection.
type Node interface {
	ID() string
	Weight() int
	CreateConnectionFactory() (*sql.DB, error)
	Connect(ctx context.Context, factory *sql.DB) (*sql.Conn, error)
}

// IDSeparator joins database ids in persisted cluster state, so ids must
// not contain it
const IDSeparator = ","

// ValidateID rejects ids that cannot round-trip through persisted state
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("database id must not be empty")
	}
	if strings.Contains(id, IDSeparator) {
		return fmt.Errorf("database id %q must not contain %q", id, IDSeparator)
	}
	return nil
}

// Database is a Node backed by a database/sql driver and DSN
type Database struct {
	id     string
	weight int
	driver string
	dsn    string
}

// NewDatabase creates a database node. Weight must be non-negative.
func NewDatabase(id string, weight int, driver, dsn string) (*Database, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if weight < 0 {
		return nil, fmt.Errorf("database %s: weight must be >= 0, got %d", id, weight)
	}
	if driver == "mysql" {
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return nil, fmt.Errorf("database %s: invalid mysql dsn: %w", id, err)
		}
	}
	return &Database{id: id, weight: weight, driver: driver, dsn: dsn}, nil
}

func (d *Database) ID() string { return d.id }

func (d *Database) Weight() int { return d.weight }

// Driver returns the database/sql driver name
func (d *Database) Driver() string { return d.driver }

// CreateConnectionFactory opens the connection pool for this database.
// sql.Open does not dial, so failures here are configuration errors.
func (d *Database) CreateConnectionFactory() (*sql.DB, error) {
	db, err := sql.Open(d.driver, d.dsn)
	if err != nil {
		return nil, fmt.Errorf("database %s: failed to open %s pool: %w", d.id, d.driver, err)
	}
	return db, nil
}

// Connect checks out a single connection from the factory
func (d *Database) Connect(ctx context.Context, factory *sql.DB) (*sql.Conn, error) {
	if factory == nil {
		return nil, fmt.Errorf("database %s: nil connection factory", d.id)
	}
	conn, err := factory.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("database %s: connect failed: %w", d.id, err)
	}
	return conn, nil
}

// String renders the node for logs with credentials redacted
func (d *Database) String() string {
	return fmt.Sprintf("%s(%s %s)", d.id, d.driver, RedactDSN(d.driver, d.dsn))
}

// RedactDSN hides the password portion of a DSN where the format is known
func RedactDSN(driver, dsn string) string {
	if driver != "mysql" {
		return "***"
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "***"
	}
	if parsed.Passwd != "" {
		parsed.Passwd = "***"
	}
	return parsed.FormatDSN()
}

// IDs returns the ids of the given nodes in input order
func IDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	return ids
}

// SortByID sorts nodes in place by ascending id
func SortByID(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID() < nodes[j].ID()
	})
}

// Package synchronization defines how an inactive node is brought up to
// date before it rejoins a cluster. Data copy algorithms live outside this
// module; only the contract and a passive strategy ship here.
package synchronization

import (
	"context"
	"database/sql"

	"github.com/maxpert/mirrordb/node"
)

// Source describes the cluster a target node is being synchronized from
type Source interface {
	ID() string
	// ActiveNodes returns the nodes currently serving, ordered by id
	ActiveNodes() []node.Node
	// ConnectionFactory returns the cached pool for n
	ConnectionFactory(n node.Node) (*sql.DB, error)
}

// Strategy brings target in line with the active nodes of source. A
// returned error leaves target inactive.
type Strategy interface {
	Synchronize(ctx context.Context, target node.Node, source Source) error
}

// Func adapts a function to the Strategy interface
type Func func(ctx context.Context, target node.Node, source Source) error

func (f Func) Synchronize(ctx context.Context, target node.Node, source Source) error {
	return f(ctx, target, source)
}

// Passive assumes the target is already in sync and does nothing
type Passive struct{}

func (Passive) Synchronize(context.Context, node.Node, Source) error {
	return nil
}

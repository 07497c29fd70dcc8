// Package state persists the active set of each cluster.
//
// Values are opaque strings keyed by cluster id. An absent key means the
// cluster has never recorded state; an empty value is an explicit empty
// active set and must round-trip as such.
package state

import (
	"context"
	"fmt"

	"github.com/maxpert/mirrordb/cfg"
)

// Store is a durable string map keyed by cluster id
type Store interface {
	Load(ctx context.Context, clusterID string) (value string, found bool, err error)
	Save(ctx context.Context, clusterID, value string) error
	Remove(ctx context.Context, clusterID string) error
	Close() error
}

// Open creates the store selected by configuration
func Open(c cfg.StateConfiguration) (Store, error) {
	switch c.Store {
	case cfg.StatePebble:
		return NewPebbleStore(c.Path, nil)
	case cfg.StateMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state store: %s", c.Store)
	}
}

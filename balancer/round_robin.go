package balancer

import (
	"sync/atomic"

	"github.com/maxpert/mirrordb/node"
)

// RoundRobinBalancer cycles through members in id order. The cursor is a
// single atomic counter so concurrent callers observe one global sequence.
type RoundRobinBalancer struct {
	members
	cursor atomic.Uint64
}

func NewRoundRobin() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

func (b *RoundRobinBalancer) Next() (node.Node, error) {
	current := b.load()
	if len(current) == 0 {
		return nil, ErrNoSuchElement
	}
	i := b.cursor.Add(1) - 1
	return current[i%uint64(len(current))], nil
}

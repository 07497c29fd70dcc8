package balancer

import (
	"sync/atomic"

	"github.com/maxpert/mirrordb/node"
	"github.com/puzpuzpuz/xsync/v3"
)

// LoadBalancer routes to the member with the lowest ratio of in-flight
// operations to weight. Ties go to the lowest id. Zero-weight members are
// only chosen when every member has zero weight.
type LoadBalancer struct {
	members
	loads *xsync.MapOf[string, *atomic.Int64]
}

func NewLoad() *LoadBalancer {
	return &LoadBalancer{
		loads: xsync.NewMapOf[string, *atomic.Int64](),
	}
}

// Add and Remove change membership and the load counter under the member
// lock, so a node has a counter exactly while it is a member.
func (b *LoadBalancer) Add(n node.Node) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(n, func() {
		b.loads.Store(n.ID(), new(atomic.Int64))
	})
}

func (b *LoadBalancer) Remove(n node.Node) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(n, func() {
		b.loads.Delete(n.ID())
	})
}

func (b *LoadBalancer) BeforeOperation(n node.Node) {
	if counter, ok := b.loads.Load(n.ID()); ok {
		counter.Add(1)
	}
}

func (b *LoadBalancer) AfterOperation(n node.Node) {
	counter, ok := b.loads.Load(n.ID())
	if !ok {
		return
	}
	for {
		v := counter.Load()
		if v <= 0 || counter.CompareAndSwap(v, v-1) {
			return
		}
	}
}

// loadOf returns the in-flight count for id
func (b *LoadBalancer) loadOf(id string) int64 {
	if counter, ok := b.loads.Load(id); ok {
		return counter.Load()
	}
	return 0
}

func (b *LoadBalancer) Next() (node.Node, error) {
	current := b.load()
	if len(current) == 0 {
		return nil, ErrNoSuchElement
	}

	var best node.Node
	var bestLoad, bestWeight int64
	for _, n := range current {
		w := int64(n.Weight())
		if w <= 0 {
			continue
		}
		// Score is (load+1)/weight; compare by cross-multiplying
		l := b.loadOf(n.ID()) + 1
		if best == nil || l*bestWeight < bestLoad*w {
			best, bestLoad, bestWeight = n, l, w
		}
	}
	if best == nil {
		return current[0], nil
	}
	return best, nil
}

package invocation

import (
	"context"

	"github.com/maxpert/mirrordb/cluster"
	"github.com/maxpert/mirrordb/node"
)

// Handle holds the per-database results of an invocation, keyed by the
// databases that succeeded. Follow-up operations through Then and ThenRead
// run only on those databases, minus any deactivated since.
type Handle[T any] struct {
	cluster *cluster.Cluster
	nodes   []node.Node
	results map[string]T
}

func newHandle[T any](c *cluster.Cluster, nodes []node.Node, results map[string]T) *Handle[T] {
	sorted := make([]node.Node, len(nodes))
	copy(sorted, nodes)
	node.SortByID(sorted)
	return &Handle[T]{cluster: c, nodes: sorted, results: results}
}

func (h *Handle[T]) Cluster() *cluster.Cluster { return h.cluster }

// Nodes returns the databases that produced a result, ordered by id
func (h *Handle[T]) Nodes() []node.Node {
	out := make([]node.Node, len(h.nodes))
	copy(out, h.nodes)
	return out
}

// Results returns a copy of the results keyed by database id
func (h *Handle[T]) Results() map[string]T {
	out := make(map[string]T, len(h.results))
	for id, v := range h.results {
		out[id] = v
	}
	return out
}

// Result returns the result produced by n
func (h *Handle[T]) Result(n node.Node) (T, bool) {
	v, ok := h.results[n.ID()]
	return v, ok
}

// Primary returns the result of the database with the lowest id
func (h *Handle[T]) Primary() T {
	var zero T
	if len(h.nodes) == 0 {
		return zero
	}
	return h.results[h.nodes[0].ID()]
}

func (h *Handle[T]) Len() int { return len(h.nodes) }

// Live returns the handle's databases that are still active
func (h *Handle[T]) Live() []node.Node {
	live := make([]node.Node, 0, len(h.nodes))
	for _, n := range h.nodes {
		if h.cluster.IsActive(n) {
			live = append(live, n)
		}
	}
	return live
}

// Orphaned returns the handle's databases that have been deactivated.
// Their results will not be used again.
func (h *Handle[T]) Orphaned() []node.Node {
	var orphaned []node.Node
	for _, n := range h.nodes {
		if !h.cluster.IsActive(n) {
			orphaned = append(orphaned, n)
		}
	}
	return orphaned
}

// Then runs op in all-database mode against each live database of h,
// passing the result that database produced earlier. sqlText is classified
// for a lock key exactly as in Write.
func Then[T, U any](ctx context.Context, h *Handle[T], sqlText string, op func(ctx context.Context, n node.Node, v T) (U, error)) (*Handle[U], error) {
	return fanOut(ctx, h.cluster, h.Live(), sqlText, func(ctx context.Context, n node.Node) (U, error) {
		return op(ctx, n, h.results[n.ID()])
	})
}

// ThenRead runs op on one live database of h, preferring the cluster
// balancer's choice. A failure deactivates that database and retries once.
func ThenRead[T, U any](ctx context.Context, h *Handle[T], op func(ctx context.Context, n node.Node, v T) (U, error)) (U, error) {
	return readOne(ctx, h.cluster, h.pick, func(ctx context.Context, n node.Node) (U, error) {
		return op(ctx, n, h.results[n.ID()])
	})
}

// pick asks the balancer for a database in h, falling back to the lowest
// live id when the balancer keeps choosing databases outside h
func (h *Handle[T]) pick() (node.Node, error) {
	live := h.Live()
	if len(live) == 0 {
		return nil, &NoActiveDatabasesError{Cluster: h.cluster.ID()}
	}

	b := h.cluster.Balancer()
	for i := 0; i < len(h.cluster.ActiveNodes()); i++ {
		n, err := b.Next()
		if err != nil {
			break
		}
		if _, ok := h.results[n.ID()]; ok {
			return n, nil
		}
	}
	return live[0], nil
}

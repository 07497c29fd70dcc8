// Package invocation runs operations against a cluster: reads on one
// balancer-chosen database, writes on every active database in parallel.
// Databases that fail are deactivated so later invocations stop routing to
// them.
package invocation

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/maxpert/mirrordb/cluster"
	"github.com/maxpert/mirrordb/executor"
	"github.com/maxpert/mirrordb/lock"
	"github.com/maxpert/mirrordb/node"
	"github.com/maxpert/mirrordb/telemetry"
	"github.com/rs/zerolog/log"
)

// Mode selects single-database or all-database execution
type Mode string

const (
	ModeRead  Mode = "read"  // One balancer-chosen database
	ModeWrite Mode = "write" // Every active database
)

// Read attempts before the failure is surfaced
const readAttempts = 2

// Operation is the per-database unit of work. db is the cached connection
// factory of n.
type Operation[T any] func(ctx context.Context, n node.Node, db *sql.DB) (T, error)

// call is an Operation bound to its inputs
type call[T any] func(ctx context.Context, n node.Node) (T, error)

func bind[T any](c *cluster.Cluster, op Operation[T]) call[T] {
	return func(ctx context.Context, n node.Node) (T, error) {
		db, err := c.ConnectionFactory(n)
		if err != nil {
			var zero T
			return zero, err
		}
		return op(ctx, n, db)
	}
}

// Invoke runs op in the given mode. A read produces a handle over the one
// database that served it.
func Invoke[T any](ctx context.Context, c *cluster.Cluster, mode Mode, sqlText string, op Operation[T]) (*Handle[T], error) {
	if mode == ModeWrite {
		return Write(ctx, c, sqlText, op)
	}

	var served node.Node
	v, err := readOne(ctx, c, c.Balancer().Next, func(ctx context.Context, n node.Node) (T, error) {
		served = n
		return bind(c, op)(ctx, n)
	})
	if err != nil {
		return nil, err
	}
	return newHandle(c, []node.Node{served}, map[string]T{served.ID(): v}), nil
}

// Read runs op on the database chosen by the cluster balancer. If it fails
// the database is deactivated and op is retried once on the next choice.
func Read[T any](ctx context.Context, c *cluster.Cluster, op Operation[T]) (T, error) {
	return readOne(ctx, c, c.Balancer().Next, bind(c, op))
}

func readOne[T any](ctx context.Context, c *cluster.Cluster, pick func() (node.Node, error), fn call[T]) (T, error) {
	m := newInvocationMetrics(ModeRead)
	var zero T
	var lastErr error

	for attempt := 0; attempt < readAttempts; attempt++ {
		n, err := pick()
		if err != nil {
			if lastErr != nil {
				return zero, m.RecordFailure(lastErr)
			}
			return zero, m.RecordFailure(&NoActiveDatabasesError{Cluster: c.ID()})
		}

		telemetry.BalancerSelectionsTotal.With(n.ID()).Inc()
		b := c.Balancer()
		b.BeforeOperation(n)
		v, err := fn(ctx, n)
		b.AfterOperation(n)

		if err == nil {
			m.RecordSuccess(1, attempt)
			return v, nil
		}

		m.RecordNodeFailure()
		lastErr = &NodeError{Database: n.ID(), Err: err}
		if ctx.Err() != nil {
			return zero, m.RecordFailure(lastErr)
		}

		log.Debug().Err(err).Str("cluster", c.ID()).Str("database", n.ID()).Str("mode", string(ModeRead)).
			Msg("Read failed, deactivating database")
		c.Deactivate(n)
	}

	return zero, m.RecordFailure(lastErr)
}

// Write runs op on every active database in parallel on the cluster
// executor. If sqlText classifies to a lock key, the whole fan-out runs
// under that key. Databases that fail are deactivated when at least one
// other database succeeded, even if ctx was cancelled meanwhile; if none
// succeeded membership is unchanged and an *AllNodesFailedError is
// returned. A Write issued from inside another fan-out's operation runs its
// databases inline on the calling worker.
func Write[T any](ctx context.Context, c *cluster.Cluster, sqlText string, op Operation[T]) (*Handle[T], error) {
	return fanOut(ctx, c, c.ActiveNodes(), sqlText, bind(c, op))
}

type outcome[T any] struct {
	node node.Node
	val  T
	err  error
}

func fanOut[T any](ctx context.Context, c *cluster.Cluster, nodes []node.Node, sqlText string, fn call[T]) (*Handle[T], error) {
	m := newInvocationMetrics(ModeWrite)

	if key, ok := c.Classifier().Classify(sqlText); ok {
		ctx = lock.WithOwner(ctx)
		waitStart := time.Now()
		if err := c.AcquireLock(ctx, key); err != nil {
			return nil, m.RecordFailure(fmt.Errorf("acquire lock %s: %w", key, err))
		}
		defer c.ReleaseLock(ctx, key)
		telemetry.LockWaitSeconds.Observe(time.Since(waitStart).Seconds())
		telemetry.SerializedStatementsTotal.Inc()
	}

	if len(nodes) == 0 {
		return nil, m.RecordFailure(&NoActiveDatabasesError{Cluster: c.ID()})
	}

	// Buffered so callbacks never block the worker that resolves them
	done := make(chan outcome[T], len(nodes))
	b := c.Balancer()
	for _, n := range nodes {
		n := n
		f := executor.GoContext(ctx, c.Executor(), func(ctx context.Context) (T, error) {
			b.BeforeOperation(n)
			defer b.AfterOperation(n)
			return fn(ctx, n)
		})
		future.Then(f, func(v T, err error) (struct{}, error) {
			done <- outcome[T]{node: n, val: v, err: err}
			return struct{}{}, nil
		})
	}

	deactivate := func(o outcome[T]) {
		log.Debug().Err(o.err).Str("cluster", c.ID()).Str("database", o.node.ID()).Str("mode", string(ModeWrite)).
			Msg("Write failed on database, deactivating")
		c.Deactivate(o.node)
	}

	// Failures are held back until some database succeeds; from then on
	// each failed database is deactivated as soon as its result arrives.
	// Cancellation does not exempt them.
	succeeded := make(map[string]T, len(nodes))
	survivors := make([]node.Node, 0, len(nodes))
	var held []outcome[T]
	var failures []*NodeError
	for range nodes {
		o := <-done
		if o.err != nil {
			m.RecordNodeFailure()
			failures = append(failures, &NodeError{Database: o.node.ID(), Err: o.err})
			if len(succeeded) > 0 {
				deactivate(o)
			} else {
				held = append(held, o)
			}
			continue
		}
		succeeded[o.node.ID()] = o.val
		survivors = append(survivors, o.node)
		for _, h := range held {
			deactivate(h)
		}
		held = nil
	}

	if len(survivors) == 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Database < failures[j].Database })
		return nil, m.RecordFailure(&AllNodesFailedError{Cluster: c.ID(), Failures: failures})
	}

	m.RecordSuccess(len(survivors), len(failures))
	return newHandle(c, survivors, succeeded), nil
}

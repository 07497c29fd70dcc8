// Package cluster owns the membership of a replicated database cluster:
// which registered nodes are active, how that set is persisted, and how a
// node is brought back through synchronization.
package cluster

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maxpert/mirrordb/balancer"
	"github.com/maxpert/mirrordb/dialect"
	"github.com/maxpert/mirrordb/executor"
	"github.com/maxpert/mirrordb/lock"
	"github.com/maxpert/mirrordb/node"
	"github.com/maxpert/mirrordb/state"
	"github.com/maxpert/mirrordb/synchronization"
	"github.com/maxpert/mirrordb/telemetry"
	"github.com/rs/zerolog/log"
)

// Delimiter separates database ids in the persisted active set
const Delimiter = node.IDSeparator

const (
	defaultValidationSQL   = "SELECT 1"
	defaultLivenessTimeout = 2 * time.Second
	defaultMaxWorkers      = 64
	defaultKeepAlive       = 60 * time.Second
)

// Listener is notified after the active set changes and has been persisted
type Listener interface {
	DatabaseActivated(clusterID string, n node.Node)
	DatabaseDeactivated(clusterID string, n node.Node)
}

// Option configures a Cluster
type Option func(*Cluster)

func WithBalancer(b balancer.Balancer) Option {
	return func(c *Cluster) { c.balancer = b }
}

func WithStateStore(s state.Store) Option {
	return func(c *Cluster) { c.store = s }
}

func WithValidationSQL(sql string) Option {
	return func(c *Cluster) { c.validationSQL = sql }
}

func WithSynchronization(s synchronization.Strategy) Option {
	return func(c *Cluster) { c.sync = s }
}

func WithExecutor(p *executor.Pool) Option {
	return func(c *Cluster) { c.executor = p }
}

func WithDialect(d dialect.Dialect) Option {
	return func(c *Cluster) { c.classifier = dialect.NewClassifier(d) }
}

// WithLivenessTimeout bounds each IsAlive probe
func WithLivenessTimeout(d time.Duration) Option {
	return func(c *Cluster) { c.livenessTimeout = d }
}

// WithHealthCheck runs a HealthMonitor between Start and Stop
func WithHealthCheck(interval time.Duration, maxFailures int) Option {
	return func(c *Cluster) {
		c.health = NewHealthMonitor(c, interval, maxFailures)
	}
}

func WithListener(l Listener) Option {
	return func(c *Cluster) { c.listeners = append(c.listeners, l) }
}

// Cluster is a set of registered nodes of which a subset is active.
// The balancer membership is the active set; every change to it is
// persisted before Activate or Deactivate returns.
type Cluster struct {
	id        string
	nodes     map[string]node.Node
	ordered   []node.Node
	factories map[string]*sql.DB

	balancer   balancer.Balancer
	store      state.Store
	locks      *lock.Registry
	activating *lock.Registry
	executor   *executor.Pool
	classifier *dialect.Classifier
	sync       synchronization.Strategy
	health     *HealthMonitor

	validationSQL   string
	livenessTimeout time.Duration

	stateMu   sync.Mutex
	listenMu  sync.RWMutex
	listeners []Listener
	stopOnce  sync.Once
}

// New registers nodes under cluster id. Connection factories are created
// once here and reused for the lifetime of the cluster. No node is active
// until Start or Activate.
func New(id string, nodes []node.Node, opts ...Option) (*Cluster, error) {
	if id == "" {
		return nil, fmt.Errorf("cluster id must not be empty")
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("cluster %s: at least one database is required", id)
	}

	c := &Cluster{
		id:              id,
		nodes:           make(map[string]node.Node, len(nodes)),
		factories:       make(map[string]*sql.DB, len(nodes)),
		locks:           lock.NewRegistry(),
		activating:      lock.NewRegistry(),
		validationSQL:   defaultValidationSQL,
		livenessTimeout: defaultLivenessTimeout,
	}

	for _, n := range nodes {
		if err := node.ValidateID(n.ID()); err != nil {
			return nil, fmt.Errorf("cluster %s: %w", id, err)
		}
		if _, dup := c.nodes[n.ID()]; dup {
			return nil, fmt.Errorf("cluster %s: duplicate database id %s", id, n.ID())
		}
		c.nodes[n.ID()] = n
		c.ordered = append(c.ordered, n)
	}
	node.SortByID(c.ordered)

	for _, opt := range opts {
		opt(c)
	}

	if c.balancer == nil {
		c.balancer = balancer.NewRoundRobin()
	}
	if c.store == nil {
		c.store = state.NewMemoryStore()
	}
	if c.executor == nil {
		c.executor = executor.New(0, defaultMaxWorkers, defaultKeepAlive)
	}
	if c.classifier == nil {
		c.classifier = dialect.NewClassifier(dialect.None)
	}
	if c.sync == nil {
		c.sync = synchronization.Passive{}
	}

	for _, n := range c.ordered {
		factory, err := n.CreateConnectionFactory()
		if err != nil {
			c.closeFactories()
			return nil, fmt.Errorf("cluster %s: %w", id, err)
		}
		c.factories[n.ID()] = factory
	}

	return c, nil
}

func (c *Cluster) ID() string { return c.id }

func (c *Cluster) Balancer() balancer.Balancer { return c.balancer }

func (c *Cluster) Executor() *executor.Pool { return c.executor }

func (c *Cluster) Classifier() *dialect.Classifier { return c.classifier }

func (c *Cluster) String() string { return c.id }

// AddListener registers l for membership changes
func (c *Cluster) AddListener(l Listener) {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Database returns the registered node with the given id
func (c *Cluster) Database(id string) (node.Node, error) {
	n, ok := c.nodes[id]
	if !ok {
		return nil, &InvalidDatabaseError{Cluster: c.id, Database: id}
	}
	return n, nil
}

// Nodes returns every registered node ordered by id
func (c *Cluster) Nodes() []node.Node {
	out := make([]node.Node, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// ActiveNodes returns the active nodes ordered by id
func (c *Cluster) ActiveNodes() []node.Node {
	return c.balancer.ToArray()
}

// IsActive reports whether n is in the active set
func (c *Cluster) IsActive(n node.Node) bool {
	return c.balancer.Contains(n)
}

// ActiveDatabases returns the ids of active nodes, sorted
func (c *Cluster) ActiveDatabases() []string {
	return node.IDs(c.balancer.ToArray())
}

// InactiveDatabases returns the ids of registered nodes that are not active, sorted
func (c *Cluster) InactiveDatabases() []string {
	ids := make([]string, 0, len(c.ordered))
	for _, n := range c.ordered {
		if !c.balancer.Contains(n) {
			ids = append(ids, n.ID())
		}
	}
	return ids
}

// ConnectionFactory returns the cached pool for n
func (c *Cluster) ConnectionFactory(n node.Node) (*sql.DB, error) {
	factory, ok := c.factories[n.ID()]
	if !ok {
		return nil, &InvalidDatabaseError{Cluster: c.id, Database: n.ID()}
	}
	return factory, nil
}

// LockKeyCount reports the number of statement lock keys created
func (c *Cluster) LockKeyCount() int {
	return c.locks.Len()
}

// ExecutorStats reports worker pool occupancy
func (c *Cluster) ExecutorStats() (workers, busy, queued int) {
	return c.executor.Stats()
}

// AcquireLock blocks until the statement lock for key is held
func (c *Cluster) AcquireLock(ctx context.Context, key string) error {
	return c.locks.Acquire(ctx, key)
}

// ReleaseLock releases the statement lock for key
func (c *Cluster) ReleaseLock(ctx context.Context, key string) {
	c.locks.Release(ctx, key)
}

// IsAlive opens a fresh connection to n and runs the validation query.
// Any failure, including the probe timing out, reports false.
func (c *Cluster) IsAlive(ctx context.Context, n node.Node) bool {
	ctx, cancel := context.WithTimeout(ctx, c.livenessTimeout)
	defer cancel()

	alive := c.probe(ctx, n) == nil
	if alive {
		telemetry.LivenessChecksTotal.With("alive").Inc()
	} else {
		telemetry.LivenessChecksTotal.With("dead").Inc()
	}
	return alive
}

func (c *Cluster) probe(ctx context.Context, n node.Node) error {
	factory, err := n.CreateConnectionFactory()
	if err != nil {
		return err
	}
	defer factory.Close()

	conn, err := n.Connect(ctx, factory)
	if err != nil {
		log.Debug().Err(err).Str("cluster", c.id).Str("database", n.ID()).Msg("Liveness connect failed")
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, c.validationSQL); err != nil {
		log.Debug().Err(err).Str("cluster", c.id).Str("database", n.ID()).Msg("Liveness validation failed")
		return err
	}
	return nil
}

// Activate synchronizes n and adds it to the active set. Returns false
// without synchronizing if n is already active. Concurrent activations of
// the same node are serialized so synchronization runs at most once.
func (c *Cluster) Activate(ctx context.Context, n node.Node) (bool, error) {
	if _, err := c.Database(n.ID()); err != nil {
		return false, err
	}

	ctx = lock.WithOwner(ctx)
	if err := c.activating.Acquire(ctx, n.ID()); err != nil {
		return false, err
	}
	defer c.activating.Release(ctx, n.ID())

	if c.balancer.Contains(n) {
		telemetry.ActivationsTotal.With("noop").Inc()
		return false, nil
	}

	start := time.Now()
	if err := c.sync.Synchronize(ctx, n, c); err != nil {
		telemetry.ActivationsTotal.With("failed").Inc()
		log.Warn().Err(err).Str("cluster", c.id).Str("database", n.ID()).Msg("Synchronization failed, database stays inactive")
		return false, &SynchronizationError{Cluster: c.id, Database: n.ID(), Err: err}
	}
	telemetry.SynchronizationSeconds.Observe(time.Since(start).Seconds())

	return c.activate(ctx, n), nil
}

// activate adds n without synchronization
func (c *Cluster) activate(ctx context.Context, n node.Node) bool {
	if !c.balancer.Add(n) {
		telemetry.ActivationsTotal.With("noop").Inc()
		return false
	}
	c.StoreState(ctx)
	telemetry.ActivationsTotal.With("success").Inc()

	log.Info().Str("cluster", c.id).Str("database", n.ID()).Msg("Activated database")
	c.notify(func(l Listener) { l.DatabaseActivated(c.id, n) })
	return true
}

// Deactivate removes n from the active set. Returns false if n was not active.
func (c *Cluster) Deactivate(n node.Node) bool {
	if !c.balancer.Remove(n) {
		return false
	}
	c.StoreState(context.Background())
	telemetry.DeactivationsTotal.Inc()

	log.Warn().Str("cluster", c.id).Str("database", n.ID()).Msg("Deactivated database")
	c.notify(func(l Listener) { l.DatabaseDeactivated(c.id, n) })
	return true
}

func (c *Cluster) notify(fn func(Listener)) {
	c.listenMu.RLock()
	defer c.listenMu.RUnlock()
	for _, l := range c.listeners {
		fn(l)
	}
}

// LoadState reads the persisted active set. found is false when nothing
// was persisted. A persisted set naming an unknown database is discarded.
func (c *Cluster) LoadState(ctx context.Context) ([]string, bool, error) {
	value, found, err := c.store.Load(ctx, c.id)
	if err != nil {
		return nil, false, fmt.Errorf("cluster %s: failed to load state: %w", c.id, err)
	}
	if !found {
		return nil, false, nil
	}
	if value == "" {
		return []string{}, true, nil
	}

	ids := strings.Split(value, Delimiter)
	for _, id := range ids {
		if _, ok := c.nodes[id]; ok {
			continue
		}
		log.Warn().Str("cluster", c.id).Str("database", id).Str("state", value).
			Msg("Discarding persisted state naming unknown database")
		if err := c.store.Remove(ctx, c.id); err != nil {
			log.Warn().Err(err).Str("cluster", c.id).Msg("Failed to remove invalid state")
		}
		return nil, false, nil
	}
	return ids, true, nil
}

// StoreState persists the current active set. Failures are logged, not returned.
func (c *Cluster) StoreState(ctx context.Context) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	value := strings.Join(c.ActiveDatabases(), Delimiter)
	if err := c.store.Save(ctx, c.id, value); err != nil {
		telemetry.StatePersistFailuresTotal.Inc()
		log.Warn().Err(err).Str("cluster", c.id).Str("state", value).Msg("Failed to store cluster state")
	}
}

// Start restores the active set. With persisted state exactly those
// databases are activated; otherwise every database that passes IsAlive
// is. In both cases the first database is activated without
// synchronization and the rest through the configured strategy.
func (c *Cluster) Start(ctx context.Context) error {
	ids, found, err := c.LoadState(ctx)
	if err != nil {
		return err
	}

	var candidates []node.Node
	if found {
		for _, id := range ids {
			candidates = append(candidates, c.nodes[id])
		}
	} else {
		for _, n := range c.ordered {
			if c.IsAlive(ctx, n) {
				candidates = append(candidates, n)
			} else {
				log.Warn().Str("cluster", c.id).Str("database", n.ID()).Msg("Database not alive at startup")
			}
		}
	}

	for i, n := range candidates {
		if i == 0 {
			c.activate(ctx, n)
			continue
		}
		if _, err := c.Activate(ctx, n); err != nil {
			log.Warn().Err(err).Str("cluster", c.id).Str("database", n.ID()).Msg("Failed to activate database at startup")
		}
	}

	if c.health != nil {
		c.health.Start()
	}

	log.Info().Str("cluster", c.id).Strs("active", c.ActiveDatabases()).Strs("inactive", c.InactiveDatabases()).
		Msg("Cluster started")
	return nil
}

// Stop halts health checks, drains the worker pool and releases
// connection factories and the state store. Stop is idempotent.
func (c *Cluster) Stop() {
	c.stopOnce.Do(func() {
		if c.health != nil {
			c.health.Stop()
		}
		c.executor.Close()
		c.closeFactories()
		if err := c.store.Close(); err != nil {
			log.Warn().Err(err).Str("cluster", c.id).Msg("Failed to close state store")
		}
		log.Info().Str("cluster", c.id).Msg("Cluster stopped")
	})
}

func (c *Cluster) closeFactories() {
	for id, factory := range c.factories {
		if err := factory.Close(); err != nil {
			log.Warn().Err(err).Str("cluster", c.id).Str("database", id).Msg("Failed to close connection factory")
		}
	}
}

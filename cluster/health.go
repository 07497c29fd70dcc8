package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/maxpert/mirrordb/node"
	"github.com/rs/zerolog/log"
)

// HealthMonitor periodically probes active databases and deactivates any
// that fail maxFailures consecutive checks. It never reactivates.
type HealthMonitor struct {
	cluster     *Cluster
	interval    time.Duration
	maxFailures int

	mu       sync.Mutex
	failures map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthMonitor creates a monitor for c. Call Start to begin checking.
func NewHealthMonitor(c *Cluster, interval time.Duration, maxFailures int) *HealthMonitor {
	if maxFailures < 1 {
		maxFailures = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HealthMonitor{
		cluster:     c,
		interval:    interval,
		maxFailures: maxFailures,
		failures:    make(map[string]int),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start runs checks in the background until Stop
func (h *HealthMonitor) Start() {
	h.wg.Add(1)
	go h.run()
	log.Info().Str("cluster", h.cluster.id).Dur("interval", h.interval).Int("max_failures", h.maxFailures).
		Msg("Health monitor started")
}

// Stop cancels in-flight checks and waits for the monitor to exit
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *HealthMonitor) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.CheckAll(h.ctx)
		case <-h.ctx.Done():
			return
		}
	}
}

// CheckAll probes every active database once
func (h *HealthMonitor) CheckAll(ctx context.Context) {
	active := h.cluster.ActiveNodes()

	seen := make(map[string]bool, len(active))
	for _, n := range active {
		if ctx.Err() != nil {
			return
		}
		seen[n.ID()] = true
		h.check(ctx, n)
	}

	// Forget counters for databases that left the active set
	h.mu.Lock()
	for id := range h.failures {
		if !seen[id] {
			delete(h.failures, id)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) check(ctx context.Context, n node.Node) {
	alive := h.cluster.IsAlive(ctx, n)
	if ctx.Err() != nil {
		// Shutting down; a cancelled probe says nothing about the database
		return
	}

	h.mu.Lock()
	if alive {
		delete(h.failures, n.ID())
		h.mu.Unlock()
		return
	}
	h.failures[n.ID()]++
	fails := h.failures[n.ID()]
	if fails >= h.maxFailures {
		delete(h.failures, n.ID())
	}
	h.mu.Unlock()

	log.Debug().Str("cluster", h.cluster.id).Str("database", n.ID()).Int("failures", fails).Msg("Health check failed")

	if fails >= h.maxFailures {
		h.cluster.Deactivate(n)
	}
}

// Failures returns the current consecutive failure count for id
func (h *HealthMonitor) Failures(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures[id]
}

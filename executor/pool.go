// Package executor provides the bounded worker pool that cluster fan-outs
// run on.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jizhuozhi/go-future"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when submitting to a closed pool
var ErrClosed = errors.New("executor: pool closed")

// Pool keeps min workers alive and grows to max under load. Workers above
// min exit after idling for the keep-alive duration. Tasks submitted while
// all max workers are busy wait in a FIFO queue.
type Pool struct {
	min       int
	max       int
	keepAlive time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	workers int
	idle    int
	busy    int
	closed  bool
	wg      sync.WaitGroup
}

// New creates a pool and starts min workers
func New(min, max int, keepAlive time.Duration) *Pool {
	if max < 1 {
		max = 1
	}
	if min < 0 {
		min = 0
	}
	if min > max {
		min = max
	}

	p := &Pool{
		min:       min,
		max:       max,
		keepAlive: keepAlive,
	}
	p.cond = sync.NewCond(&p.mu)

	p.mu.Lock()
	for i := 0; i < min; i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()

	return p
}

func (p *Pool) spawnLocked() {
	p.workers++
	p.wg.Add(1)
	go p.work()
}

// Submit queues task for execution
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.queue = append(p.queue, task)
	if p.idle >= len(p.queue) {
		p.cond.Signal()
	} else if p.workers < p.max {
		p.spawnLocked()
	}
	return nil
}

func (p *Pool) work() {
	defer p.wg.Done()

	p.mu.Lock()
	for {
		idleSince := time.Now()
		for len(p.queue) == 0 && !p.closed {
			if p.workers > p.min && time.Since(idleSince) >= p.keepAlive {
				p.workers--
				p.mu.Unlock()
				return
			}

			var timer *time.Timer
			if p.workers > p.min {
				timer = time.AfterFunc(p.keepAlive-time.Since(idleSince), p.wakeAll)
			}
			p.idle++
			p.cond.Wait()
			p.idle--
			if timer != nil {
				timer.Stop()
			}
		}

		if len(p.queue) == 0 {
			// Closed and drained
			p.workers--
			p.mu.Unlock()
			return
		}

		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.busy++
		p.mu.Unlock()

		p.run(task)

		p.mu.Lock()
		p.busy--
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Executor task panicked")
		}
	}()
	task()
}

func (p *Pool) wakeAll() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Close stops accepting tasks, runs everything already queued, and waits
// for all workers to exit. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats reports live workers, workers running a task, and queued tasks
func (p *Pool) Stats() (workers, busy, queued int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers, p.busy, len(p.queue)
}

// Go runs fn on the pool and returns a future for its result. A panic in
// fn resolves the future with an error.
func Go[T any](p *Pool, fn func() (T, error)) *future.Future[T] {
	promise := future.NewPromise[T]()

	err := p.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				promise.Set(zero, fmt.Errorf("task panicked: %v", r))
			}
		}()
		v, err := fn()
		promise.Set(v, err)
	})
	if err != nil {
		var zero T
		promise.Set(zero, err)
	}

	return promise.Future()
}

type poolKey struct{}

// Running reports whether ctx was handed out by GoContext on p, i.e. the
// caller is already occupying one of p's workers.
func Running(ctx context.Context, p *Pool) bool {
	owner, _ := ctx.Value(poolKey{}).(*Pool)
	return owner == p
}

// GoContext is Go for context-aware work. fn receives ctx marked as running
// on p. When ctx is already marked for p, fn runs inline on the calling
// worker instead of queueing behind it, so nested fan-outs cannot starve a
// saturated pool.
func GoContext[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) *future.Future[T] {
	if Running(ctx, p) {
		promise := future.NewPromise[T]()
		func() {
			defer func() {
				if r := recover(); r != nil {
					var zero T
					promise.Set(zero, fmt.Errorf("task panicked: %v", r))
				}
			}()
			v, err := fn(ctx)
			promise.Set(v, err)
		}()
		return promise.Future()
	}

	marked := context.WithValue(ctx, poolKey{}, p)
	return Go(p, func() (T, error) { return fn(marked) })
}

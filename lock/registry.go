// Package lock provides a registry of keyed, fair, reentrant mutexes.
//
// Keys are created on first acquisition and never deleted. Reentrancy is
// scoped to an owner token carried in the context; see WithOwner.
package lock

import (
	"container/list"
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

type ownerKey struct{}

type owner struct {
	anonymous bool
}

// WithOwner returns a context carrying a lock owner token. Locks acquired
// with the returned context (or any child of it) are reentrant for that
// owner. If ctx already carries an owner it is returned unchanged.
func WithOwner(ctx context.Context) context.Context {
	if ownerFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, ownerKey{}, &owner{})
}

func ownerFrom(ctx context.Context) *owner {
	o, _ := ctx.Value(ownerKey{}).(*owner)
	return o
}

type waiter struct {
	owner *owner
	ready chan struct{}
}

// mutex is a FIFO reentrant lock. Ownership is handed directly to the
// oldest waiter on release so late arrivals cannot barge.
type mutex struct {
	mu      sync.Mutex
	holder  *owner
	depth   int
	waiters *list.List
}

func newMutex() *mutex {
	return &mutex{waiters: list.New()}
}

func (m *mutex) lock(ctx context.Context, o *owner) error {
	m.mu.Lock()
	if m.holder == nil && m.waiters.Len() == 0 {
		m.holder = o
		m.depth = 1
		m.mu.Unlock()
		return nil
	}
	if m.holder == o && !o.anonymous {
		m.depth++
		m.mu.Unlock()
		return nil
	}

	w := &waiter{owner: o, ready: make(chan struct{})}
	elem := m.waiters.PushBack(w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	m.mu.Lock()
	select {
	case <-w.ready:
		// Handed off between cancellation and re-locking; pass it on.
		m.depth = 0
		m.handoff()
	default:
		m.waiters.Remove(elem)
	}
	m.mu.Unlock()
	return ctx.Err()
}

// unlock returns false when o does not hold the mutex
func (m *mutex) unlock(o *owner) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holder == nil {
		return false
	}
	if o == nil {
		if !m.holder.anonymous {
			return false
		}
	} else if m.holder != o {
		return false
	}

	m.depth--
	if m.depth > 0 {
		return true
	}
	m.handoff()
	return true
}

// handoff must be called with m.mu held
func (m *mutex) handoff() {
	front := m.waiters.Front()
	if front == nil {
		m.holder = nil
		m.depth = 0
		return
	}
	w := m.waiters.Remove(front).(*waiter)
	m.holder = w.owner
	m.depth = 1
	close(w.ready)
}

// Registry maps string keys to lazily created reentrant mutexes
type Registry struct {
	locks *xsync.MapOf[string, *mutex]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		locks: xsync.NewMapOf[string, *mutex](),
	}
}

// Acquire blocks until the lock for key is held by the owner in ctx.
// Contexts without an owner acquire non-reentrantly. Returns ctx.Err()
// if ctx is done before the lock is granted.
func (r *Registry) Acquire(ctx context.Context, key string) error {
	m, _ := r.locks.LoadOrCompute(key, newMutex)

	o := ownerFrom(ctx)
	if o == nil {
		o = &owner{anonymous: true}
	}
	return m.lock(ctx, o)
}

// Release releases one hold of key. Unknown keys are ignored.
func (r *Registry) Release(ctx context.Context, key string) {
	m, ok := r.locks.Load(key)
	if !ok {
		return
	}
	if !m.unlock(ownerFrom(ctx)) {
		log.Warn().Str("key", key).Msg("Ignoring release of lock not held by caller")
	}
}

// Len returns the number of keys ever acquired
func (r *Registry) Len() int {
	return r.locks.Size()
}

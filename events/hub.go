package events

import (
	"sync"
	"sync/atomic"

	"github.com/maxpert/mirrordb/cluster"
	"github.com/maxpert/mirrordb/hlc"
	"github.com/maxpert/mirrordb/node"
)

// defaultBufferSize is the buffer of each subscriber channel. Events for
// subscribers that fall further behind are dropped.
const defaultBufferSize = 64

type subscription struct {
	id     uint64
	ch     chan Event
	closed atomic.Bool
}

func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Hub fans membership events out to subscribers without blocking the
// cluster. It is registered on a cluster as a Listener.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64
	dropped       atomic.Uint64
	clock         *hlc.Clock
}

var _ cluster.Listener = (*Hub)(nil)

// NewHub stamps events with timestamps from clock
func NewHub(clock *hlc.Clock) *Hub {
	return &Hub{
		subscriptions: make(map[uint64]*subscription),
		clock:         clock,
	}
}

func (h *Hub) DatabaseActivated(clusterID string, n node.Node) {
	h.Emit(h.stamp(Event{Type: Activated, Cluster: clusterID, Database: n.ID()}))
}

func (h *Hub) DatabaseDeactivated(clusterID string, n node.Node) {
	h.Emit(h.stamp(Event{Type: Deactivated, Cluster: clusterID, Database: n.ID()}))
}

func (h *Hub) stamp(e Event) Event {
	ts := h.clock.Now()
	e.ID = ts.ID()
	e.Time = ts.Time()
	return e
}

// Emit delivers e to every subscriber with buffer space (non-blocking)
func (h *Hub) Emit(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscriptions {
		select {
		case sub.ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns the number of events not delivered because a
// subscriber buffer was full
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Subscribe returns a buffered event channel and an idempotent cancel
// function that closes it
func (h *Hub) Subscribe() (<-chan Event, func()) {
	sub := &subscription{
		id: h.nextID.Add(1),
		ch: make(chan Event, defaultBufferSize),
	}

	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	h.mu.Unlock()

	return sub.ch, func() { h.unsubscribe(sub.id) }
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscriptions[id]
	if ok {
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Close cancels every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscriptions
	h.subscriptions = make(map[uint64]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

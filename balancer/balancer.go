// Package balancer holds the set of active nodes of a cluster and picks
// the node a single-node read is routed to.
//
// Every policy keeps its members in an immutable snapshot ordered by node
// id. Writers serialize on a mutex and publish a new snapshot; readers load
// the current snapshot without locking.
package balancer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/maxpert/mirrordb/node"
)

// ErrNoSuchElement is returned by First and Next on an empty balancer
var ErrNoSuchElement = errors.New("balancer: no such element")

// Policy names accepted by New
const (
	RoundRobin     = "round-robin"
	Random         = "random"
	WeightedRandom = "weighted-random"
	Load           = "load"
)

// Balancer is a policy-driven container of active nodes
type Balancer interface {
	// Add returns false if a node with the same id is already a member
	Add(n node.Node) bool
	// Remove returns false if n was not a member
	Remove(n node.Node) bool
	Contains(n node.Node) bool
	// ToArray returns the members ordered by id
	ToArray() []node.Node
	// First returns the member with the lowest id
	First() (node.Node, error)
	// Next returns the member the next read should be routed to
	Next() (node.Node, error)
	BeforeOperation(n node.Node)
	AfterOperation(n node.Node)
}

// New creates an empty balancer for the named policy
func New(kind string) (Balancer, error) {
	switch kind {
	case RoundRobin, "":
		return NewRoundRobin(), nil
	case Random:
		return NewRandom(), nil
	case WeightedRandom:
		return NewWeightedRandom(), nil
	case Load:
		return NewLoad(), nil
	default:
		return nil, fmt.Errorf("unknown balancer: %s", kind)
	}
}

// members is the copy-on-write node set shared by all policies
type members struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]node.Node]
}

func (m *members) load() []node.Node {
	if s := m.snapshot.Load(); s != nil {
		return *s
	}
	return nil
}

func indexOf(nodes []node.Node, id string) (int, bool) {
	i := sort.Search(len(nodes), func(i int) bool {
		return nodes[i].ID() >= id
	})
	return i, i < len(nodes) && nodes[i].ID() == id
}

func (m *members) add(n node.Node) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(n, nil)
}

// addLocked publishes a snapshot including n. onAdd runs before the
// snapshot becomes visible. Caller holds mu.
func (m *members) addLocked(n node.Node, onAdd func()) bool {
	current := m.load()
	i, found := indexOf(current, n.ID())
	if found {
		return false
	}

	next := make([]node.Node, 0, len(current)+1)
	next = append(next, current[:i]...)
	next = append(next, n)
	next = append(next, current[i:]...)
	if onAdd != nil {
		onAdd()
	}
	m.snapshot.Store(&next)
	return true
}

func (m *members) remove(n node.Node) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(n, nil)
}

// removeLocked publishes a snapshot without n. onRemove runs after the
// snapshot is visible. Caller holds mu.
func (m *members) removeLocked(n node.Node, onRemove func()) bool {
	current := m.load()
	i, found := indexOf(current, n.ID())
	if !found {
		return false
	}

	next := make([]node.Node, 0, len(current)-1)
	next = append(next, current[:i]...)
	next = append(next, current[i+1:]...)
	m.snapshot.Store(&next)
	if onRemove != nil {
		onRemove()
	}
	return true
}

func (m *members) Contains(n node.Node) bool {
	_, found := indexOf(m.load(), n.ID())
	return found
}

func (m *members) ToArray() []node.Node {
	current := m.load()
	out := make([]node.Node, len(current))
	copy(out, current)
	return out
}

func (m *members) First() (node.Node, error) {
	current := m.load()
	if len(current) == 0 {
		return nil, ErrNoSuchElement
	}
	return current[0], nil
}

func (m *members) Add(n node.Node) bool    { return m.add(n) }
func (m *members) Remove(n node.Node) bool { return m.remove(n) }

// BeforeOperation and AfterOperation are no-ops for policies without load tracking
func (m *members) BeforeOperation(node.Node) {}
func (m *members) AfterOperation(node.Node)  {}

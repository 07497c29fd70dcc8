// Package hlc issues hybrid logical timestamps. Membership events are
// stamped with them so consumers can order and deduplicate events coming
// from several mirrordb instances.
package hlc

import (
	"sync"
	"time"
)

const (
	// LogicalBits is the number of bits reserved for the logical counter
	// in an ID. 16 bits = ~65k IDs per millisecond per instance.
	LogicalBits = 16
	LogicalMask = (1 << LogicalBits) - 1

	// InstanceBits is the number of bits reserved for the instance id
	InstanceBits = 6
	InstanceMask = (1 << InstanceBits) - 1

	// MaxLogical is the logical counter value at which Now waits for the
	// next millisecond
	MaxLogical = LogicalMask
)

// Clock is a Hybrid Logical Clock. Safe for concurrent use.
type Clock struct {
	instanceID uint64
	wallTime   int64
	logical    int32
	lastMS     int64
	now        func() time.Time
	mu         sync.Mutex
}

// Timestamp is a point in time that is unique per instance
type Timestamp struct {
	WallTime   int64
	Logical    int32
	InstanceID uint64
}

func NewClock(instanceID uint64) *Clock {
	return newClock(instanceID, time.Now)
}

func newClock(instanceID uint64, now func() time.Time) *Clock {
	wall := now().UnixNano()
	return &Clock{
		instanceID: instanceID,
		wallTime:   wall,
		lastMS:     wall / 1_000_000,
		now:        now,
	}
}

// Now returns a timestamp strictly after every timestamp this clock
// issued before, even if the wall clock moves backwards
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	physical := c.now().UnixNano()
	if physical > c.wallTime {
		c.wallTime = physical
	}

	// Logical resets per millisecond so it never spills into the time bits of ID
	if ms := c.wallTime / 1_000_000; ms > c.lastMS {
		c.lastMS = ms
		c.logical = 0
	}

	for c.logical >= MaxLogical {
		time.Sleep(100 * time.Microsecond)
		now := c.now().UnixNano()
		if ms := now / 1_000_000; ms > c.lastMS {
			c.wallTime = now
			c.lastMS = ms
			c.logical = 0
		}
	}

	c.logical++
	return Timestamp{
		WallTime:   c.wallTime,
		Logical:    c.logical,
		InstanceID: c.instanceID,
	}
}

// Compare returns -1 if a < b, 0 if a == b, 1 if a > b. Instance id
// breaks ties.
func Compare(a, b Timestamp) int {
	switch {
	case a.WallTime != b.WallTime:
		return cmp(a.WallTime, b.WallTime)
	case a.Logical != b.Logical:
		return cmp(int64(a.Logical), int64(b.Logical))
	case a.InstanceID < b.InstanceID:
		return -1
	case a.InstanceID > b.InstanceID:
		return 1
	}
	return 0
}

func cmp(a, b int64) int {
	if a < b {
		return -1
	}
	return 1
}

func (t Timestamp) Time() time.Time {
	return time.Unix(0, t.WallTime)
}

func (t Timestamp) String() string {
	return t.Time().Format(time.RFC3339Nano)
}

// ID packs t into 64 bits: (ms << 22) | (instance << 16) | logical.
// IDs from one clock are strictly increasing.
func (t Timestamp) ID() uint64 {
	ms := uint64(t.WallTime / 1_000_000)
	instance := t.InstanceID & InstanceMask
	logical := uint64(t.Logical) & LogicalMask
	return (ms << (InstanceBits + LogicalBits)) | (instance << LogicalBits) | logical
}

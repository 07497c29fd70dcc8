package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Acquire(ctx, "seq"))
	r.Release(ctx, "seq")
	require.NoError(t, r.Acquire(ctx, "seq"))
	r.Release(ctx, "seq")

	assert.Equal(t, 1, r.Len())
}

func TestReleaseUnknownKeyIsNoop(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Release(context.Background(), "missing")
	assert.Equal(t, 0, r.Len())
}

func TestReentrantForSameOwner(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	ctx := WithOwner(context.Background())

	require.NoError(t, r.Acquire(ctx, "k"))
	require.NoError(t, r.Acquire(ctx, "k"))

	other := WithOwner(context.Background())
	acquired := make(chan struct{})
	go func() {
		if err := r.Acquire(other, "k"); err == nil {
			close(acquired)
		}
	}()

	r.Release(ctx, "k")
	select {
	case <-acquired:
		t.Fatal("lock granted while still held once")
	case <-time.After(50 * time.Millisecond):
	}

	r.Release(ctx, "k")
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired after full release")
	}
	r.Release(other, "k")
}

func TestAnonymousCallersAreNotReentrant(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Acquire(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r.Release(context.Background(), "k")
	require.NoError(t, r.Acquire(context.Background(), "k"))
	r.Release(context.Background(), "k")
}

func TestReleaseByNonOwnerIsIgnored(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	holder := WithOwner(context.Background())
	require.NoError(t, r.Acquire(holder, "k"))

	r.Release(WithOwner(context.Background()), "k")
	r.Release(context.Background(), "k")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, r.Acquire(ctx, "k"))

	r.Release(holder, "k")
}

func TestCancelledWaiterDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	holder := WithOwner(context.Background())
	require.NoError(t, r.Acquire(holder, "k"))

	cancelled, cancel := context.WithCancel(WithOwner(context.Background()))
	errCh := make(chan error, 1)
	go func() { errCh <- r.Acquire(cancelled, "k") }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	next := WithOwner(context.Background())
	done := make(chan struct{})
	go func() {
		if err := r.Acquire(next, "k"); err == nil {
			close(done)
		}
	}()
	r.Release(holder, "k")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter behind cancelled waiter never acquired")
	}
	r.Release(next, "k")
}

func TestFIFOOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	holder := WithOwner(context.Background())
	require.NoError(t, r.Acquire(holder, "k"))

	const waiters = 5
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		ctx := WithOwner(context.Background())
		go func(i int) {
			defer wg.Done()
			if err := r.Acquire(ctx, "k"); err != nil {
				t.Errorf("acquire %d: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r.Release(ctx, "k")
		}(i)
		// Enqueue waiters one at a time so arrival order is known
		require.Eventually(t, func() bool {
			m, _ := r.locks.Load("k")
			m.mu.Lock()
			defer m.mu.Unlock()
			return m.waiters.Len() == i+1
		}, 2*time.Second, time.Millisecond)
	}

	r.Release(holder, "k")
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestSameKeyNeverOverlaps(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var inside atomic.Int32
	var overlaps atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := WithOwner(context.Background())
			if err := r.Acquire(ctx, "orders"); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if inside.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			r.Release(ctx, "orders")
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load())
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := WithOwner(context.Background())
	require.NoError(t, r.Acquire(a, "a"))
	defer r.Release(a, "a")

	ctx, cancel := context.WithTimeout(WithOwner(context.Background()), time.Second)
	defer cancel()
	require.NoError(t, r.Acquire(ctx, "b"))
	r.Release(ctx, "b")

	assert.Equal(t, 2, r.Len())
}

func TestWithOwnerKeepsExisting(t *testing.T) {
	t.Parallel()

	ctx := WithOwner(context.Background())
	assert.Same(t, ownerFrom(ctx), ownerFrom(WithOwner(ctx)))
}

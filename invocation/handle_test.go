package invocation

import (
	"context"
	"fmt"
	"testing"

	"github.com/maxpert/mirrordb/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThenScopesToSurvivors(t *testing.T) {
	t.Parallel()

	c, nodes := newActiveCluster(t, []string{"a", "b", "c", "d"})
	ctx := context.Background()

	h, err := Write(ctx, c, "UPDATE t SET x = 1", failOn("b"))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "d"}, node.IDs(h.Nodes()))

	// b rejoins but never produced a result in h; d drops out
	_, err = c.Activate(ctx, nodes["b"])
	require.NoError(t, err)
	c.Deactivate(nodes["d"])

	assert.Equal(t, []string{"a", "c"}, node.IDs(h.Live()))
	assert.Equal(t, []string{"d"}, node.IDs(h.Orphaned()))

	next, err := Then(ctx, h, "", func(ctx context.Context, n node.Node, v string) (string, error) {
		return fmt.Sprintf("%s/%s", v, n.ID()), nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "a/a", "c": "c/c"}, next.Results())
}

func TestThenDeactivatesFailures(t *testing.T) {
	t.Parallel()

	c, _ := newActiveCluster(t, []string{"a", "b", "c"})
	ctx := context.Background()

	h, err := Write(ctx, c, "UPDATE t SET x = 1", nodeID)
	require.NoError(t, err)

	next, err := Then(ctx, h, "", func(ctx context.Context, n node.Node, v string) (int, error) {
		if v == "c" {
			return 0, errInjected
		}
		return len(v), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Len())
	assert.Equal(t, []string{"c"}, c.InactiveDatabases())

	_, err = Then(ctx, next, "", func(ctx context.Context, n node.Node, v int) (int, error) {
		return 0, errInjected
	})
	var all *AllNodesFailedError
	require.ErrorAs(t, err, &all)
	assert.Len(t, all.Failures, 2)
}

func TestThenReadPicksFromHandle(t *testing.T) {
	t.Parallel()

	c, nodes := newActiveCluster(t, []string{"a", "b", "c"})
	ctx := context.Background()

	h, err := Write(ctx, c, "UPDATE t SET x = 1", failOn("a", "b"))
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, node.IDs(h.Nodes()))

	// a and b were deactivated; bring them back so the balancer offers them
	for _, id := range []string{"a", "b"} {
		_, err := c.Activate(ctx, nodes[id])
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		got, err := ThenRead(ctx, h, func(ctx context.Context, n node.Node, v string) (string, error) {
			return v + "@" + n.ID(), nil
		})
		require.NoError(t, err)
		assert.Equal(t, "c@c", got)
	}
}

func TestThenReadRetriesWithinHandle(t *testing.T) {
	t.Parallel()

	c, _ := newActiveCluster(t, []string{"a", "b"})
	ctx := context.Background()

	h, err := Write(ctx, c, "UPDATE t SET x = 1", nodeID)
	require.NoError(t, err)

	calls := 0
	got, err := ThenRead(ctx, h, func(ctx context.Context, n node.Node, v string) (string, error) {
		calls++
		if calls == 1 {
			return "", errInjected
		}
		return v, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, c.ActiveDatabases(), 1)
	assert.Equal(t, c.ActiveDatabases()[0], got)
}

func TestThenReadNoLiveDatabases(t *testing.T) {
	t.Parallel()

	c, nodes := newActiveCluster(t, []string{"a", "b"})
	ctx := context.Background()

	h, err := Write(ctx, c, "UPDATE t SET x = 1", failOn("b"))
	require.NoError(t, err)
	c.Deactivate(nodes["a"])

	_, err = ThenRead(ctx, h, func(ctx context.Context, n node.Node, v string) (string, error) {
		return v, nil
	})
	var none *NoActiveDatabasesError
	assert.ErrorAs(t, err, &none)
}

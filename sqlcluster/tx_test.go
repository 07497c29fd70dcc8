package sqlcluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxCommit(t *testing.T) {
	t.Parallel()

	tc := newTestCluster(t, "a", "b")
	ctx := context.Background()

	_, err := tc.db.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	tx, err := tc.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, tx.Handle().Len())

	_, err = tx.ExecContext(ctx, "INSERT INTO items (id, name) VALUES (1, 'one')")
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO items (id, name) VALUES (2, 'two')")
	require.NoError(t, err)

	rows, err := tx.QueryContext(ctx, "SELECT COUNT(*) FROM items")
	require.NoError(t, err)
	require.True(t, rows.Next())
	var n int
	require.NoError(t, rows.Scan(&n))
	require.NoError(t, rows.Close())
	assert.Equal(t, 2, n, "transaction sees its own writes")

	require.NoError(t, tx.Commit())
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.ErrorIs(t, tx.Rollback(), ErrTxDone)
	_, err = tx.ExecContext(ctx, "DELETE FROM items")
	assert.ErrorIs(t, err, ErrTxDone)

	assert.Equal(t, 2, tc.count(t, "a", "items"))
	assert.Equal(t, 2, tc.count(t, "b", "items"))
}

func TestTxRollback(t *testing.T) {
	t.Parallel()

	tc := newTestCluster(t, "a", "b")
	ctx := context.Background()

	_, err := tc.db.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	tx, err := tc.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO items (id) VALUES (1)")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Zero(t, tc.count(t, "a", "items"))
	assert.Zero(t, tc.count(t, "b", "items"))
}

func TestTxDropsDeactivatedDatabase(t *testing.T) {
	t.Parallel()

	tc := newTestCluster(t, "a", "b")
	ctx := context.Background()

	_, err := tc.db.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	tx, err := tc.db.BeginTx(ctx, nil)
	require.NoError(t, err)

	tc.db.Cluster().Deactivate(tc.nodes["b"])

	_, err = tx.ExecContext(ctx, "INSERT INTO items (id) VALUES (1)")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, 1, tc.count(t, "a", "items"))
	assert.Zero(t, tc.count(t, "b", "items"), "deactivated database is rolled back")
}

func TestStmt(t *testing.T) {
	t.Parallel()

	tc := newTestCluster(t, "a", "b")
	ctx := context.Background()

	_, err := tc.db.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	stmt, err := tc.db.PrepareContext(ctx, "INSERT INTO items (name) VALUES (?)")
	require.NoError(t, err)
	assert.Equal(t, 2, stmt.Handle().Len())

	for _, name := range []string{"x", "y", "z"} {
		res, err := stmt.ExecContext(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Handle().Len())
	}
	require.NoError(t, stmt.Close())
	require.NoError(t, stmt.Close())

	assert.Equal(t, 3, tc.count(t, "a", "items"))
	assert.Equal(t, 3, tc.count(t, "b", "items"))

	query, err := tc.db.PrepareContext(ctx, "SELECT name FROM items WHERE id = ?")
	require.NoError(t, err)
	defer query.Close()

	rows, err := query.QueryContext(ctx, 2)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var name string
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "y", name)
}

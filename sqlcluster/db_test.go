package sqlcluster

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/maxpert/mirrordb/cluster"
	"github.com/maxpert/mirrordb/dialect"
	"github.com/maxpert/mirrordb/invocation"
	"github.com/maxpert/mirrordb/node"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCluster struct {
	db    *DB
	paths map[string]string
	nodes map[string]node.Node
}

// newTestCluster creates one SQLite file database per id, all active
func newTestCluster(t *testing.T, ids ...string) *testCluster {
	t.Helper()

	dir := t.TempDir()
	tc := &testCluster{paths: map[string]string{}, nodes: map[string]node.Node{}}
	var nodes []node.Node
	for _, id := range ids {
		path := filepath.Join(dir, id+".db")
		n, err := node.NewDatabase(id, 1, "sqlite3", path)
		require.NoError(t, err)
		tc.paths[id] = path
		tc.nodes[id] = n
		nodes = append(nodes, n)
	}

	c, err := cluster.New("test", nodes, cluster.WithDialect(dialect.Identity))
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, ids, c.ActiveDatabases())

	tc.db = New(c)
	return tc
}

// count reads a table directly from one backing file
func (tc *testCluster) count(t *testing.T, id, table string) int {
	t.Helper()
	raw, err := sql.Open("sqlite3", tc.paths[id])
	require.NoError(t, err)
	defer raw.Close()

	var n int
	require.NoError(t, raw.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestExecReplicatesToAllDatabases(t *testing.T) {
	t.Parallel()

	tc := newTestCluster(t, "a", "b", "c")
	ctx := context.Background()

	_, err := tc.db.ExecContext(ctx, "CREATE TABLE orders (id INTEGER PRIMARY KEY AUTOINCREMENT, item TEXT)")
	require.NoError(t, err)

	res, err := tc.db.ExecContext(ctx, "INSERT INTO orders (item) VALUES (?)", "widget")
	require.NoError(t, err)

	id, err := res.LastInsertId()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.Equal(t, 3, res.Handle().Len())

	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, tc.count(t, id, "orders"), id)
	}
}

func TestQueryReadsOneDatabase(t *testing.T) {
	t.Parallel()

	tc := newTestCluster(t, "a", "b")
	ctx := context.Background()

	_, err := tc.db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	_, err = tc.db.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ('x', 'y')")
	require.NoError(t, err)

	rows, err := tc.db.QueryContext(ctx, "SELECT k, v FROM kv")
	require.NoError(t, err)
	var got []string
	for rows.Next() {
		var k, v string
		require.NoError(t, rows.Scan(&k, &v))
		got = append(got, k+"="+v)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"x=y"}, got)

	var v string
	require.NoError(t, tc.db.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ?", "x").Scan(&v))
	assert.Equal(t, "y", v)

	err = tc.db.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ?", "missing").Scan(&v)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Len(t, tc.db.Cluster().ActiveDatabases(), 2, "no rows is not a database failure")
}

func TestExecuteRoutesByStatement(t *testing.T) {
	t.Parallel()

	tc := newTestCluster(t, "a", "b")
	ctx := context.Background()

	assert.Equal(t, invocation.ModeWrite, tc.db.Mode("CREATE TABLE t (id INTEGER)"))
	assert.Equal(t, invocation.ModeRead, tc.db.Mode("SELECT * FROM t"))
	assert.Equal(t, invocation.ModeWrite, tc.db.Mode("SELECT 1; DELETE FROM t"))

	out, err := tc.db.Execute(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)
	assert.Equal(t, invocation.ModeWrite, out.Mode)
	assert.NotNil(t, out.Result)

	out, err = tc.db.Execute(ctx, "INSERT INTO t (id) VALUES (7)")
	require.NoError(t, err)
	assert.Equal(t, invocation.ModeWrite, out.Mode)

	out, err = tc.db.Execute(ctx, "SELECT id FROM t")
	require.NoError(t, err)
	assert.Equal(t, invocation.ModeRead, out.Mode)
	require.NotNil(t, out.Rows)
	defer out.Rows.Close()
	require.True(t, out.Rows.Next())
	var id int
	require.NoError(t, out.Rows.Scan(&id))
	assert.Equal(t, 7, id)

	assert.Equal(t, 1, tc.count(t, "a", "t"))
	assert.Equal(t, 1, tc.count(t, "b", "t"))
}

func TestIdentityInsertTakesLockKey(t *testing.T) {
	t.Parallel()

	tc := newTestCluster(t, "a", "b")
	ctx := context.Background()

	_, err := tc.db.ExecContext(ctx, "CREATE TABLE orders (id INTEGER PRIMARY KEY AUTOINCREMENT)")
	require.NoError(t, err)
	assert.Zero(t, tc.db.Cluster().LockKeyCount())

	_, err = tc.db.ExecContext(ctx, "INSERT INTO orders DEFAULT VALUES")
	require.NoError(t, err)
	assert.Equal(t, 1, tc.db.Cluster().LockKeyCount())
}

func TestDivergentDatabaseIsDeactivated(t *testing.T) {
	t.Parallel()

	tc := newTestCluster(t, "a", "b", "c")
	ctx := context.Background()

	// Make b diverge: its table already exists so the CREATE fails there only
	raw, err := sql.Open("sqlite3", tc.paths["b"])
	require.NoError(t, err)
	_, err = raw.Exec("CREATE TABLE orders (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	res, err := tc.db.ExecContext(ctx, "CREATE TABLE orders (id INTEGER)")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, node.IDs(res.Handle().Nodes()))
	assert.Equal(t, []string{"b"}, tc.db.Cluster().InactiveDatabases())

	// Unanimous failure is a statement error, not a membership change
	_, err = tc.db.ExecContext(ctx, "INSERT INTO missing_table VALUES (1)")
	var all *invocation.AllNodesFailedError
	require.ErrorAs(t, err, &all)
	assert.Equal(t, []string{"a", "c"}, tc.db.Cluster().ActiveDatabases())
}

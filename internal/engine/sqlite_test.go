package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestConn(t *testing.T) Conn {
	t.Helper()

	conn, err := NewSQLite().Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(context.Background(),
		"CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL, qty INTEGER)")
	require.NoError(t, err)

	return conn
}

func TestSQLite_ExecAndLastInsertID(t *testing.T) {
	conn := openTestConn(t)

	res, err := conn.Exec(context.Background(),
		"INSERT INTO items (name, qty) VALUES (?, ?)", "widget", 3)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.LastInsertID)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestSQLite_PrepareQueryStep(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := conn.Exec(ctx, "INSERT INTO items (name, qty) VALUES (?, 1)", name)
		require.NoError(t, err)
	}

	stmt, err := conn.Prepare(ctx, "SELECT name, qty FROM items ORDER BY id")
	require.NoError(t, err)
	defer stmt.Close()

	assert.Equal(t, "SELECT name, qty FROM items ORDER BY id", stmt.SQL())
	assert.Equal(t, 0, stmt.NumParams())

	rows, err := stmt.Query(ctx)
	require.NoError(t, err)

	var names []string
	for rows.Next() {
		vals := rows.Values()
		require.Len(t, vals, 2)
		names = append(names, string(vals[0].([]byte)))
		assert.Equal(t, int64(1), vals[1])
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestSQLite_ColumnMetadata(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	stmt, err := conn.Prepare(ctx, "SELECT id, name FROM items")
	require.NoError(t, err)
	defer stmt.Close()

	rows, err := stmt.Query(ctx)
	require.NoError(t, err)
	defer rows.Close()

	cols := rows.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "INTEGER", cols[0].DeclType)
	assert.Equal(t, "name", cols[1].Name)
	assert.Equal(t, "TEXT", cols[1].DeclType)
}

func TestSQLite_NumParams(t *testing.T) {
	conn := openTestConn(t)

	stmt, err := conn.Prepare(context.Background(),
		"INSERT INTO items (name, qty) VALUES (?, ?)")
	require.NoError(t, err)
	defer stmt.Close()

	assert.Equal(t, 2, stmt.NumParams())
}

func TestSQLite_StatementReuseAfterReset(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	_, err := conn.Exec(ctx, "INSERT INTO items (name, qty) VALUES ('x', 1)")
	require.NoError(t, err)

	stmt, err := conn.Prepare(ctx, "SELECT name FROM items")
	require.NoError(t, err)
	defer stmt.Close()

	// First cursor, abandoned mid-iteration.
	rows, err := stmt.Query(ctx)
	require.NoError(t, err)
	require.True(t, rows.Next())
	require.NoError(t, stmt.Reset())

	// Statement is reusable after reset; the second query re-executes.
	rows, err = stmt.Query(ctx)
	require.NoError(t, err)
	require.True(t, rows.Next())
	assert.Equal(t, []byte("x"), rows.Values()[0])
	require.NoError(t, rows.Close())
}

func TestSQLite_ConstraintErrorIsStructured(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	_, err := conn.Exec(ctx, "INSERT INTO items (name, qty) VALUES (NULL, 1)")
	require.Error(t, err)

	assert.True(t, IsEngineError(err), "constraint violations must surface as engine errors")

	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.NotZero(t, ee.Code)
	assert.Contains(t, ee.Message, "NOT NULL")
}

func TestSQLite_UnsupportedBindType(t *testing.T) {
	conn := openTestConn(t)

	_, err := conn.Exec(context.Background(),
		"INSERT INTO items (name, qty) VALUES (?, 1)", struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported bind type")
}

func TestSQLite_UpdateHook(t *testing.T) {
	conn := openTestConn(t)

	type update struct {
		table string
		rowid int64
	}
	var updates []update

	conn.RegisterHooks(HookSet{
		Update: func(op int, db, table string, rowid int64) {
			updates = append(updates, update{table: table, rowid: rowid})
		},
	})

	_, err := conn.Exec(context.Background(),
		"INSERT INTO items (name, qty) VALUES ('hooked', 1)")
	require.NoError(t, err)

	require.Len(t, updates, 1)
	assert.Equal(t, "items", updates[0].table)
	assert.Equal(t, int64(1), updates[0].rowid)
}

func TestSQLite_CommitHookVeto(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	veto := false
	conn.RegisterHooks(HookSet{
		Commit: func() error {
			if veto {
				return assert.AnError
			}
			return nil
		},
	})

	// Allowed commit.
	_, err := conn.Exec(ctx, "INSERT INTO items (name, qty) VALUES ('kept', 1)")
	require.NoError(t, err)

	// Vetoed commit rolls the insert back.
	veto = true
	_, err = conn.Exec(ctx, "INSERT INTO items (name, qty) VALUES ('dropped', 1)")
	require.Error(t, err)

	veto = false
	rows, err := conn.Exec(ctx, "DELETE FROM items WHERE name = 'dropped'")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows.RowsAffected, "vetoed insert must not persist")
}

func TestSQLite_AuthorizerDeny(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	conn.RegisterHooks(HookSet{
		Authorize: func(action int, arg1, arg2, arg3 string) AuthResult {
			if arg1 == "items" && arg2 == "" && arg3 == "main" {
				// Deny dropping the table, allow everything else.
				return AuthDeny
			}
			return AuthAllow
		},
	})

	_, err := conn.Prepare(ctx, "DROP TABLE items")
	require.Error(t, err, "authorizer deny must fail statement compilation")
}

func TestSQLite_OpenInvalidPath(t *testing.T) {
	_, err := NewSQLite().Open(context.Background(), "file:/nonexistent-dir-xyz/db.sqlite?mode=rw")
	assert.Error(t, err)
}

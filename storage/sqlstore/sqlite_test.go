package sqlstore_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/introspect"
	"github.com/apiforge/forge/model"
	"github.com/apiforge/forge/storage/sqlstore"
)

// openSQLite backs the store with a real in-memory database so the sqlite
// dialect paths run against an actual engine rather than a mock.
func openSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	// The in-memory database lives per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, ddl := range []string{
		`CREATE TABLE accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			name TEXT
		)`,
		`CREATE TABLE notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			body TEXT,
			account_id INTEGER REFERENCES accounts(id)
		)`,
	} {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}

	descs, failed := introspect.New([]model.Model{account{}, note{}}).ExtractAll()
	require.Empty(t, failed)
	return sqlstore.New(db, descs, sqlstore.SQLite)
}

func seedAccount(t *testing.T, store *sqlstore.Store, email, name string) any {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	rec, err := tx.Create(ctx, "Account", forge.Record{"email": email, "name": name})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return rec["id"]
}

func TestSQLiteRoundTrip(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	adaID := seedAccount(t, store, "ada@example.com", "Ada")
	seedAccount(t, store, "grace@example.com", "Grace")

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	for _, body := range []string{"first", "second", "third"} {
		_, err := tx.Create(ctx, "Note", forge.Record{"body": body, "account_id": adaID})
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	recs, err := store.Fetch(ctx, "Note", forge.FetchSpec{
		Where: &forge.Predicate{Path: "body", Op: "icontains", Value: "IR"},
		Order: []forge.OrderTerm{{Path: "id", Desc: true}},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "third", recs[0]["body"])
	assert.Equal(t, "first", recs[1]["body"])

	// Paging applies after ordering.
	recs, err = store.Fetch(ctx, "Note", forge.FetchSpec{
		Order: []forge.OrderTerm{{Path: "id"}},
		Page:  forge.PageSpec{Offset: 1, Limit: 1},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "second", recs[0]["body"])

	n, err := store.Count(ctx, "Note", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSQLiteJoinPredicate(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	adaID := seedAccount(t, store, "ada@example.com", "Ada")
	graceID := seedAccount(t, store, "grace@example.com", "Grace")

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Create(ctx, "Note", forge.Record{"body": "hers", "account_id": adaID})
	require.NoError(t, err)
	_, err = tx.Create(ctx, "Note", forge.Record{"body": "not hers", "account_id": graceID})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	recs, err := store.Fetch(ctx, "Note", forge.FetchSpec{
		Where: &forge.Predicate{Path: "account.name", Op: "exact", Value: "Ada"},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "hers", recs[0]["body"])
}

func TestSQLiteUpdateAndDelete(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	id := seedAccount(t, store, "ada@example.com", "Ada")

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	rec, err := tx.Update(ctx, "Account", id, forge.Record{"name": "Ada L."})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", rec["name"])

	_, err = tx.Update(ctx, "Account", int64(999), forge.Record{"name": "nobody"})
	assert.True(t, forge.IsNotFound(err))

	require.NoError(t, tx.Delete(ctx, "Account", id))
	err = tx.Delete(ctx, "Account", id)
	assert.True(t, forge.IsNotFound(err))
	require.NoError(t, tx.Commit())
}

func TestSQLiteConstraints(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	seedAccount(t, store, "ada@example.com", "Ada")

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	var ce *forge.ConstraintError
	_, err = tx.Create(ctx, "Account", forge.Record{"email": "ada@example.com", "name": "Dup"})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, forge.ConstraintUnique, ce.Kind)
	assert.Equal(t, "email", ce.Field)

	_, err = tx.Create(ctx, "Account", forge.Record{"name": "No Email"})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, forge.ConstraintNotNull, ce.Kind)
	assert.Equal(t, "email", ce.Field)

	_, err = tx.Create(ctx, "Note", forge.Record{"body": "dangling", "account_id": int64(999)})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, forge.ConstraintForeignKey, ce.Kind)
	assert.Empty(t, ce.Field)

	// Failed calls roll back to their savepoints; the unit keeps working.
	rec, err := tx.Create(ctx, "Account", forge.Record{"email": "grace@example.com", "name": "Grace"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	n, err := store.Count(ctx, "Account", &forge.Predicate{Path: "id", Op: "exact", Value: rec["id"]})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

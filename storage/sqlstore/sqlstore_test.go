package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/introspect"
	"github.com/apiforge/forge/model"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/model/rel"
	"github.com/apiforge/forge/storage/sqlstore"
)

type account struct{ model.Base }

func (account) Name() string { return "Account" }

func (account) Fields() []model.Field {
	return []model.Field{
		field.Integer("id").PrimaryKey().AutoCreate(),
		field.Text("email").MaxLength(120),
		field.Text("name").MaxLength(80),
	}
}

func (account) Relationships() []model.Relationship {
	return []model.Relationship{rel.OneToMany("notes", "Note")}
}

type note struct{ model.Base }

func (note) Name() string { return "Note" }

func (note) Fields() []model.Field {
	return []model.Field{
		field.Integer("id").PrimaryKey().AutoCreate(),
		field.Text("body").Blank(),
	}
}

func (note) Relationships() []model.Relationship {
	return []model.Relationship{rel.ManyToOne("account", "Account")}
}

func newStore(t *testing.T, dialect sqlstore.Dialect) (*sqlstore.Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	descs, failed := introspect.New([]model.Model{account{}, note{}}).ExtractAll()
	require.Empty(t, failed)
	return sqlstore.New(db, descs, dialect), mock, db
}

func noteColumns() []string {
	return []string{"id", "body", "account_id"}
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "notes", sqlstore.TableName("Note"))
	assert.Equal(t, "blog_entries", sqlstore.TableName("BlogEntry"))
}

func TestFetch(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.Postgres)
	mock.ExpectQuery(`SELECT notes\.id, notes\.body, notes\.account_id FROM notes`+
		` WHERE notes\.body LIKE \$1 ORDER BY notes\.id DESC LIMIT 2 OFFSET 1`).
		WithArgs("%go%").
		WillReturnRows(sqlmock.NewRows(noteColumns()).
			AddRow(int64(2), []byte("golang"), int64(1)).
			AddRow(int64(1), []byte("go faster"), int64(1)))

	recs, err := store.Fetch(context.Background(), "Note", forge.FetchSpec{
		Where: &forge.Predicate{Path: "body", Op: "contains", Value: "go"},
		Order: []forge.OrderTerm{{Path: "id", Desc: true}},
		Page:  forge.PageSpec{Offset: 1, Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "golang", recs[0]["body"], "text columns normalize to string")
	assert.Equal(t, int64(2), recs[0]["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchJoin(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.Postgres)
	mock.ExpectQuery(`SELECT notes\.id, notes\.body, notes\.account_id FROM notes`+
		` JOIN accounts AS account ON notes\.account_id = account\.id`+
		` WHERE \(notes\.body LIKE \$1 AND LOWER\(account\.name\) = LOWER\(\$2\)\)`).
		WithArgs("%go%", "acme").
		WillReturnRows(sqlmock.NewRows(noteColumns()).AddRow(int64(3), []byte("hi"), int64(9)))

	recs, err := store.Fetch(context.Background(), "Note", forge.FetchSpec{
		Where: &forge.Predicate{And: []*forge.Predicate{
			{Path: "body", Op: "contains", Value: "go"},
			{Path: "account.name", Op: "iexact", Value: "acme"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchUnknownColumn(t *testing.T) {
	store, _, _ := newStore(t, sqlstore.Postgres)
	_, err := store.Fetch(context.Background(), "Note", forge.FetchSpec{
		Where: &forge.Predicate{Path: "ghost", Op: "exact", Value: 1},
	})
	require.Error(t, err)

	_, err = store.Fetch(context.Background(), "Note", forge.FetchSpec{
		Where: &forge.Predicate{Path: "account.notes.body", Op: "exact", Value: "x"},
	})
	require.Error(t, err, "traversal is bounded to one join")
}

func TestCount(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.SQLite)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notes WHERE notes\.account_id = \?`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := store.Count(context.Background(), "Note",
		&forge.Predicate{Path: "account_id", Op: "exact", Value: int64(4)})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePostgres(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.Postgres)
	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO notes \(account_id, body\) VALUES \(\$1, \$2\)`+
		` RETURNING notes\.id, notes\.body, notes\.account_id`).
		WithArgs(int64(1), "hello").
		WillReturnRows(sqlmock.NewRows(noteColumns()).AddRow(int64(10), []byte("hello"), int64(1)))
	mock.ExpectExec(`^RELEASE SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^SET CONSTRAINTS ALL IMMEDIATE$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	rec, err := tx.Create(ctx, "Note", forge.Record{"body": "hello", "account_id": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec["id"])
	require.NoError(t, tx.Flush(ctx))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMySQL(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.MySQL)
	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO notes \(account_id, body\) VALUES \(\?, \?\)`).
		WithArgs(int64(1), "hello").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(`SELECT notes\.id, notes\.body, notes\.account_id FROM notes WHERE id = \?`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(noteColumns()).AddRow(int64(42), []byte("hello"), int64(1)))
	mock.ExpectExec(`^RELEASE SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	rec, err := tx.Create(ctx, "Note", forge.Record{"body": "hello", "account_id": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec["id"], "identifier comes from LastInsertId")
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFailureKeepsUnitUsable(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.Postgres)
	pqErr := &pq.Error{
		Code:    "23505",
		Message: "duplicate key value violates unique constraint",
		Detail:  `Key (email)=(x@y.dev) already exists.`,
	}
	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO accounts`).WillReturnError(pqErr)
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^SAVEPOINT forge_sp_2$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO accounts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(int64(2), []byte("z@y.dev"), []byte("zed")))
	mock.ExpectExec(`^RELEASE SAVEPOINT forge_sp_2$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	_, err = tx.Create(ctx, "Account", forge.Record{"email": "x@y.dev", "name": "ex"})
	require.Error(t, err)
	require.True(t, forge.IsConstraintError(err))
	var ce *forge.ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, forge.ConstraintUnique, ce.Kind)
	assert.Equal(t, "email", ce.Field)

	_, err = tx.Create(ctx, "Account", forge.Record{"email": "z@y.dev", "name": "zed"})
	require.NoError(t, err, "a failed call must not poison the unit")
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLConstraintAttribution(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.MySQL)
	myErr := &mysql.MySQLError{
		Number:  1062,
		Message: "Duplicate entry 'x@y.dev' for key 'accounts.email'",
	}
	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO accounts`).WillReturnError(myErr)
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Create(ctx, "Account", forge.Record{"email": "x@y.dev", "name": "ex"})
	var ce *forge.ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, forge.ConstraintUnique, ce.Kind)
	assert.Equal(t, "email", ce.Field)
	require.NoError(t, tx.Rollback())
}

func TestSQLiteConstraintAttribution(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.SQLite)
	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnError(errors.New("constraint failed: NOT NULL constraint failed: accounts.email (1299)"))
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Create(ctx, "Account", forge.Record{"email": nil, "name": "ex"})
	var ce *forge.ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, forge.ConstraintNotNull, ce.Kind)
	assert.Equal(t, "email", ce.Field)
	require.NoError(t, tx.Rollback())
}

func TestUpdate(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.Postgres)
	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE notes SET body = \$1 WHERE id = \$2`).
		WithArgs("edited", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT notes\.id, notes\.body, notes\.account_id FROM notes WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(noteColumns()).AddRow(int64(10), []byte("edited"), int64(1)))
	mock.ExpectExec(`^RELEASE SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	rec, err := tx.Update(ctx, "Note", int64(10), forge.Record{"body": "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", rec["body"])
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNotFound(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.Postgres)
	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE notes SET body = \$1 WHERE id = \$2`).
		WithArgs("edited", int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Update(ctx, "Note", int64(99), forge.Record{"body": "edited"})
	assert.True(t, forge.IsNotFound(err))
	require.NoError(t, tx.Rollback())
}

func TestDelete(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.Postgres)
	mock.ExpectBegin()
	mock.ExpectExec(`^SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM notes WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^RELEASE SAVEPOINT forge_sp_1$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Delete(ctx, "Note", int64(10)))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlushIsNoOpOffPostgres(t *testing.T) {
	store, mock, _ := newStore(t, sqlstore.SQLite)
	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Flush(ctx))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

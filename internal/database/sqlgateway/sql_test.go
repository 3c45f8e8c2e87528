package sqlgateway_test

import (
	"context"
	"database/sql"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/denismitr/upgradedb/internal/database"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway/sqlite"
	"github.com/denismitr/upgradedb/migration"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
	"time"
)

func newSqliteGateway(t *testing.T, opts sqlgateway.Options) (*sqlgateway.SQLGateway, *sql.DB) {
	t.Helper()

	db, err := sql.Open(sqlite.DriverName, filepath.Join(t.TempDir(), "upgradedb.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	g := sqlgateway.New(db, sqlite.DriverName, sqlite.NewDialect(database.DefaultMigrationsTable), opts)
	t.Cleanup(func() { _ = g.Close() })

	ctx := context.Background()
	require.NoError(t, g.Connect(ctx))
	require.NoError(t, g.CreateMigrationsTable(ctx))

	return g, db
}

func prepare(t *testing.T, label, content string, r *migration.Registry) database.Migration {
	t.Helper()

	f, err := migration.NewFile(migration.DefaultDatabase, filepath.Join("migrations", label))
	require.NoError(t, err)

	return database.Migration{File: f, Content: content, Runnable: f.Runnable(content, r)}
}

func tables(t *testing.T, g *sqlgateway.SQLGateway) []string {
	t.Helper()

	result, err := g.ShowTables(context.Background())
	require.NoError(t, err)

	return result
}

func TestSQLGateway_Migrate(t *testing.T) {
	ctx := context.Background()

	t.Run("applies migrations in order and records each of them", func(t *testing.T) {
		g, _ := newSqliteGateway(t, sqlgateway.Options{})

		migrations := database.Migrations{
			prepare(t, "0001_create_foo.sql", "### New Model: app.Foo\nCREATE TABLE foo (id INTEGER PRIMARY KEY, name TEXT);", nil),
			prepare(t, "0002_create_bar.sql", "CREATE TABLE bar (id INTEGER PRIMARY KEY);\nINSERT INTO bar (id) VALUES (1);", nil),
		}

		migrated, err := g.Migrate(ctx, migration.DefaultDatabase, migrations)
		require.NoError(t, err)
		assert.Equal(t, []string{"0001_create_foo.sql", "0002_create_bar.sql"}, migrated.Labels())

		records, err := g.ReadApplied(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, []string{"0001_create_foo.sql", "0002_create_bar.sql"}, records.Labels())
		assert.Equal(t, migrations[0].Content, records[0].Content)
		assert.False(t, records[0].Revision.Valid)
		assert.False(t, records[0].DateCreated.IsZero())

		assert.Equal(t, []string{"bar", "foo", "migrations"}, tables(t, g))
	})

	t.Run("nothing to migrate", func(t *testing.T) {
		g, _ := newSqliteGateway(t, sqlgateway.Options{})

		migrated, err := g.Migrate(ctx, migration.DefaultDatabase, nil)
		require.ErrorIs(t, err, database.ErrNoChangesRequired)
		assert.Nil(t, migrated)
	})

	t.Run("keeps the migrations that succeeded before a failure", func(t *testing.T) {
		g, _ := newSqliteGateway(t, sqlgateway.Options{})

		migrations := database.Migrations{
			prepare(t, "0001_good.sql", "CREATE TABLE good (id INTEGER PRIMARY KEY);", nil),
			prepare(t, "0002_bad.sql", "CREATE TABLE half (id INTEGER);\nTHIS IS NOT SQL;", nil),
			prepare(t, "0003_after.sql", "CREATE TABLE after (id INTEGER PRIMARY KEY);", nil),
		}

		migrated, err := g.Migrate(ctx, migration.DefaultDatabase, migrations)
		require.Error(t, err)
		assert.Equal(t, []string{"0001_good.sql"}, migrated.Labels())

		var execErr *database.ExecutionError
		require.True(t, errors.As(err, &execErr))
		assert.Equal(t, "0002_bad.sql", execErr.Label)
		assert.Equal(t, migration.DefaultDatabase, execErr.Database)

		records, err := g.ReadApplied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"0001_good.sql"}, records.Labels())

		assert.Equal(t, []string{"good", "migrations"}, tables(t, g))
	})

	t.Run("atomic mode rolls back the whole run", func(t *testing.T) {
		g, _ := newSqliteGateway(t, sqlgateway.Options{Atomic: true})

		migrations := database.Migrations{
			prepare(t, "0001_good.sql", "CREATE TABLE good (id INTEGER PRIMARY KEY);", nil),
			prepare(t, "0002_bad.sql", "THIS IS NOT SQL;", nil),
		}

		migrated, err := g.Migrate(ctx, migration.DefaultDatabase, migrations)
		require.Error(t, err)
		assert.Nil(t, migrated)

		var execErr *database.ExecutionError
		require.True(t, errors.As(err, &execErr))
		assert.Equal(t, "0002_bad.sql", execErr.Label)

		records, err := g.ReadApplied(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 0)

		assert.Equal(t, []string{"migrations"}, tables(t, g))
	})

	t.Run("script migrations run inside the transaction", func(t *testing.T) {
		g, _ := newSqliteGateway(t, sqlgateway.Options{})

		r := migration.NewRegistry()
		require.NoError(t, r.Add("0002_fill.go", func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO foo (name) VALUES ('a'), ('b')")
			return err
		}))

		migrations := database.Migrations{
			prepare(t, "0001_create_foo.sql", "CREATE TABLE foo (id INTEGER PRIMARY KEY, name TEXT);", r),
			prepare(t, "0002_fill.go", "package migrations", r),
			prepare(t, "0003_unregistered.go", "package migrations", r),
		}

		migrated, err := g.Migrate(ctx, migration.DefaultDatabase, migrations)
		require.NoError(t, err)
		assert.Len(t, migrated, 3)

		records, err := g.ReadApplied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"0001_create_foo.sql", "0002_fill.go", "0003_unregistered.go"}, records.Labels())
	})

	t.Run("a panicking script is reported as a failure", func(t *testing.T) {
		g, _ := newSqliteGateway(t, sqlgateway.Options{})

		r := migration.NewRegistry()
		require.NoError(t, r.Add("0001_panic.go", func(ctx context.Context, tx *sql.Tx) error {
			panic("boom")
		}))

		migrated, err := g.Migrate(ctx, migration.DefaultDatabase, database.Migrations{
			prepare(t, "0001_panic.go", "package migrations", r),
		})
		require.Error(t, err)
		assert.Len(t, migrated, 0)
		assert.True(t, errors.Is(err, migration.ErrScriptPanicked))

		records, err := g.ReadApplied(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 0)
	})
}

func TestSQLGateway_Seed(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds once and then reports the existing record", func(t *testing.T) {
		g, _ := newSqliteGateway(t, sqlgateway.Options{})
		now := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
		g.SetClock(func() time.Time { return now })

		record, created, err := g.Seed(ctx, "0001_init.sql", "CREATE TABLE foo (id INTEGER);")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "0001_init.sql", record.Label)

		record, created, err = g.Seed(ctx, "0001_init.sql", "changed")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "CREATE TABLE foo (id INTEGER);", record.Content)
		assert.True(t, now.Equal(record.DateCreated))

		records, err := g.ReadApplied(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)

		// seeding never runs the migration
		assert.Equal(t, []string{"migrations"}, tables(t, g))
	})
}

func TestSQLGateway_SetRevision(t *testing.T) {
	ctx := context.Background()
	g, _ := newSqliteGateway(t, sqlgateway.Options{})

	_, err := g.Migrate(ctx, migration.DefaultDatabase, database.Migrations{
		prepare(t, "0001_init.sql", "CREATE TABLE foo (id INTEGER);", nil),
	})
	require.NoError(t, err)

	require.NoError(t, g.SetRevision(ctx, "0001_init.sql", "a1b2c3"))

	records, err := g.ReadApplied(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, sql.NullString{String: "a1b2c3", Valid: true}, records[0].Revision)
}

func TestSQLGateway_DropMigrationsTable(t *testing.T) {
	ctx := context.Background()
	g, _ := newSqliteGateway(t, sqlgateway.Options{})

	require.NoError(t, g.DropMigrationsTable(ctx))
	assert.Len(t, tables(t, g), 0)

	require.NoError(t, g.CreateMigrationsTable(ctx))
	require.NoError(t, g.CreateMigrationsTable(ctx))
	assert.Equal(t, []string{"migrations"}, tables(t, g))
}

type spyLocker struct {
	calls []string
	err   error
}

func (l *spyLocker) Lock(context.Context, sqlgateway.CtxExecutor) error {
	l.calls = append(l.calls, "lock")
	return l.err
}

func (l *spyLocker) Unlock(context.Context, sqlgateway.CtxExecutor) error {
	l.calls = append(l.calls, "unlock")
	return nil
}

func TestSQLGateway_Locking(t *testing.T) {
	ctx := context.Background()

	t.Run("holds the lock around the run", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		defer db.Close()

		locker := &spyLocker{}
		g := sqlgateway.New(db, sqlite.DriverName, sqlite.NewDialect("migrations"), sqlgateway.Options{Locker: locker})

		m := prepare(t, "0001_init.sql", "CREATE TABLE foo (id INTEGER);", nil)

		mock.ExpectBegin()
		mock.ExpectExec("SAVEPOINT upgradedb_0").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("CREATE TABLE foo (id INTEGER);").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(sqlite.NewDialect("migrations").InsertQuery()).
			WithArgs("0001_init.sql", sqlmock.AnyArg(), m.Content, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("RELEASE SAVEPOINT upgradedb_0").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		migrated, err := g.Migrate(ctx, migration.DefaultDatabase, database.Migrations{m})
		require.NoError(t, err)
		assert.Len(t, migrated, 1)
		assert.Equal(t, []string{"lock", "unlock"}, locker.calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("does not run when the lock fails", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		require.NoError(t, err)
		defer db.Close()

		locker := &spyLocker{err: errors.New("lock timeout")}
		g := sqlgateway.New(db, sqlite.DriverName, sqlite.NewDialect("migrations"), sqlgateway.Options{Locker: locker})

		_, err = g.Migrate(ctx, migration.DefaultDatabase, database.Migrations{
			prepare(t, "0001_init.sql", "CREATE TABLE foo (id INTEGER);", nil),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock timeout")
		assert.Equal(t, []string{"lock"}, locker.calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLGateway_BrokenSavepoint(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	g := sqlgateway.New(db, sqlite.DriverName, sqlite.NewDialect("migrations"), sqlgateway.Options{})

	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT upgradedb_0").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("BROKEN;").WillReturnError(errors.New("syntax error"))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT upgradedb_0").WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	migrated, err := g.Migrate(context.Background(), "reports", database.Migrations{
		prepare(t, "0001_broken.sql", "BROKEN;", nil),
	})
	require.Error(t, err)
	assert.Nil(t, migrated)

	var execErr *database.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "reports", execErr.Database)
	assert.Contains(t, err.Error(), "syntax error")
	assert.Contains(t, err.Error(), "connection lost")
	assert.NoError(t, mock.ExpectationsWereMet())
}

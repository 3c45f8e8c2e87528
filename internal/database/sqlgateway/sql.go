package sqlgateway

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/denismitr/upgradedb/internal/database"
	"github.com/denismitr/upgradedb/internal/logger"
	"github.com/denismitr/upgradedb/migration"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"time"
)

type ClockFunc func() time.Time

// Options of a single gateway, a nil Locker disables locking
type Options struct {
	Locker  Locker
	Connect *ConnectOptions
	Atomic  bool
}

type SQLGateway struct {
	db        *sqlx.DB
	dialect   Dialect
	locker    Locker
	connector Connector
	txm       TxManager
	lg        logger.Logger
	clock     ClockFunc
	atomic    bool
}

var _ database.Gateway = (*SQLGateway)(nil)

// New - creates a gateway for one database, driverName must be the name
// the *sql.DB was opened with so that placeholders get rebound correctly
func New(db *sql.DB, driverName string, dialect Dialect, opts Options) *SQLGateway {
	dbx := sqlx.NewDb(db, driverName)

	return &SQLGateway{
		db:        dbx,
		dialect:   dialect,
		locker:    opts.Locker,
		connector: MakeRetryingConnector(dbx, opts.Connect),
		txm:       NewTxManager(dbx),
		lg:        logger.NullLogger{},
		clock:     func() time.Time { return time.Now().UTC() },
		atomic:    opts.Atomic,
	}
}

func (g *SQLGateway) SetLogger(lg logger.Logger) {
	g.lg = lg
}

func (g *SQLGateway) SetClock(clock ClockFunc) {
	g.clock = clock
}

func (g *SQLGateway) Connect(ctx context.Context) error {
	return g.connector.Connect(ctx)
}

func (g *SQLGateway) Close() error {
	if err := g.db.Close(); err != nil {
		return errors.Wrap(err, "could not close database")
	}

	return nil
}

// Migrate runs the migrations in order inside a single transaction and
// records each of them right after its work succeeds.
//
// Every migration runs under its own savepoint: the first failure rolls
// back that migration only, the ones before it are committed and the ones
// after it are not attempted. In atomic mode the first failure rolls back
// the whole run instead. Either way the migrations that were committed
// are returned along with the *database.ExecutionError.
func (g *SQLGateway) Migrate(
	ctx context.Context,
	alias string,
	migrations database.Migrations,
) (database.Migrations, error) {
	if len(migrations) == 0 {
		return nil, database.ErrNoChangesRequired
	}

	var migrated database.Migrations
	var failure *database.ExecutionError

	f := func(ctx context.Context, tx *sqlx.Tx) error {
		migrated, failure = nil, nil

		for i := range migrations {
			if g.atomic {
				if err := g.migrateOne(ctx, tx, migrations[i]); err != nil {
					return &database.ExecutionError{Database: alias, Label: migrations[i].Label(), Err: err}
				}
			} else {
				migErr, err := g.migrateUnderSavepoint(ctx, tx, i, migrations[i])
				if err != nil {
					return &database.ExecutionError{
						Database: alias,
						Label:    migrations[i].Label(),
						Err:      multierror.Append(migErr, err).ErrorOrNil(),
					}
				}

				if migErr != nil {
					failure = &database.ExecutionError{Database: alias, Label: migrations[i].Label(), Err: migErr}
					return nil
				}
			}

			g.lg.Debugf("migrated [%s] on database [%s]", migrations[i].Label(), alias)

			migrated = append(migrated, migrations[i])
		}

		return nil
	}

	if err := g.execUnderLock(ctx, database.OperationMigrate, f); err != nil {
		return nil, err
	}

	if failure != nil {
		return migrated, failure
	}

	return migrated, nil
}

// migrateUnderSavepoint returns the failure of the migration itself first,
// and second an error that leaves the transaction unusable
func (g *SQLGateway) migrateUnderSavepoint(
	ctx context.Context,
	tx *sqlx.Tx,
	i int,
	m database.Migration,
) (migErr error, fatal error) {
	savepoint := fmt.Sprintf("upgradedb_%d", i)

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return nil, errors.Wrapf(err, "could not create savepoint [%s]", savepoint)
	}

	if migErr = g.migrateOne(ctx, tx, m); migErr != nil {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); err != nil {
			return migErr, errors.Wrapf(err, "could not roll back to savepoint [%s]", savepoint)
		}

		return migErr, nil
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return nil, errors.Wrapf(err, "could not release savepoint [%s]", savepoint)
	}

	return nil, nil
}

func (g *SQLGateway) migrateOne(ctx context.Context, tx *sqlx.Tx, m database.Migration) error {
	if m.Runnable == nil {
		return errors.Errorf("migration [%s] has nothing to run", m.Label())
	}

	g.lg.SQL(m.Runnable.Describe())

	if err := m.Runnable.Run(ctx, tx.Tx); err != nil {
		return err
	}

	insertQuery := g.db.Rebind(g.dialect.InsertQuery())
	args := []interface{}{m.Label(), g.clock(), m.Content, m.Revision}

	g.lg.SQL(insertQuery, m.Label(), m.Revision)

	if _, err := tx.ExecContext(ctx, insertQuery, args...); err != nil {
		return errors.Wrapf(err, "could not record migration [%s]", m.Label())
	}

	return nil
}

// ReadApplied returns every record ordered by label
func (g *SQLGateway) ReadApplied(ctx context.Context) (migration.Records, error) {
	var records migration.Records

	err := g.txm.ReadOnly(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		q := g.dialect.ReadRecordsQuery()
		g.lg.SQL(q)

		if err := tx.SelectContext(ctx, &records, q); err != nil {
			return errors.Wrap(err, "could not read applied migrations")
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return records, nil
}

// Seed records a migration as applied without running it, unless
// a record with the same label already exists
func (g *SQLGateway) Seed(ctx context.Context, label, content string) (migration.Record, bool, error) {
	var record migration.Record
	var created bool

	f := func(ctx context.Context, tx *sqlx.Tx) error {
		findQuery := g.db.Rebind(g.dialect.FindByLabelQuery())
		g.lg.SQL(findQuery, label)

		err := tx.GetContext(ctx, &record, findQuery, label)
		if err == nil {
			return nil
		}

		if !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(err, "could not look up migration [%s]", label)
		}

		record = migration.Record{Label: label, DateCreated: g.clock(), Content: content}

		insertQuery := g.db.Rebind(g.dialect.InsertQuery())
		g.lg.SQL(insertQuery, label)

		if _, err := tx.ExecContext(ctx, insertQuery, record.Label, record.DateCreated, record.Content, record.Revision); err != nil {
			return errors.Wrapf(err, "could not seed migration [%s]", label)
		}

		created = true

		return nil
	}

	if err := g.execUnderLock(ctx, database.OperationSeed, f, Isolation(Serializable)); err != nil {
		return migration.Record{}, false, err
	}

	return record, created, nil
}

func (g *SQLGateway) SetRevision(ctx context.Context, label, revision string) error {
	q := g.db.Rebind(g.dialect.UpdateRevisionQuery())
	g.lg.SQL(q, revision, label)

	if _, err := g.db.ExecContext(ctx, q, revision, label); err != nil {
		return errors.Wrapf(err, "could not set revision of migration [%s]", label)
	}

	return nil
}

func (g *SQLGateway) CreateMigrationsTable(ctx context.Context) error {
	q := g.dialect.InitQuery()
	g.lg.SQL(q)

	if _, err := g.db.ExecContext(ctx, q); err != nil {
		return errors.Wrap(err, "could not create migrations table")
	}

	return nil
}

func (g *SQLGateway) DropMigrationsTable(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, g.dialect.DropQuery()); err != nil {
		return errors.Wrap(err, "could not drop migrations table")
	}

	return nil
}

func (g *SQLGateway) ShowTables(ctx context.Context) ([]string, error) {
	var result []string
	if err := g.db.SelectContext(ctx, &result, g.dialect.ShowTablesQuery()); err != nil {
		return nil, errors.Wrap(err, "could not list all tables")
	}

	return result, nil
}

func (g *SQLGateway) execUnderLock(
	ctx context.Context,
	operation string,
	f TxCallback,
	cfn ...TxConfigFunc,
) (err error) {
	if g.locker == nil {
		return g.exec(ctx, operation, f, cfn...)
	}

	conn, err := g.db.Connx(ctx)
	if err != nil {
		return errors.Wrapf(err, "could not acquire connection for [%s] operation", operation)
	}

	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			g.lg.Error(closeErr)
		}
	}()

	if err := g.locker.Lock(ctx, conn); err != nil {
		return errors.Wrap(err, "database lock failed")
	}

	defer func() {
		if unlockErr := g.locker.Unlock(ctx, conn); unlockErr != nil {
			err = multierror.Append(err, unlockErr).ErrorOrNil()
		}
	}()

	return g.exec(ctx, operation, f, cfn...)
}

func (g *SQLGateway) exec(ctx context.Context, operation string, f TxCallback, cfn ...TxConfigFunc) error {
	if err := g.txm.ReadWrite(ctx, f, cfn...); err != nil {
		var execErr *database.ExecutionError
		if errors.As(err, &execErr) {
			return err
		}

		return errors.Wrapf(err, "operation [%s] failed", operation)
	}

	return nil
}

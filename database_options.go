package upgradedb

import (
	"database/sql"
	"github.com/denismitr/upgradedb/internal/database"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway/mysql"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway/postgres"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway/sqlite"
	"github.com/pkg/errors"
	"time"
)

var ErrUnsupportedDialect = errors.New("unsupported database dialect")

type Dialect string

const (
	MySQL    = Dialect("mysql")
	Postgres = Dialect("postgres")
	SQLite   = Dialect("sqlite")
)

type DatabaseOptions struct {
	database.CommonOptions
	Charset         string
	MySQLLockKey    string
	MySQLLockFor    int
	PostgresLockKey int64
	Connect         sqlgateway.ConnectOptions
}

type DatabaseOptionFunc func(*DatabaseOptions)

func WithMigrationsTable(table string) DatabaseOptionFunc {
	return func(o *DatabaseOptions) {
		o.MigrationsTable = table
	}
}

// WithLock holds an advisory lock while migrating or seeding,
// sqlite has no such lock and ignores it
func WithLock() DatabaseOptionFunc {
	return func(o *DatabaseOptions) {
		o.Lock = true
	}
}

// WithAtomicRun rolls back every migration of the run when one of them fails,
// by default the migrations before the failing one are kept
func WithAtomicRun() DatabaseOptionFunc {
	return func(o *DatabaseOptions) {
		o.Atomic = true
	}
}

func WithCharset(charset string) DatabaseOptionFunc {
	return func(o *DatabaseOptions) {
		o.Charset = charset
	}
}

func WithMySQLLockKey(key string) DatabaseOptionFunc {
	return func(o *DatabaseOptions) {
		o.MySQLLockKey = key
	}
}

func WithMySQLLockFor(seconds int) DatabaseOptionFunc {
	return func(o *DatabaseOptions) {
		o.MySQLLockFor = seconds
	}
}

func WithPostgresLockKey(key int64) DatabaseOptionFunc {
	return func(o *DatabaseOptions) {
		o.PostgresLockKey = key
	}
}

func WithConnectionTimeout(timeout time.Duration) DatabaseOptionFunc {
	return func(o *DatabaseOptions) {
		o.Connect.MaxTimeout = timeout
	}
}

func WithMaxConnectionAttempts(attempts int) DatabaseOptionFunc {
	return func(o *DatabaseOptions) {
		o.Connect.MaxAttempts = attempts
	}
}

func UseSQLite(alias string, db *sql.DB, options ...DatabaseOptionFunc) OptionFunc {
	return UseDatabase(alias, db, SQLite, options...)
}

func UseMySQL(alias string, db *sql.DB, options ...DatabaseOptionFunc) OptionFunc {
	return UseDatabase(alias, db, MySQL, options...)
}

func UsePostgres(alias string, db *sql.DB, options ...DatabaseOptionFunc) OptionFunc {
	return UseDatabase(alias, db, Postgres, options...)
}

// UseDatabase registers the database migrations of the alias are applied to,
// the default database is the one named migration.DefaultDatabase.
// The migrator takes ownership of db and closes it
func UseDatabase(alias string, db *sql.DB, dialect Dialect, options ...DatabaseOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		if alias == "" {
			return errors.New("database alias must not be empty")
		}

		if db == nil {
			return errors.Errorf("database [%s] is nil", alias)
		}

		if _, exists := m.gateways[alias]; exists {
			return errors.Errorf("database [%s] is configured twice", alias)
		}

		opts := &DatabaseOptions{
			CommonOptions: database.CommonOptions{MigrationsTable: database.DefaultMigrationsTable},
			Connect:       *sqlgateway.NewDefaultConnectOptions(),
		}

		for _, oFunc := range options {
			oFunc(opts)
		}

		gateway, err := newGateway(db, dialect, opts)
		if err != nil {
			return errors.Wrapf(err, "database [%s]", alias)
		}

		m.gateways[alias] = gateway
		m.closerFns = append(m.closerFns, gateway.Close)

		return nil
	}
}

func newGateway(db *sql.DB, dialect Dialect, opts *DatabaseOptions) (*sqlgateway.SQLGateway, error) {
	gatewayOpts := sqlgateway.Options{Connect: &opts.Connect, Atomic: opts.Atomic}

	switch dialect {
	case SQLite:
		return sqlgateway.New(db, sqlite.DriverName, sqlite.NewDialect(opts.MigrationsTable), gatewayOpts), nil
	case MySQL:
		if opts.Lock {
			gatewayOpts.Locker = mysql.NewLocker(opts.MySQLLockKey, opts.MySQLLockFor)
		}

		return sqlgateway.New(db, mysql.DriverName, mysql.NewDialect(opts.MigrationsTable, opts.Charset), gatewayOpts), nil
	case Postgres:
		if opts.Lock {
			gatewayOpts.Locker = postgres.NewLocker(opts.PostgresLockKey)
		}

		return sqlgateway.New(db, postgres.DriverName, postgres.NewDialect(opts.MigrationsTable), gatewayOpts), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedDialect, "[%s]", dialect)
	}
}

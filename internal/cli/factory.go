package cli

import (
	"github.com/denismitr/upgradedb"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"strings"
)

type (
	databaseFactory    func(alias, url string, opts ...upgradedb.DatabaseOptionFunc) (upgradedb.OptionFunc, error)
	databaseFactoryMap map[upgradedb.Dialect]databaseFactory
)

var factories = databaseFactoryMap{
	upgradedb.MySQL:    createMySQLDatabase,
	upgradedb.SQLite:   createSQLiteDatabase,
	upgradedb.Postgres: createPostgresDatabase,
}

func detectDialect(url string) (upgradedb.Dialect, error) {
	switch {
	case strings.HasPrefix(url, "mysql://"):
		return upgradedb.MySQL, nil
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "sqlite3://"):
		return upgradedb.SQLite, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return upgradedb.Postgres, nil
	default:
		return "", errors.Wrapf(upgradedb.ErrUnsupportedDialect, "unknown database driver [%s]", redact(url))
	}
}

func createDatabase(alias, url string, opts ...upgradedb.DatabaseOptionFunc) (upgradedb.OptionFunc, error) {
	dialect, err := detectDialect(url)
	if err != nil {
		return nil, err
	}

	factory, ok := factories[dialect]
	if !ok {
		return nil, errors.Errorf("could not find factory for driver [%s]", dialect)
	}

	return factory(alias, url, opts...)
}

// mysqlDSN turns a mysql:// url into a DSN the driver accepts, every
// migration file runs as a single multi statement batch
func mysqlDSN(url string) (string, error) {
	cfg, err := mysql.ParseDSN(strings.TrimPrefix(url, "mysql://"))
	if err != nil {
		return "", errors.Wrap(err, "invalid mysql dsn")
	}

	cfg.MultiStatements = true
	cfg.ParseTime = true

	return cfg.FormatDSN(), nil
}

func createMySQLDatabase(alias, url string, opts ...upgradedb.DatabaseOptionFunc) (upgradedb.OptionFunc, error) {
	dsn, err := mysqlDSN(url)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open database [%s]", alias)
	}

	return upgradedb.UseMySQL(alias, db.DB, opts...), nil
}

func sqlitePath(url string) string {
	return strings.TrimPrefix(strings.TrimPrefix(url, "sqlite3://"), "sqlite://")
}

func createSQLiteDatabase(alias, url string, opts ...upgradedb.DatabaseOptionFunc) (upgradedb.OptionFunc, error) {
	db, err := sqlx.Open("sqlite3", sqlitePath(url))
	if err != nil {
		return nil, errors.Wrapf(err, "could not open database [%s]", alias)
	}

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	return upgradedb.UseSQLite(alias, db.DB, opts...), nil
}

func createPostgresDatabase(alias, url string, opts ...upgradedb.DatabaseOptionFunc) (upgradedb.OptionFunc, error) {
	db, err := sqlx.Open("pgx", url)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open database [%s]", alias)
	}

	return upgradedb.UsePostgres(alias, db.DB, opts...), nil
}

// redact hides the credentials of a url in error messages
func redact(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}

	scheme := strings.Index(url, "://")
	if scheme < 0 || scheme > at {
		return "***" + url[at:]
	}

	return url[:scheme+3] + "***" + url[at:]
}

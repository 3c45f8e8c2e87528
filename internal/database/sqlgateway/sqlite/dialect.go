package sqlite

import (
	"fmt"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway"
)

const DriverName = "sqlite3"

type Dialect struct {
	migrationsTable string
}

func NewDialect(migrationsTable string) *Dialect {
	return &Dialect{migrationsTable: migrationsTable}
}

var _ sqlgateway.Dialect = (*Dialect)(nil)

func (d Dialect) InitQuery() string {
	const sqliteCreateMigrationsSchema = `
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			migration_label VARCHAR(200) NOT NULL UNIQUE,
			date_created TIMESTAMP NOT NULL,
			content TEXT NOT NULL,
			scm_version VARCHAR(50) NULL
		);
	`

	return fmt.Sprintf(sqliteCreateMigrationsSchema, d.migrationsTable)
}

func (d Dialect) InsertQuery() string {
	const sqliteInsertQuery = "INSERT INTO %s (migration_label, date_created, content, scm_version) VALUES (?, ?, ?, ?);"
	return fmt.Sprintf(sqliteInsertQuery, d.migrationsTable)
}

func (d Dialect) ReadRecordsQuery() string {
	const sqliteReadQuery = "SELECT id, migration_label, date_created, content, scm_version FROM %s ORDER BY migration_label ASC;"
	return fmt.Sprintf(sqliteReadQuery, d.migrationsTable)
}

func (d Dialect) FindByLabelQuery() string {
	const sqliteFindQuery = "SELECT id, migration_label, date_created, content, scm_version FROM %s WHERE migration_label = ?;"
	return fmt.Sprintf(sqliteFindQuery, d.migrationsTable)
}

func (d Dialect) UpdateRevisionQuery() string {
	const sqliteUpdateQuery = "UPDATE %s SET scm_version = ? WHERE migration_label = ?;"
	return fmt.Sprintf(sqliteUpdateQuery, d.migrationsTable)
}

func (d Dialect) DropQuery() string {
	const sqliteDropMigrationsQuery = "DROP TABLE IF EXISTS %s;"
	return fmt.Sprintf(sqliteDropMigrationsQuery, d.migrationsTable)
}

func (d Dialect) ShowTablesQuery() string {
	return "SELECT name as table_name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name;"
}

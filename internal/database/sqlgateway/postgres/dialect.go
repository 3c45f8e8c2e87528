package postgres

import (
	"fmt"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway"
)

// DriverName is the name pgx registers its database/sql driver under
const DriverName = "pgx"

type Dialect struct {
	migrationsTable string
}

var _ sqlgateway.Dialect = (*Dialect)(nil)

func NewDialect(migrationsTable string) *Dialect {
	return &Dialect{migrationsTable: migrationsTable}
}

func (d Dialect) InitQuery() string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			migration_label VARCHAR(200) NOT NULL UNIQUE,
			date_created TIMESTAMP NOT NULL,
			content TEXT NOT NULL,
			scm_version VARCHAR(50) NULL
		);
	`

	return fmt.Sprintf(createSQL, d.migrationsTable)
}

func (d Dialect) InsertQuery() string {
	const insertSQL = "INSERT INTO %s (migration_label, date_created, content, scm_version) VALUES (?, ?, ?, ?);"
	return fmt.Sprintf(insertSQL, d.migrationsTable)
}

func (d Dialect) ReadRecordsQuery() string {
	const readSQL = "SELECT id, migration_label, date_created, content, scm_version FROM %s ORDER BY migration_label ASC;"
	return fmt.Sprintf(readSQL, d.migrationsTable)
}

func (d Dialect) FindByLabelQuery() string {
	const findSQL = "SELECT id, migration_label, date_created, content, scm_version FROM %s WHERE migration_label = ?;"
	return fmt.Sprintf(findSQL, d.migrationsTable)
}

func (d Dialect) UpdateRevisionQuery() string {
	const updateSQL = "UPDATE %s SET scm_version = ? WHERE migration_label = ?;"
	return fmt.Sprintf(updateSQL, d.migrationsTable)
}

func (d Dialect) DropQuery() string {
	const dropSQL = `
		DROP TABLE IF EXISTS %s;
	`
	return fmt.Sprintf(dropSQL, d.migrationsTable)
}

func (d Dialect) ShowTablesQuery() string {
	return "SELECT tablename AS table_name FROM pg_catalog.pg_tables WHERE schemaname = 'public' ORDER BY tablename;"
}

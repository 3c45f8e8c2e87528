package mysql

import (
	"fmt"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway"
)

const (
	DriverName     = "mysql"
	DefaultCharset = "utf8mb4"
)

type Dialect struct {
	migrationsTable, charset string
}

var _ sqlgateway.Dialect = (*Dialect)(nil)

func NewDialect(migrationsTable, charset string) *Dialect {
	if charset == "" {
		charset = DefaultCharset
	}

	return &Dialect{migrationsTable: migrationsTable, charset: charset}
}

func (d Dialect) InitQuery() string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			migration_label VARCHAR(200) NOT NULL,
			date_created DATETIME NOT NULL,
			content LONGTEXT NOT NULL,
			scm_version VARCHAR(50) NULL,
			UNIQUE KEY uq_migration_label (migration_label)
		) ENGINE=InnoDB CHARACTER SET=%s
	`

	return fmt.Sprintf(createSQL, d.migrationsTable, d.charset)
}

func (d Dialect) InsertQuery() string {
	const insertSQL = "INSERT INTO %s (`migration_label`, `date_created`, `content`, `scm_version`) VALUES (?, ?, ?, ?);"
	return fmt.Sprintf(insertSQL, d.migrationsTable)
}

func (d Dialect) ReadRecordsQuery() string {
	const readSQL = "SELECT `id`, `migration_label`, `date_created`, `content`, `scm_version` FROM %s ORDER BY `migration_label` ASC;"
	return fmt.Sprintf(readSQL, d.migrationsTable)
}

func (d Dialect) FindByLabelQuery() string {
	const findSQL = "SELECT `id`, `migration_label`, `date_created`, `content`, `scm_version` FROM %s WHERE `migration_label` = ?;"
	return fmt.Sprintf(findSQL, d.migrationsTable)
}

func (d Dialect) UpdateRevisionQuery() string {
	const updateSQL = "UPDATE %s SET `scm_version` = ? WHERE `migration_label` = ?;"
	return fmt.Sprintf(updateSQL, d.migrationsTable)
}

func (d Dialect) DropQuery() string {
	const dropSQL = `
		DROP TABLE IF EXISTS %s;
	`
	return fmt.Sprintf(dropSQL, d.migrationsTable)
}

func (d Dialect) ShowTablesQuery() string {
	return "SHOW TABLES;"
}

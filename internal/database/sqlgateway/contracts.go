package sqlgateway

import (
	"context"
	"database/sql"
)

type CtxExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Dialect supplies the record table DDL and queries for one database engine,
// queries use ? placeholders and are rebound for the driver by the gateway
type Dialect interface {
	InitQuery() string
	InsertQuery() string
	ReadRecordsQuery() string
	FindByLabelQuery() string
	UpdateRevisionQuery() string
	DropQuery() string
	ShowTablesQuery() string
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/denismitr/upgradedb/internal/logger"
	"github.com/denismitr/upgradedb/migration"
	"github.com/pkg/errors"
	"sort"
)

var ErrNoChangesRequired = errors.New("no changes to the database required")

const (
	DefaultMigrationsTable = "migrations"

	OperationMigrate = "migrate"
	OperationSeed    = "seed"
)

type CommonOptions struct {
	MigrationsTable string
	Lock            bool
	Atomic          bool
}

// Plan narrows the set of migrations an operation works on,
// a nil StopAt means no upper bound on sequence numbers
type Plan struct {
	Databases []string
	StopAt    *uint64
}

func (p Plan) allowsDatabase(database string) bool {
	if len(p.Databases) == 0 {
		return true
	}

	for i := range p.Databases {
		if p.Databases[i] == database {
			return true
		}
	}

	return false
}

func (p Plan) allowsSequence(seq uint64) bool {
	return p.StopAt == nil || seq <= *p.StopAt
}

// Migration is a pending file prepared for execution
type Migration struct {
	File     migration.File
	Content  string
	Revision sql.NullString
	Runnable migration.Runnable
}

func (m Migration) Label() string {
	return m.File.Label()
}

type Migrations []Migration

func (ms Migrations) Labels() (result []string) {
	for i := range ms {
		result = append(result, ms[i].Label())
	}
	return result
}

// ExecutionError reports the migration that broke the run of a database,
// its work and record have been rolled back and nothing after it was attempted
type ExecutionError struct {
	Database string
	Label    string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("migration [%s] of database [%s] failed, rolled back: %s", e.Label, e.Database, e.Err.Error())
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Cause() error {
	return e.Err
}

type recordStore interface {
	ReadApplied(ctx context.Context) (migration.Records, error)
	Seed(ctx context.Context, label, content string) (migration.Record, bool, error)
	SetRevision(ctx context.Context, label, revision string) error
	ShowTables(ctx context.Context) ([]string, error)
	DropMigrationsTable(ctx context.Context) error
	CreateMigrationsTable(ctx context.Context) error
}

// Gateway is everything the migrator needs from a single database.
// Migrate returns the migrations that were committed even when it fails
type Gateway interface {
	SetLogger(logger.Logger)
	Connect(ctx context.Context) error
	Migrate(ctx context.Context, database string, migrations Migrations) (Migrations, error)
	Close() error

	recordStore
}

// SchedulePending returns the files whose label has not been applied yet and
// whose sequence number is within the plan bound. Files sharing a sequence
// number are judged by label independently of each other
func SchedulePending(files migration.Files, applied []string, p Plan) migration.Files {
	seen := make(map[string]struct{}, len(applied))
	for i := range applied {
		seen[applied[i]] = struct{}{}
	}

	var scheduled migration.Files

	for i := range files {
		label := files[i].Label()
		if _, ok := seen[label]; ok {
			continue
		}

		if !p.allowsSequence(files[i].Sequence) {
			continue
		}

		seen[label] = struct{}{}
		scheduled = append(scheduled, files[i])
	}

	sort.Sort(scheduled)

	return scheduled
}

// Pending maps a database alias to the files waiting to be applied to it
type Pending map[string]migration.Files

// Resolve subtracts what every database has applied from what was found on disk
func Resolve(scanned map[string]migration.Files, applied map[string][]string, p Plan) Pending {
	result := make(Pending)

	for database, files := range scanned {
		if !p.allowsDatabase(database) {
			continue
		}

		scheduled := SchedulePending(files, applied[database], p)
		if len(scheduled) > 0 {
			result[database] = scheduled
		}
	}

	return result
}

// Aliases returns the databases in the order they are processed:
// the default database first, the rest alphabetically
func (p Pending) Aliases() []string {
	return OrderAliases(p.keys())
}

func (p Pending) keys() []string {
	result := make([]string, 0, len(p))
	for database := range p {
		result = append(result, database)
	}
	return result
}

func (p Pending) Labels() map[string][]string {
	result := make(map[string][]string, len(p))
	for database, files := range p {
		result[database] = files.Labels()
	}
	return result
}

func (p Pending) Len() int {
	var n int
	for _, files := range p {
		n += len(files)
	}
	return n
}

func OrderAliases(aliases []string) []string {
	result := make([]string, len(aliases))
	copy(result, aliases)

	sort.Slice(result, func(i, j int) bool {
		if result[i] == migration.DefaultDatabase {
			return result[j] != migration.DefaultDatabase
		}

		if result[j] == migration.DefaultDatabase {
			return false
		}

		return result[i] < result[j]
	})

	return result
}

// DuplicateSequences lists sequence numbers used by more than one label
func DuplicateSequences(files migration.Files) map[uint64][]string {
	bySequence := make(map[uint64][]string)
	for i := range files {
		bySequence[files[i].Sequence] = append(bySequence[files[i].Sequence], files[i].Label())
	}

	result := make(map[uint64][]string)
	for seq, labels := range bySequence {
		if len(labels) > 1 {
			sort.Strings(labels)
			result[seq] = labels
		}
	}

	return result
}

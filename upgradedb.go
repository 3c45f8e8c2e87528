package upgradedb

import (
	"context"
	"github.com/denismitr/upgradedb/internal/database"
	"github.com/denismitr/upgradedb/internal/logger"
	"github.com/denismitr/upgradedb/internal/metrics"
	"github.com/denismitr/upgradedb/internal/revision"
	"github.com/denismitr/upgradedb/internal/source"
	"github.com/denismitr/upgradedb/migration"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"os"
	"time"
)

var (
	ErrNoDatabases = errors.New("no databases have been configured")
	ErrSeedUsage   = errors.New("seeding requires a stop-at sequence number or an explicit list of migrations")
)

// ExecutionError is returned when a migration fails and its database is rolled back
type ExecutionError = database.ExecutionError

type CloserFunc func() error

const (
	StatusSeeded         = "seeded"
	StatusAlreadyApplied = "already applied"
)

// Result lists the labels applied to every database, in the order they were applied
type Result struct {
	Applied map[string][]string
}

func (r *Result) Count() int {
	var n int
	for _, labels := range r.Applied {
		n += len(labels)
	}
	return n
}

type SeedOutcome struct {
	Database string
	Label    string
	Status   string
}

type Migrator struct {
	lg        logger.Logger
	folder    string
	selector  source.Selector
	gateways  map[string]database.Gateway
	closerFns []CloserFunc
	tagger    revision.Tagger
	notifier  Notifier
	registry  *migration.Registry
	metrics   metrics.Recorder
}

// NewMigrator creates a migrator from option callbacks, at least one database
// must be configured, everything else falls back to defaults
func NewMigrator(opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	m := &Migrator{
		lg:       logger.NullLogger{},
		folder:   source.DefaultMigrationsFolder,
		gateways: make(map[string]database.Gateway),
		notifier: Notifiers{},
		registry: migration.DefaultRegistry(),
		metrics:  metrics.NullRecorder{},
	}

	for _, oFunc := range opts {
		if err := oFunc(m); err != nil {
			_ = m.close()
			return nil, nil, err
		}
	}

	if len(m.gateways) == 0 {
		return nil, nil, ErrNoDatabases
	}

	if m.selector == nil {
		m.selector = source.NewLocalFSSource(m.folder, m.lg)
	}

	if m.tagger == nil {
		m.tagger = revision.Default(revision.DefaultTimeout)
	}

	for _, g := range m.gateways {
		g.SetLogger(m.lg)
	}

	return m, m.close, nil
}

// Databases returns the aliases of the configured databases in processing order
func (m *Migrator) Databases() []string {
	aliases := make([]string, 0, len(m.gateways))
	for alias := range m.gateways {
		aliases = append(aliases, alias)
	}

	return database.OrderAliases(aliases)
}

// Pending lists the migrations that have not been applied yet
func (m *Migrator) Pending(ctx context.Context, cfs ...ActionConfigurator) (database.Pending, error) {
	act := newAction(cfs...)

	pending, err := m.resolve(ctx, act)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	return pending, nil
}

// Migrate applies the pending migrations database by database. A failure
// stops the run: databases already migrated stay migrated, databases after
// the failing one are not attempted. The result holds everything committed
func (m *Migrator) Migrate(ctx context.Context, cfs ...ActionConfigurator) (*Result, error) {
	act := newAction(cfs...)
	runID := uuid.NewString()
	result := &Result{Applied: make(map[string][]string)}

	m.lg.Debugf("run [%s] migrate started", runID)

	pending, err := m.resolve(ctx, act)
	if err != nil {
		m.lg.Error(err)
		return result, err
	}

	if pending.Len() == 0 {
		m.lg.Successf("nothing to migrate")
		return result, nil
	}

	for _, alias := range pending.Aliases() {
		migrated, err := m.migrateDatabase(ctx, alias, pending[alias])
		if len(migrated) > 0 {
			result.Applied[alias] = migrated.Labels()
		}

		if err != nil {
			m.lg.Error(err)
			m.lg.Debugf("run [%s] stopped at database [%s]", runID, alias)
			return result, err
		}
	}

	m.lg.Debugf("run [%s] finished, %d migration(s) applied", runID, result.Count())

	return result, nil
}

func (m *Migrator) migrateDatabase(ctx context.Context, alias string, files migration.Files) (database.Migrations, error) {
	g := m.gateways[alias]

	migrations, err := m.prepare(ctx, files)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	migrated, err := g.Migrate(ctx, alias, migrations)
	took := time.Since(start)

	for i := range migrated {
		m.metrics.MigrationApplied(alias, string(migrated[i].File.Kind))
		m.lg.Successf("applied [%s] to database [%s]", migrated[i].Label(), alias)
	}

	// committed migrations are reported even when a later one failed,
	// they are recorded as applied and will not run again
	m.notifyCreated(ctx, alias, migrated)

	if err != nil {
		m.metrics.MigrationFailed(alias)
		m.metrics.DatabaseRun(alias, metrics.StatusFailed, took)
		return migrated, err
	}

	m.metrics.DatabaseRun(alias, metrics.StatusSucceeded, took)

	return migrated, nil
}

func (m *Migrator) notifyCreated(ctx context.Context, alias string, migrated database.Migrations) {
	var objects []migration.SchemaObject
	for i := range migrated {
		objects = append(objects, migration.CreatedObjects(migrated[i].Runnable)...)
	}

	if len(objects) > 0 {
		m.notifier.SchemaObjectsCreated(ctx, alias, objects)
	}
}

func (m *Migrator) prepare(ctx context.Context, files migration.Files) (database.Migrations, error) {
	migrations := make(database.Migrations, 0, len(files))

	for _, f := range files {
		content, err := readContent(f)
		if err != nil {
			return nil, err
		}

		mg := database.Migration{
			File:     f,
			Content:  content,
			Runnable: f.Runnable(content, m.registry),
		}

		if rev, ok := m.tagger.Lookup(ctx, f.Path); ok {
			mg.Revision.String, mg.Revision.Valid = rev, true
		}

		if f.Kind == migration.KindScript {
			if _, ok := m.registry.Lookup(f.Label()); !ok {
				m.lg.Warnf("script migration [%s] has no registered migrate function, it will be recorded without running", f.Label())
			}
		}

		migrations = append(migrations, mg)
	}

	return migrations, nil
}

// Seed records migrations as applied without running them: either the
// migrations named by WithLabels or every migration up to WithStopAt
func (m *Migrator) Seed(ctx context.Context, cfs ...ActionConfigurator) ([]SeedOutcome, error) {
	act := newAction(cfs...)
	if act.stopAt == nil && len(act.labels) == 0 {
		return nil, ErrSeedUsage
	}

	runID := uuid.NewString()
	m.lg.Debugf("run [%s] seed started", runID)

	scanned, err := m.scan(ctx, act)
	if err != nil {
		m.lg.Error(err)
		return nil, err
	}

	candidates, err := seedCandidates(scanned, act)
	if err != nil {
		return nil, err
	}

	var outcomes []SeedOutcome

	for _, alias := range database.OrderAliases(keys(candidates)) {
		g := m.gateways[alias]

		if err := m.ready(ctx, alias, g); err != nil {
			m.lg.Error(err)
			return outcomes, err
		}

		for _, f := range candidates[alias] {
			outcome, err := m.seedOne(ctx, alias, g, f)
			if err != nil {
				m.lg.Error(err)
				return outcomes, err
			}

			outcomes = append(outcomes, outcome)
		}
	}

	m.lg.Debugf("run [%s] seed finished", runID)

	return outcomes, nil
}

func (m *Migrator) seedOne(ctx context.Context, alias string, g database.Gateway, f migration.File) (SeedOutcome, error) {
	outcome := SeedOutcome{Database: alias, Label: f.Label()}

	content, err := readContent(f)
	if err != nil {
		return outcome, err
	}

	_, created, err := g.Seed(ctx, f.Label(), content)
	if err != nil {
		return outcome, errors.Wrapf(err, "could not seed [%s] into database [%s]", f.Label(), alias)
	}

	if !created {
		outcome.Status = StatusAlreadyApplied
		m.metrics.MigrationSeeded(alias, outcome.Status)
		m.lg.Successf("[%s] is already applied to database [%s]", f.Label(), alias)
		return outcome, nil
	}

	outcome.Status = StatusSeeded
	m.metrics.MigrationSeeded(alias, outcome.Status)
	m.lg.Successf("seeded [%s] into database [%s]", f.Label(), alias)

	if rev, ok := m.tagger.Lookup(ctx, f.Path); ok {
		if err := g.SetRevision(ctx, f.Label(), rev); err != nil {
			m.lg.Warnf("could not store revision of [%s]: %s", f.Label(), err.Error())
		}
	}

	return outcome, nil
}

// History returns the records of everything applied to the database
func (m *Migrator) History(ctx context.Context, alias string) (migration.Records, error) {
	g, ok := m.gateways[alias]
	if !ok {
		return nil, errors.Errorf("database [%s] is not configured", alias)
	}

	if err := m.ready(ctx, alias, g); err != nil {
		return nil, err
	}

	return g.ReadApplied(ctx)
}

func (m *Migrator) resolve(ctx context.Context, act *action) (database.Pending, error) {
	scanned, err := m.scan(ctx, act)
	if err != nil {
		return nil, err
	}

	applied := make(map[string][]string, len(scanned))

	for _, alias := range database.OrderAliases(keys(scanned)) {
		g := m.gateways[alias]

		if err := m.ready(ctx, alias, g); err != nil {
			return nil, err
		}

		records, err := g.ReadApplied(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "could not read applied migrations of database [%s]", alias)
		}

		applied[alias] = records.Labels()
	}

	return database.Resolve(scanned, applied, act.plan()), nil
}

// scan returns the migration files of the configured databases only
func (m *Migrator) scan(ctx context.Context, act *action) (map[string]migration.Files, error) {
	scanned, err := m.selector.Select(ctx, source.Filter{Databases: act.databases})
	if err != nil {
		return nil, err
	}

	for _, alias := range database.OrderAliases(keys(scanned)) {
		if _, ok := m.gateways[alias]; !ok {
			m.lg.Warnf("migrations found for database [%s] but it is not configured, skipping", alias)
			delete(scanned, alias)
			continue
		}

		for seq, labels := range database.DuplicateSequences(scanned[alias]) {
			m.lg.Warnf("database [%s] has several migrations numbered %d: %v", alias, seq, labels)
		}
	}

	return scanned, nil
}

func (m *Migrator) ready(ctx context.Context, alias string, g database.Gateway) error {
	if err := g.Connect(ctx); err != nil {
		return errors.Wrapf(err, "could not connect to database [%s]", alias)
	}

	if err := g.CreateMigrationsTable(ctx); err != nil {
		return errors.Wrapf(err, "could not prepare database [%s]", alias)
	}

	return nil
}

func (m *Migrator) close() error {
	var result error

	for _, closer := range m.closerFns {
		if err := closer(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	m.closerFns = nil

	return result
}

func seedCandidates(scanned map[string]migration.Files, act *action) (map[string]migration.Files, error) {
	result := make(map[string]migration.Files)
	found := make(map[string]bool, len(act.labels))

	for alias, files := range scanned {
		for _, f := range files {
			if !act.allowsSequence(f.Sequence) {
				continue
			}

			if len(act.labels) > 0 {
				if !act.hasLabel(f.Label()) {
					continue
				}
				found[f.Label()] = true
			}

			result[alias] = append(result[alias], f)
		}
	}

	var missing []string
	for _, label := range act.labels {
		if !found[label] {
			missing = append(missing, label)
		}
	}

	if len(missing) > 0 {
		return nil, errors.Wrapf(ErrSeedUsage, "no such migrations %v", missing)
	}

	return result, nil
}

func readContent(f migration.File) (string, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return "", errors.Wrapf(err, "could not read migration [%s]", f.Label())
	}

	return string(b), nil
}

func keys(m map[string]migration.Files) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	return result
}

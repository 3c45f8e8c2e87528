package cli

import (
	"context"
	"github.com/denismitr/upgradedb"
	"github.com/denismitr/upgradedb/internal/database"
	"github.com/denismitr/upgradedb/internal/metrics"
	"github.com/denismitr/upgradedb/internal/revision"
	"github.com/denismitr/upgradedb/migration"
	"github.com/pkg/errors"
)

type (
	CloserFunc func() error

	// LogConfig controls what the migrator prints
	LogConfig struct {
		Printer upgradedb.Printer
		NoColor bool
		upgradedb.LoggerOptions
	}

	ActionConfig struct {
		Databases []string
		StopAt    string
		Labels    []string
	}

	App struct {
		migrator *upgradedb.Migrator
		recorder *metrics.PrometheusRecorder
		textfile string
	}
)

func NewFromYaml(path string, lc LogConfig) (*App, CloserFunc, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	return New(cfg, lc)
}

func New(cfg Config, lc LogConfig) (*App, CloserFunc, error) {
	app := &App{textfile: cfg.MetricsTextfile}

	opts := []upgradedb.OptionFunc{
		upgradedb.UseLocalFolderSource(cfg.MigrationsFolder),
		upgradedb.UseRevisionTagger(revision.Default(cfg.RevisionTimeout)),
	}

	if lc.Printer != nil {
		if lc.NoColor {
			opts = append(opts, upgradedb.UseBWLogger(lc.Printer, lc.LoggerOptions))
		} else {
			opts = append(opts, upgradedb.UseColorLogger(lc.Printer, lc.LoggerOptions))
		}
	}

	if cfg.MetricsTextfile != "" {
		app.recorder = metrics.NewPrometheusRecorder()
		opts = append(opts, upgradedb.UseMetrics(app.recorder))
	}

	var dbOpts []upgradedb.DatabaseOptionFunc
	if cfg.MigrationsTable != "" {
		dbOpts = append(dbOpts, upgradedb.WithMigrationsTable(cfg.MigrationsTable))
	}

	if cfg.Lock {
		dbOpts = append(dbOpts, upgradedb.WithLock())
	}

	for _, alias := range database.OrderAliases(aliases(cfg.Databases)) {
		opt, err := createDatabase(alias, cfg.Databases[alias], dbOpts...)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, opt)
	}

	m, closer, err := upgradedb.NewMigrator(opts...)
	if err != nil {
		return nil, nil, err
	}

	app.migrator = m

	return app, CloserFunc(closer), nil
}

// List returns the pending migrations of every database
func (app *App) List(ctx context.Context, cfg ActionConfig) (database.Pending, error) {
	configurators, err := upgradedb.CreateConfigurators(cfg.Databases, cfg.StopAt, nil)
	if err != nil {
		return nil, err
	}

	return app.migrator.Pending(ctx, configurators...)
}

func (app *App) Execute(ctx context.Context, cfg ActionConfig) (*upgradedb.Result, error) {
	configurators, err := upgradedb.CreateConfigurators(cfg.Databases, cfg.StopAt, nil)
	if err != nil {
		return nil, err
	}

	result, err := app.migrator.Migrate(ctx, configurators...)

	if writeErr := app.writeMetrics(); writeErr != nil && err == nil {
		return result, writeErr
	}

	return result, err
}

func (app *App) Seed(ctx context.Context, cfg ActionConfig) ([]upgradedb.SeedOutcome, error) {
	configurators, err := upgradedb.CreateConfigurators(cfg.Databases, cfg.StopAt, cfg.Labels)
	if err != nil {
		if errors.Is(err, upgradedb.ErrInvalidStopAt) {
			return nil, errors.Wrap(upgradedb.ErrSeedUsage, err.Error())
		}
		return nil, err
	}

	outcomes, err := app.migrator.Seed(ctx, configurators...)

	if writeErr := app.writeMetrics(); writeErr != nil && err == nil {
		return outcomes, writeErr
	}

	return outcomes, err
}

func (app *App) History(ctx context.Context, alias string) (migration.Records, error) {
	if alias == "" {
		alias = migration.DefaultDatabase
	}

	return app.migrator.History(ctx, alias)
}

func (app *App) Databases() []string {
	return app.migrator.Databases()
}

func (app *App) writeMetrics() error {
	if app.recorder == nil || app.textfile == "" {
		return nil
	}

	return errors.WithStack(app.recorder.WriteTextfile(app.textfile))
}

func aliases(databases map[string]string) []string {
	result := make([]string, 0, len(databases))
	for alias := range databases {
		result = append(result, alias)
	}
	return result
}

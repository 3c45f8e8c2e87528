package cli

import (
	"bytes"
	"context"
	"github.com/denismitr/upgradedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApp(t *testing.T) {
	dir := t.TempDir()
	folder := filepath.Join(dir, "migrations")
	require.NoError(t, os.MkdirAll(filepath.Join(folder, "reports"), 0755))

	files := map[string]string{
		"0001_init.sql":          "CREATE TABLE widgets (id INTEGER PRIMARY KEY);",
		"0002_more.sql":          "CREATE TABLE gadgets (id INTEGER PRIMARY KEY);",
		"reports/0001_daily.sql": "CREATE TABLE daily (id INTEGER PRIMARY KEY);",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(folder, name), []byte(content), 0644))
	}

	textfile := filepath.Join(dir, "upgradedb.prom")
	cfg := Config{
		MigrationsFolder: folder,
		MigrationsTable:  "schema_history",
		RevisionTimeout:  time.Second,
		MetricsTextfile:  textfile,
		Databases: map[string]string{
			"default": "sqlite://" + filepath.Join(dir, "default.db"),
			"reports": "sqlite://" + filepath.Join(dir, "reports.db"),
		},
	}

	var out bytes.Buffer
	app, closer, err := New(cfg, LogConfig{
		Printer:       log.New(&out, "", 0),
		NoColor:       true,
		LoggerOptions: upgradedb.LoggerOptions{Debug: true},
	})
	require.NoError(t, err)
	defer func() { _ = closer() }()

	ctx := context.Background()
	assert.Equal(t, []string{"default", "reports"}, app.Databases())

	pending, err := app.List(ctx, ActionConfig{})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"default": {"0001_init.sql", "0002_more.sql"},
		"reports": {"0001_daily.sql"},
	}, pending.Labels())

	outcomes, err := app.Seed(ctx, ActionConfig{Labels: []string{"0001_init.sql"}, Databases: []string{"default"}})
	require.NoError(t, err)
	assert.Equal(t, []upgradedb.SeedOutcome{{Database: "default", Label: "0001_init.sql", Status: upgradedb.StatusSeeded}}, outcomes)

	result, err := app.Execute(ctx, ActionConfig{})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"default": {"0002_more.sql"},
		"reports": {"0001_daily.sql"},
	}, result.Applied)

	records, err := app.History(ctx, "")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	b, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `upgradedb_migrations_seeded_total{database="default",status="seeded"} 1`))
	assert.True(t, strings.Contains(string(b), `upgradedb_migrations_applied_total{database="reports",kind="sql"} 1`))

	assert.Contains(t, out.String(), "upgradedb: applied [0002_more.sql] to database [default]")
	assert.Contains(t, out.String(), "upgradedb debug: run [")

	_, err = app.Execute(ctx, ActionConfig{StopAt: "x"})
	require.ErrorIs(t, err, upgradedb.ErrInvalidStopAt)
	assert.NotErrorIs(t, err, upgradedb.ErrSeedUsage)

	_, err = app.List(ctx, ActionConfig{StopAt: "-3"})
	require.ErrorIs(t, err, upgradedb.ErrInvalidStopAt)

	_, err = app.Seed(ctx, ActionConfig{StopAt: "x"})
	require.ErrorIs(t, err, upgradedb.ErrSeedUsage)
	assert.Contains(t, err.Error(), "invalid stop-at value [x]")
}

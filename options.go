package upgradedb

import (
	"github.com/denismitr/upgradedb/internal/logger"
	"github.com/denismitr/upgradedb/internal/metrics"
	"github.com/denismitr/upgradedb/internal/revision"
	"github.com/denismitr/upgradedb/migration"
	"github.com/pkg/errors"
)

type OptionFunc func(*Migrator) error

// Printer is satisfied by *log.Logger
type Printer = logger.Printer

// LoggerOptions - SQL prints every query, Debug prints progress details,
// Trace prints errors with their stack trace
type LoggerOptions struct {
	SQL   bool
	Debug bool
	Trace bool
}

func (o LoggerOptions) internal() logger.Options {
	return logger.Options{SQL: o.SQL, Debug: o.Debug, Trace: o.Trace}
}

func UseColorLogger(p Printer, opts LoggerOptions) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewColorLogger(p, opts.internal())
		return nil
	}
}

func UseBWLogger(p Printer, opts LoggerOptions) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewBWLogger(p, opts.internal())
		return nil
	}
}

// UseLocalFolderSource - reads migrations from the folder and its direct subfolders
func UseLocalFolderSource(folder string) OptionFunc {
	return func(m *Migrator) error {
		if folder == "" {
			return errors.New("migrations folder must not be empty")
		}

		m.folder = folder
		return nil
	}
}

// RevisionTagger finds the version-control revision of a migration file
type RevisionTagger = revision.Tagger

// UseRevisionTagger replaces the default git then svn lookup
func UseRevisionTagger(t RevisionTagger) OptionFunc {
	return func(m *Migrator) error {
		m.tagger = t
		return nil
	}
}

// UseNoRevisions never records a revision
func UseNoRevisions() OptionFunc {
	return UseRevisionTagger(revision.NullTagger{})
}

func UseNotifier(n Notifier) OptionFunc {
	return func(m *Migrator) error {
		if ns, ok := m.notifier.(Notifiers); ok {
			m.notifier = append(ns, n)
			return nil
		}

		m.notifier = Notifiers{m.notifier, n}
		return nil
	}
}

// UseScriptRegistry - looks script migrations up in r instead of the default registry
func UseScriptRegistry(r *migration.Registry) OptionFunc {
	return func(m *Migrator) error {
		if r == nil {
			return errors.New("script registry must not be nil")
		}

		m.registry = r
		return nil
	}
}

// MetricsRecorder receives the outcome of every run
type MetricsRecorder = metrics.Recorder

func UseMetrics(r MetricsRecorder) OptionFunc {
	return func(m *Migrator) error {
		m.metrics = r
		return nil
	}
}

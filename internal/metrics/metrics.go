package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"time"
)

const namespace = "upgradedb"

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Recorder receives the outcome of every run
type Recorder interface {
	MigrationApplied(database, kind string)
	MigrationFailed(database string)
	MigrationSeeded(database, status string)
	DatabaseRun(database, status string, took time.Duration)
}

type NullRecorder struct{}

var _ Recorder = NullRecorder{}

func (NullRecorder) MigrationApplied(string, string)           {}
func (NullRecorder) MigrationFailed(string)                    {}
func (NullRecorder) MigrationSeeded(string, string)            {}
func (NullRecorder) DatabaseRun(string, string, time.Duration) {}

// PrometheusRecorder keeps its collectors in a private registry so that
// several migrators never collide on registration
type PrometheusRecorder struct {
	registry *prometheus.Registry

	applied *prometheus.CounterVec
	failed  *prometheus.CounterVec
	seeded  *prometheus.CounterVec
	runs    *prometheus.HistogramVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_applied_total",
			Help:      "Number of migrations applied and recorded.",
		}, []string{"database", "kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_failed_total",
			Help:      "Number of migrations that failed and were rolled back.",
		}, []string{"database"}),
		seeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_seeded_total",
			Help:      "Number of seed requests by outcome.",
		}, []string{"database", "status"}),
		runs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_run_seconds",
			Help:      "Time spent migrating a single database.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"database", "status"}),
	}

	r.registry.MustRegister(r.applied, r.failed, r.seeded, r.runs)

	return r
}

func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) MigrationApplied(database, kind string) {
	r.applied.WithLabelValues(database, kind).Inc()
}

func (r *PrometheusRecorder) MigrationFailed(database string) {
	r.failed.WithLabelValues(database).Inc()
}

func (r *PrometheusRecorder) MigrationSeeded(database, status string) {
	r.seeded.WithLabelValues(database, status).Inc()
}

func (r *PrometheusRecorder) DatabaseRun(database, status string, took time.Duration) {
	r.runs.WithLabelValues(database, status).Observe(took.Seconds())
}

// WriteTextfile dumps the registry in the text exposition format,
// ready for the node exporter textfile collector
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "could not write metrics to [%s]", path)
	}

	return nil
}

package upgradedb

import (
	"github.com/denismitr/upgradedb/internal/database"
	"github.com/pkg/errors"
	"strconv"
)

var ErrInvalidStopAt = errors.New("stop-at must be a non-negative sequence number")

type ActionConfigurator func(a *action)

type action struct {
	databases []string
	stopAt    *uint64
	labels    []string
}

func newAction(cfs ...ActionConfigurator) *action {
	act := new(action)
	for _, f := range cfs {
		f(act)
	}
	return act
}

func (a *action) plan() database.Plan {
	return database.Plan{Databases: a.databases, StopAt: a.stopAt}
}

func (a *action) allowsSequence(seq uint64) bool {
	return a.stopAt == nil || seq <= *a.stopAt
}

func (a *action) hasLabel(label string) bool {
	for i := range a.labels {
		if a.labels[i] == label {
			return true
		}
	}
	return false
}

// WithDatabases restricts the action to the given database aliases
func WithDatabases(aliases ...string) ActionConfigurator {
	return func(a *action) {
		a.databases = aliases
	}
}

// WithStopAt ignores migrations numbered above n
func WithStopAt(n uint64) ActionConfigurator {
	return func(a *action) {
		a.stopAt = &n
	}
}

// WithLabels names the migrations to seed
func WithLabels(labels ...string) ActionConfigurator {
	return func(a *action) {
		a.labels = labels
	}
}

// CreateConfigurators builds configurators from raw command line values,
// an empty stopAt means no bound
func CreateConfigurators(databases []string, stopAt string, labels []string) ([]ActionConfigurator, error) {
	var configurators []ActionConfigurator

	if len(databases) > 0 {
		configurators = append(configurators, WithDatabases(databases...))
	}

	if stopAt != "" {
		n, err := strconv.ParseUint(stopAt, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidStopAt, "invalid stop-at value [%s]", stopAt)
		}
		configurators = append(configurators, WithStopAt(n))
	}

	if len(labels) > 0 {
		configurators = append(configurators, WithLabels(labels...))
	}

	return configurators, nil
}

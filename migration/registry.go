package migration

import (
	"context"
	"database/sql"
	"github.com/pkg/errors"
	"path/filepath"
	"runtime"
	"sync"
)

var ErrScriptAlreadyRegistered = errors.New("script migration already registered")

// MigrateFunc is the entry point of a script migration, it runs inside
// the transaction of the database the script belongs to
type MigrateFunc func(ctx context.Context, tx *sql.Tx) error

type Registry struct {
	sync.RWMutex
	scripts map[string]MigrateFunc
}

func NewRegistry() *Registry {
	return &Registry{scripts: make(map[string]MigrateFunc)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry is the registry filled by Register and RegisterNamed
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register - registers fn under the base name of the calling source file,
// meant to be called from init() of a script migration such as
// migrations/0002_backfill.go
func Register(fn MigrateFunc) {
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		panic("upgradedb: could not determine script migration file name")
	}

	if err := defaultRegistry.Add(filepath.Base(filename), fn); err != nil {
		panic(err)
	}
}

// RegisterNamed - registers fn under an explicit label
func RegisterNamed(label string, fn MigrateFunc) {
	if err := defaultRegistry.Add(label, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) Add(label string, fn MigrateFunc) error {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.scripts[label]; ok {
		return errors.Wrapf(ErrScriptAlreadyRegistered, "label [%s]", label)
	}

	r.scripts[label] = fn

	return nil
}

func (r *Registry) Lookup(label string) (MigrateFunc, bool) {
	r.RLock()
	defer r.RUnlock()

	fn, ok := r.scripts[label]
	return fn, ok
}

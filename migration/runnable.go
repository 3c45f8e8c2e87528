package migration

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/pkg/errors"
	"strings"
)

var ErrScriptPanicked = errors.New("script migration panicked")

type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Runnable is a unit of migration work executed under a transaction
type Runnable interface {
	Run(ctx context.Context, tx *sql.Tx) error
	Describe() string
}

// SQLBatch runs the whole file content in a single exec call
type SQLBatch struct {
	Statements string
	Objects    []SchemaObject
}

var _ Runnable = (*SQLBatch)(nil)

func (b *SQLBatch) Run(ctx context.Context, tx *sql.Tx) error {
	return b.exec(ctx, tx)
}

func (b *SQLBatch) exec(ctx context.Context, ex Executor) error {
	if strings.TrimSpace(b.Statements) == "" {
		return nil
	}

	if _, err := ex.ExecContext(ctx, b.Statements); err != nil {
		return errors.Wrap(err, "sql batch failed")
	}

	return nil
}

func (b *SQLBatch) Describe() string {
	return b.Statements
}

// Script calls a registered Go migration, a nil Fn makes it a no-op
type Script struct {
	Label string
	Fn    MigrateFunc
}

var _ Runnable = (*Script)(nil)

func (s *Script) Run(ctx context.Context, tx *sql.Tx) (err error) {
	if s.Fn == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrScriptPanicked, "[%s]: %v", s.Label, r)
		}
	}()

	if err := s.Fn(ctx, tx); err != nil {
		return errors.Wrapf(err, "script [%s] failed", s.Label)
	}

	return nil
}

func (s *Script) Describe() string {
	if s.Fn == nil {
		return fmt.Sprintf("script %s (no migrate function registered)", s.Label)
	}

	return fmt.Sprintf("script %s", s.Label)
}

// Runnable - picks the execution strategy for the file by its kind
func (f File) Runnable(content string, r *Registry) Runnable {
	if f.Kind == KindScript {
		s := &Script{Label: f.Label()}
		if r != nil {
			if fn, ok := r.Lookup(f.Label()); ok {
				s.Fn = fn
			}
		}
		return s
	}

	statements, objects := StripMarkers(content)

	return &SQLBatch{Statements: statements, Objects: objects}
}

// CreatedObjects returns the schema objects announced by a runnable, if any
func CreatedObjects(r Runnable) []SchemaObject {
	if b, ok := r.(*SQLBatch); ok {
		return b.Objects
	}

	return nil
}

package postgres

import (
	"context"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway"
	"github.com/pkg/errors"
)

const DefaultLockKey int64 = 99887766

// Locker holds a session level advisory lock for the duration of a run
type Locker struct {
	lockKey int64
}

var _ sqlgateway.Locker = (*Locker)(nil)

func NewLocker(lockKey int64) *Locker {
	if lockKey == 0 {
		lockKey = DefaultLockKey
	}

	return &Locker{lockKey: lockKey}
}

func (l *Locker) Lock(ctx context.Context, ex sqlgateway.CtxExecutor) error {
	if _, err := ex.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.lockKey); err != nil {
		return errors.Wrapf(err, "could not obtain [%d] exclusive PostgreSQL advisory lock", l.lockKey)
	}

	return nil
}

func (l *Locker) Unlock(ctx context.Context, ex sqlgateway.CtxExecutor) error {
	if _, err := ex.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockKey); err != nil {
		return errors.Wrapf(err, "could not release [%d] exclusive PostgreSQL advisory lock", l.lockKey)
	}

	return nil
}

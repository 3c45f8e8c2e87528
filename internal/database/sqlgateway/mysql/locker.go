package mysql

import (
	"context"
	"github.com/denismitr/upgradedb/internal/database/sqlgateway"
	"github.com/pkg/errors"
)

const DefaultLockKey = "upgradedb_migrations"
const DefaultLockSeconds = 3

// Locker holds a named MySQL lock for the duration of a run
type Locker struct {
	lockKey string
	lockFor int
}

var _ sqlgateway.Locker = (*Locker)(nil)

func NewLocker(lockKey string, lockFor int) *Locker {
	if lockKey == "" {
		lockKey = DefaultLockKey
	}

	if lockFor <= 0 {
		lockFor = DefaultLockSeconds
	}

	return &Locker{lockKey: lockKey, lockFor: lockFor}
}

func (l *Locker) Lock(ctx context.Context, ex sqlgateway.CtxExecutor) error {
	if _, err := ex.ExecContext(ctx, "SELECT GET_LOCK(?, ?)", l.lockKey, l.lockFor); err != nil {
		return errors.Wrapf(err, "could not obtain [%s] exclusive MySQL DB lock for [%d] seconds", l.lockKey, l.lockFor)
	}

	return nil
}

func (l *Locker) Unlock(ctx context.Context, ex sqlgateway.CtxExecutor) error {
	if _, err := ex.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", l.lockKey); err != nil {
		return errors.Wrapf(err, "could not release [%s] exclusive MySQL DB lock", l.lockKey)
	}

	return nil
}

package sqlgateway

import (
	"context"
	"database/sql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"strings"
)

var ErrTxDeadlock = errors.New("transaction deadlock occurred")

// TxConfig - configures tx
type TxConfig struct {
	Iso      sql.IsolationLevel
	ReadOnly bool
}

type TxConfigFunc func(*TxConfig)

// ISO - isolation level type
type ISO int

const (
	Default ISO = iota
	Serializable
	RepeatableRead
	ReadCommitted
)

// Isolation tx config function
func Isolation(iso ISO) TxConfigFunc {
	return func(txCfg *TxConfig) {
		switch iso {
		case Serializable:
			txCfg.Iso = sql.LevelSerializable
		case RepeatableRead:
			txCfg.Iso = sql.LevelRepeatableRead
		case ReadCommitted:
			txCfg.Iso = sql.LevelReadCommitted
		default:
			txCfg.Iso = sql.LevelDefault
		}
	}
}

type TxCallback func(context.Context, *sqlx.Tx) error

type TxManager interface {
	ReadOnly(context.Context, TxCallback, ...TxConfigFunc) error
	ReadWrite(context.Context, TxCallback, ...TxConfigFunc) error
}

// SqlxTxManager hands a transaction to the callback and guarantees
// it is either committed or rolled back once the callback returns
type SqlxTxManager struct {
	db *sqlx.DB
}

var _ TxManager = (*SqlxTxManager)(nil)

func NewTxManager(db *sqlx.DB) *SqlxTxManager {
	return &SqlxTxManager{db: db}
}

func (txm *SqlxTxManager) ReadOnly(ctx context.Context, cb TxCallback, cfn ...TxConfigFunc) error {
	txCfg := TxConfig{Iso: sql.LevelDefault, ReadOnly: true}

	for _, fn := range cfn {
		fn(&txCfg)
	}

	return txm.isolate(ctx, cb, txCfg)
}

func (txm *SqlxTxManager) ReadWrite(ctx context.Context, cb TxCallback, cfn ...TxConfigFunc) error {
	txCfg := TxConfig{Iso: sql.LevelDefault, ReadOnly: false}

	for _, fn := range cfn {
		fn(&txCfg)
	}

	return txm.isolate(ctx, cb, txCfg)
}

func (txm *SqlxTxManager) isolate(ctx context.Context, cb TxCallback, txCfg TxConfig) (err error) {
	txx, err := txm.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: txCfg.ReadOnly, Isolation: txCfg.Iso})
	if err != nil {
		return errors.Wrapf(
			err,
			"could not start transaction. read-only: %v, isolation: %d",
			txCfg.ReadOnly, txCfg.Iso,
		)
	}

	committed := false
	defer func() {
		if committed {
			return
		}

		if r := recover(); r != nil {
			_ = txx.Rollback()
			panic(r)
		}
	}()

	if cbErr := cb(ctx, txx); cbErr != nil {
		if isDeadlock(cbErr) {
			cbErr = errors.Wrapf(
				ErrTxDeadlock,
				"read-only: %v, isolation: %d, on callback: %s",
				txCfg.ReadOnly, txCfg.Iso, cbErr.Error(),
			)
		}

		if rbErr := txx.Rollback(); rbErr != nil {
			return &rollbackError{err: cbErr, rollbackErr: rbErr}
		}

		return cbErr
	}

	if err := txx.Commit(); err != nil {
		if isDeadlock(err) {
			return errors.Wrapf(
				ErrTxDeadlock,
				"read-only: %v, isolation: %d, on commit: %s",
				txCfg.ReadOnly, txCfg.Iso, err.Error(),
			)
		}

		return errors.Wrapf(
			err,
			"could not commit transaction. read-only: %v, isolation: %d",
			txCfg.ReadOnly, txCfg.Iso,
		)
	}

	committed = true

	return nil
}

// rollbackError keeps the original failure as the cause
type rollbackError struct {
	err         error
	rollbackErr error
}

func (e *rollbackError) Error() string {
	return e.err.Error() + " : ROLLBACK : " + e.rollbackErr.Error()
}

func (e *rollbackError) Unwrap() error {
	return e.err
}

func isDeadlock(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "deadlock")
}

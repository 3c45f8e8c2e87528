package sqlgateway

import (
	"context"
	"github.com/denismitr/upgradedb/internal/retry"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"time"
)

const (
	DefaultConnectionAttempts    = 10
	DefaultConnectionTimeout     = 60 * time.Second
	DefaultConnectionAttemptStep = 500 * time.Millisecond
)

type ConnectOptions struct {
	MaxAttempts int
	MaxTimeout  time.Duration
	RetryStep   time.Duration
}

func NewDefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		MaxAttempts: DefaultConnectionAttempts,
		MaxTimeout:  DefaultConnectionTimeout,
		RetryStep:   DefaultConnectionAttemptStep,
	}
}

type Connector interface {
	Connect(ctx context.Context) error
}

// RetryingConnector pings the database until it answers
type RetryingConnector struct {
	options *ConnectOptions
	db      *sqlx.DB
}

var _ Connector = (*RetryingConnector)(nil)

func MakeRetryingConnector(db *sqlx.DB, options *ConnectOptions) *RetryingConnector {
	if options == nil {
		options = NewDefaultConnectOptions()
	}

	return &RetryingConnector{db: db, options: options}
}

func (c *RetryingConnector) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.MaxTimeout)
	defer cancel()

	return retry.Incremental(ctx, c.options.RetryStep, c.options.MaxAttempts, func(attempt int) error {
		if err := c.db.PingContext(ctx); err != nil {
			return retry.Error(errors.Wrap(err, "could not establish DB connection"), attempt)
		}

		var one int
		if err := c.db.QueryRowxContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return errors.Wrap(err, "db ping query failed")
		}

		return nil
	})
}

package retry

import (
	"context"
	"github.com/pkg/errors"
	"time"
)

var ErrTooManyAttempts = errors.New("too many retry attempts")

type Callable func(attempt int) error

// retryable marks an error the callable is willing to be called again after
type retryable struct {
	error
	attempt int
}

func (r *retryable) Unwrap() error {
	return r.error
}

func Error(err error, attempt int) error {
	if err == nil {
		return nil
	}
	return &retryable{error: err, attempt: attempt}
}

// Incremental calls cb until it succeeds, returns a non retryable error
// or maxAttempts is reached, waiting step, 2*step, 3*step... in between
func Incremental(ctx context.Context, step time.Duration, maxAttempts int, cb Callable) error {
	var wait time.Duration

	for attempt := 1; ; attempt++ {
		err := cb(attempt)
		if err == nil {
			return nil
		}

		var r *retryable
		if !errors.As(err, &r) {
			return errors.Wrapf(err, "attempt %d failed", attempt)
		}

		if attempt >= maxAttempts {
			return errors.Wrapf(ErrTooManyAttempts, "%d attempts, last error: %s", attempt, r.error.Error())
		}

		wait += step

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "gave up after %d attempts", attempt)
		case <-time.After(wait):
		}
	}
}

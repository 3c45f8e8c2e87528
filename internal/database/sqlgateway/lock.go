package sqlgateway

import (
	"context"
)

// Locker serializes concurrent runs against the same database
// through a session level advisory lock
type Locker interface {
	Lock(context.Context, CtxExecutor) error
	Unlock(context.Context, CtxExecutor) error
}

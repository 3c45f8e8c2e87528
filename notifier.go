package upgradedb

import (
	"context"
	"github.com/denismitr/upgradedb/migration"
)

// Notifier is told about the schema objects announced by the migrations
// of a database once they have been committed
type Notifier interface {
	SchemaObjectsCreated(ctx context.Context, database string, objects []migration.SchemaObject)
}

type NotifierFunc func(ctx context.Context, database string, objects []migration.SchemaObject)

func (f NotifierFunc) SchemaObjectsCreated(ctx context.Context, database string, objects []migration.SchemaObject) {
	f(ctx, database, objects)
}

// Notifiers fans a notification out in order
type Notifiers []Notifier

func (ns Notifiers) SchemaObjectsCreated(ctx context.Context, database string, objects []migration.SchemaObject) {
	for _, n := range ns {
		n.SchemaObjectsCreated(ctx, database, objects)
	}
}

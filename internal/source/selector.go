package source

import (
	"context"
	"github.com/denismitr/upgradedb/migration"
)

type Filter struct {
	Databases []string
}

func (f Filter) allows(database string) bool {
	if len(f.Databases) == 0 {
		return true
	}

	for i := range f.Databases {
		if f.Databases[i] == database {
			return true
		}
	}

	return false
}

type Selector interface {
	Select(ctx context.Context, f Filter) (map[string]migration.Files, error)
}

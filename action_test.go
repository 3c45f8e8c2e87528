package upgradedb

import (
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestCreateConfigurators(t *testing.T) {
	t.Run("all values", func(t *testing.T) {
		cfs, err := CreateConfigurators([]string{"default", "reports"}, "12", []string{"0001_init.sql"})
		require.NoError(t, err)
		require.Len(t, cfs, 3)

		act := newAction(cfs...)
		assert.Equal(t, []string{"default", "reports"}, act.databases)
		require.NotNil(t, act.stopAt)
		assert.Equal(t, uint64(12), *act.stopAt)
		assert.True(t, act.hasLabel("0001_init.sql"))
		assert.False(t, act.hasLabel("0002_init.sql"))
		assert.True(t, act.allowsSequence(12))
		assert.False(t, act.allowsSequence(13))
	})

	t.Run("no values", func(t *testing.T) {
		cfs, err := CreateConfigurators(nil, "", nil)
		require.NoError(t, err)
		assert.Len(t, cfs, 0)

		act := newAction(cfs...)
		assert.Nil(t, act.stopAt)
		assert.True(t, act.allowsSequence(1<<40))
	})

	t.Run("invalid stop at", func(t *testing.T) {
		for _, v := range []string{"abc", "-1", "1.5"} {
			_, err := CreateConfigurators(nil, v, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidStopAt), v)
			assert.False(t, errors.Is(err, ErrSeedUsage), v)
			assert.NotContains(t, err.Error(), "seeding", v)
		}
	})
}

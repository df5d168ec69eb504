package trim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tern-dev/terndb"
)

func TestBefore(t *testing.T) {
	ix, err := terndb.Open(t.TempDir(), terndb.Options{})
	require.NoError(t, err)
	defer ix.Close()

	_, err = ix.Add(genDocs(20))
	require.NoError(t, err)

	t.Run("Oldest", func(t *testing.T) {
		deleted, err := Before(context.TODO(), ix, 1)
		require.NoError(t, err)
		require.Equal(t, 0, deleted)
	})

	t.Run("Middle", func(t *testing.T) {
		deleted, err := Before(context.TODO(), ix, 11)
		require.NoError(t, err)
		require.Equal(t, 10, deleted)

		_, err = ix.Get(3)
		require.ErrorIs(t, err, terndb.ErrNotFound)
	})

	t.Run("Again", func(t *testing.T) {
		deleted, err := Before(context.TODO(), ix, 11)
		require.NoError(t, err)
		require.Equal(t, 0, deleted)
	})

	t.Run("Rest", func(t *testing.T) {
		next, err := ix.NextDoc()
		require.NoError(t, err)

		deleted, err := Before(context.TODO(), ix, next)
		require.NoError(t, err)
		require.Equal(t, 10, deleted)
	})
}

package trim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tern-dev/terndb"
	"github.com/tern-dev/terndb/docs"
)

func TestByQuery(t *testing.T) {
	ix, err := terndb.Open(t.TempDir(), terndb.Options{})
	require.NoError(t, err)
	defer ix.Close()

	_, err = ix.Add([]terndb.Document{
		{Text: "draft shopping list"},
		{Text: "final shopping list"},
		{Text: "draft essay"},
		{Text: "published essay"},
	})
	require.NoError(t, err)

	t.Run("NoMatch", func(t *testing.T) {
		deleted, err := ByQuery(context.TODO(), ix, "missing")
		require.NoError(t, err)
		require.Equal(t, 0, deleted)
	})

	t.Run("Drafts", func(t *testing.T) {
		deleted, err := ByQuery(context.TODO(), ix, "draft")
		require.NoError(t, err)
		require.Equal(t, 2, deleted)

		hits, err := ix.Search("shopping")
		require.NoError(t, err)
		require.Len(t, hits, 1)
		require.Equal(t, docs.ID(2), hits[0].Doc)
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := ByQuery(ctx, ix, "essay")
		require.ErrorIs(t, err, context.Canceled)
	})
}

package terndb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tern-dev/terndb/docs"
)

func TestCompact(t *testing.T) {
	dir := t.TempDir()

	var ix Index
	var err error

	ix, err = Open(dir, Options{})
	require.NoError(t, err)
	defer ix.Close()

	ds := gen(9)
	_, err = ix.Add(ds[0:3])
	require.NoError(t, err)
	require.NoError(t, ix.Sync())
	_, err = ix.Add(ds[3:6])
	require.NoError(t, err)
	require.NoError(t, ix.Sync())
	_, err = ix.Add(ds[6:9])
	require.NoError(t, err)
	require.NoError(t, ix.Sync())

	t.Run("None", func(t *testing.T) {
		stats, err := ix.Compact()
		require.NoError(t, err)
		require.Equal(t, CompactStats{}, stats)
	})

	t.Run("Partial", func(t *testing.T) {
		_, err := ix.Delete([]docs.ID{5})
		require.NoError(t, err)

		before, err := ix.Stat()
		require.NoError(t, err)

		stats, err := ix.Compact()
		require.NoError(t, err)
		require.Equal(t, 1, stats.Segments)
		require.Equal(t, 0, stats.Removed)
		require.Equal(t, 1, stats.Docs)
		require.Greater(t, stats.Reclaimed, int64(0))

		after, err := ix.Stat()
		require.NoError(t, err)
		require.Equal(t, before.Size-stats.Reclaimed, after.Size)
		require.Equal(t, 3, after.Segments)
		require.Equal(t, 9, after.Docs)
		require.Equal(t, 0, after.Deleted)

		_, err = ix.Get(5)
		require.ErrorIs(t, err, ErrNotFound)

		d, err := ix.Get(6)
		require.NoError(t, err)
		require.Equal(t, ds[5].Text, d.Text)

		hits, err := ix.Search("number4")
		require.NoError(t, err)
		require.Len(t, hits, 0)

		hits, err = ix.Search("number5")
		require.NoError(t, err)
		require.Equal(t, []docs.ID{6}, hitDocs(hits))
	})

	t.Run("Removed", func(t *testing.T) {
		_, err := ix.Delete([]docs.ID{4, 6})
		require.NoError(t, err)

		stats, err := ix.Compact()
		require.NoError(t, err)
		require.Equal(t, 1, stats.Segments)
		require.Equal(t, 1, stats.Removed)
		require.Equal(t, 2, stats.Docs)

		stat, err := ix.Stat()
		require.NoError(t, err)
		require.Equal(t, 2, stat.Segments)
		require.Equal(t, 6, stat.Docs)

		_, err = ix.Get(4)
		require.ErrorIs(t, err, ErrNotFound)

		d, err := ix.Get(7)
		require.NoError(t, err)
		require.Equal(t, ds[6].Text, d.Text)
	})

	t.Run("DeadTail", func(t *testing.T) {
		_, err := ix.Delete([]docs.ID{7, 8, 9})
		require.NoError(t, err)

		stats, err := ix.Compact()
		require.NoError(t, err)
		require.Equal(t, CompactStats{}, stats)

		stat, err := ix.Stat()
		require.NoError(t, err)
		require.Equal(t, 2, stat.Segments)

		next, err := ix.NextDoc()
		require.NoError(t, err)
		require.Equal(t, docs.ID(10), next)
	})

	t.Run("Reopen", func(t *testing.T) {
		require.NoError(t, ix.Close())

		ix, err = Open(dir, Options{Check: true})
		require.NoError(t, err)

		next, err := ix.NextDoc()
		require.NoError(t, err)
		require.Equal(t, docs.ID(10), next)

		_, err = ix.Add(gen(1))
		require.NoError(t, err)
		require.NoError(t, ix.Sync())

		stats, err := ix.Compact()
		require.NoError(t, err)
		require.Equal(t, 1, stats.Segments)
		require.Equal(t, 1, stats.Removed)
		require.Equal(t, 3, stats.Docs)

		stat, err := ix.Stat()
		require.NoError(t, err)
		require.Equal(t, 2, stat.Segments)
		require.Equal(t, 4, stat.Docs)

		_, err = ix.Get(8)
		require.ErrorIs(t, err, ErrNotFound)

		d, err := ix.Get(10)
		require.NoError(t, err)
		require.Equal(t, docs.ID(10), d.ID)
	})
}

func TestCompactMulti(t *testing.T) {
	ix, err := Open(t.TempDir(), Options{AutoSync: true})
	require.NoError(t, err)
	defer ix.Close()

	ds := gen(6)
	addBatched(t, ix, ds, 2)

	_, err = ix.Delete([]docs.ID{1, 3})
	require.NoError(t, err)

	stats, err := CompactMulti(context.TODO(), ix, CompactMultiWithWait(time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 2, stats.Segments)
	require.Equal(t, 2, stats.Docs)

	stats, err = ix.Compact()
	require.NoError(t, err)
	require.Equal(t, CompactStats{}, stats)

	t.Run("Canceled", func(t *testing.T) {
		_, err := ix.Delete([]docs.ID{2})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = CompactMulti(ctx, ix, CompactMultiWithWait(time.Minute))
		require.ErrorIs(t, err, context.Canceled)
	})
}

package terndb

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/docs"
)

func gen(n int) []Document {
	ds := make([]Document, n)
	for i := range ds {
		ds[i] = Document{Text: fmt.Sprintf("record number%d payload", i)}
	}
	return ds
}

func addBatched(t *testing.T, ix Index, ds []Document, batchLen int) {
	for begin := 0; begin < len(ds); begin += batchLen {
		end := begin + batchLen
		if end > len(ds) {
			end = len(ds)
		}
		start, err := ix.NextDoc()
		require.NoError(t, err)

		next, err := ix.Add(ds[begin:end])
		require.NoError(t, err)
		require.Equal(t, start+docs.ID(end-begin), next)
	}
}

func TestBasic(t *testing.T) {
	dir := t.TempDir()

	var ix Index
	var err error
	t.Run("Open", func(t *testing.T) {
		ix, err = Open(dir, Options{})
		require.NoError(t, err)

		next, err := ix.NextDoc()
		require.NoError(t, err)
		require.Equal(t, docs.ID(1), next)

		stat, err := ix.Stat()
		require.NoError(t, err)
		require.Equal(t, 0, stat.Segments)
		require.Equal(t, 0, stat.Docs)
	})

	ds := gen(6)
	t.Run("Add", func(t *testing.T) {
		next, err := ix.Add(ds)
		require.NoError(t, err)
		require.Equal(t, docs.ID(7), next)

		for i := range ds {
			require.Equal(t, docs.ID(i+1), ds[i].ID)
		}

		next, err = ix.NextDoc()
		require.NoError(t, err)
		require.Equal(t, docs.ID(7), next)
	})

	t.Run("Get", func(t *testing.T) {
		d, err := ix.Get(1)
		require.NoError(t, err)
		require.Equal(t, docs.ID(1), d.ID)
		require.Equal(t, ds[0].Text, d.Text)

		_, err = ix.Get(7)
		require.ErrorIs(t, err, ErrInvalidDoc)

		_, err = ix.Get(docs.Invalid)
		require.ErrorIs(t, err, ErrInvalidDoc)
	})

	t.Run("SearchBuffer", func(t *testing.T) {
		hits, err := ix.Search("number3")
		require.NoError(t, err)
		require.Len(t, hits, 1)
		require.Equal(t, docs.ID(4), hits[0].Doc)

		hits, err = ix.Search("record")
		require.NoError(t, err)
		require.Len(t, hits, 6)

		hits, err = ix.Search("")
		require.NoError(t, err)
		require.Len(t, hits, 0)
	})

	t.Run("Sync", func(t *testing.T) {
		require.NoError(t, ix.Sync())

		stat, err := ix.Stat()
		require.NoError(t, err)
		require.Equal(t, 1, stat.Segments)
		require.Equal(t, 6, stat.Docs)
		require.Equal(t, 0, stat.Deleted)
		require.Greater(t, stat.Size, int64(0))
	})

	t.Run("SearchSegment", func(t *testing.T) {
		hits, err := ix.Search("number3")
		require.NoError(t, err)
		require.Len(t, hits, 1)
		require.Equal(t, docs.ID(4), hits[0].Doc)

		d, err := ix.Get(4)
		require.NoError(t, err)
		require.Equal(t, ds[3].Text, d.Text)
	})

	t.Run("Close", func(t *testing.T) {
		require.NoError(t, ix.Close())
	})
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()

	ix, err := Open(dir, Options{AutoSync: true})
	require.NoError(t, err)

	ds := gen(6)
	addBatched(t, ix, ds, 2)

	stat, err := ix.Stat()
	require.NoError(t, err)
	require.Equal(t, 3, stat.Segments)
	require.Equal(t, 6, stat.Docs)

	require.NoError(t, ix.Close())

	ix, err = Open(dir, Options{Check: true})
	require.NoError(t, err)
	defer ix.Close()

	next, err := ix.NextDoc()
	require.NoError(t, err)
	require.Equal(t, docs.ID(7), next)

	d, err := ix.Get(3)
	require.NoError(t, err)
	require.Equal(t, ds[2].Text, d.Text)

	hits, err := ix.Search("record")
	require.NoError(t, err)
	require.Len(t, hits, 6)

	next, err = ix.Add(gen(1))
	require.NoError(t, err)
	require.Equal(t, docs.ID(8), next)
}

func TestLocked(t *testing.T) {
	dir := t.TempDir()

	ix, err := Open(dir, Options{})
	require.NoError(t, err)

	_, err = Open(dir, Options{})
	require.Error(t, err)

	_, err = Open(dir, Options{Readonly: true})
	require.Error(t, err)

	require.NoError(t, ix.Close())

	ix, err = Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, ix.Close())
}

func TestReadonly(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		ix, err := Open(t.TempDir(), Options{Readonly: true})
		require.NoError(t, err)
		defer ix.Close()

		next, err := ix.NextDoc()
		require.NoError(t, err)
		require.Equal(t, docs.ID(1), next)

		_, err = ix.Add(gen(1))
		require.ErrorIs(t, err, ErrReadonly)

		_, err = ix.Delete([]docs.ID{1})
		require.ErrorIs(t, err, ErrReadonly)

		_, err = ix.Compact()
		require.ErrorIs(t, err, ErrReadonly)

		_, err = ix.Get(1)
		require.ErrorIs(t, err, ErrInvalidDoc)

		hits, err := ix.Search("record")
		require.NoError(t, err)
		require.Len(t, hits, 0)

		stat, err := ix.Stat()
		require.NoError(t, err)
		require.Equal(t, 0, stat.Segments)

		require.NoError(t, ix.Sync())
	})

	t.Run("Segments", func(t *testing.T) {
		dir := t.TempDir()

		w, err := Open(dir, Options{AutoSync: true})
		require.NoError(t, err)

		ds := gen(6)
		addBatched(t, w, ds, 3)
		require.NoError(t, w.Close())

		ix, err := Open(dir, Options{Readonly: true, Check: true})
		require.NoError(t, err)
		defer ix.Close()

		next, err := ix.NextDoc()
		require.NoError(t, err)
		require.Equal(t, docs.ID(7), next)

		d, err := ix.Get(5)
		require.NoError(t, err)
		require.Equal(t, ds[4].Text, d.Text)

		_, err = ix.Get(7)
		require.ErrorIs(t, err, ErrInvalidDoc)

		hits, err := ix.Search("number0")
		require.NoError(t, err)
		require.Len(t, hits, 1)
		require.Equal(t, docs.ID(1), hits[0].Doc)
	})
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()

	ix, err := Open(dir, Options{})
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

	t.Run("None", func(t *testing.T) {
		deleted, err := ix.Delete(nil)
		require.NoError(t, err)
		require.Equal(t, 0, deleted)
	})

	t.Run("Segment", func(t *testing.T) {
		deleted, err := ix.Delete([]docs.ID{2})
		require.NoError(t, err)
		require.Equal(t, 1, deleted)

		_, err = ix.Get(2)
		require.ErrorIs(t, err, ErrNotFound)

		hits, err := ix.Search("number1")
		require.NoError(t, err)
		require.Len(t, hits, 0)

		stat, err := ix.Stat()
		require.NoError(t, err)
		require.Equal(t, 1, stat.Deleted)
	})

	t.Run("Again", func(t *testing.T) {
		deleted, err := ix.Delete([]docs.ID{2})
		require.NoError(t, err)
		require.Equal(t, 0, deleted)
	})

	t.Run("Buffer", func(t *testing.T) {
		deleted, err := ix.Delete([]docs.ID{2, 8})
		require.NoError(t, err)
		require.Equal(t, 1, deleted)

		_, err = ix.Get(8)
		require.ErrorIs(t, err, ErrNotFound)

		hits, err := ix.Search("number7")
		require.NoError(t, err)
		require.Len(t, hits, 0)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := ix.Delete([]docs.ID{15})
		require.ErrorIs(t, err, ErrInvalidDoc)

		_, err = ix.Delete([]docs.ID{docs.EOF})
		require.ErrorIs(t, err, ErrInvalidDoc)

		d, err := ix.Get(3)
		require.NoError(t, err)
		require.Equal(t, ds[2].Text, d.Text)
	})

	t.Run("Flush", func(t *testing.T) {
		require.NoError(t, ix.Sync())

		stat, err := ix.Stat()
		require.NoError(t, err)
		require.Equal(t, 3, stat.Segments)
		require.Equal(t, 9, stat.Docs)
		require.Equal(t, 1, stat.Deleted)

		_, err = ix.Get(8)
		require.ErrorIs(t, err, ErrNotFound)

		hits, err := ix.Search("number7")
		require.NoError(t, err)
		require.Len(t, hits, 0)
	})
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()

	ix, err := Open(dir, Options{AutoSync: true})
	require.NoError(t, err)

	ds := gen(6)
	addBatched(t, ix, ds, 3)

	target := t.TempDir()
	require.NoError(t, ix.Backup(target))

	srcStat, err := ix.Stat()
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	bix, err := Open(target, Options{Readonly: true, Check: true})
	require.NoError(t, err)
	defer bix.Close()

	dstStat, err := bix.Stat()
	require.NoError(t, err)
	require.Equal(t, srcStat, dstStat)

	d, err := bix.Get(4)
	require.NoError(t, err)
	require.Equal(t, ds[3].Text, d.Text)

	t.Run("Closed", func(t *testing.T) {
		target := t.TempDir()
		require.NoError(t, Backup(dir, target))

		stat, err := Stat(target)
		require.NoError(t, err)
		require.Equal(t, srcStat, stat)

		require.NoError(t, Check(target))
		require.NoError(t, Recover(target))
	})
}

func TestConcurrent(t *testing.T) {
	ix, err := Open(t.TempDir(), Options{AutoSync: true})
	require.NoError(t, err)
	defer ix.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for i := 0; ctx.Err() == nil; i++ {
			ds := []Document{{
				Text: fmt.Sprintf("common item%d", i),
			}}
			if _, err := ix.Add(ds); err != nil {
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		for ctx.Err() == nil {
			hits, err := ix.Search("common")
			if err != nil {
				return kleverr.Newf("could not search: %w", err)
			}

			seen := map[docs.ID]bool{}
			for _, hit := range hits {
				if seen[hit.Doc] {
					return kleverr.Newf("doc %d scored twice", hit.Doc)
				}
				seen[hit.Doc] = true
			}
		}
		return nil
	})

	g.Go(func() error {
		for ctx.Err() == nil {
			next, err := ix.NextDoc()
			if err != nil {
				return err
			}
			if next < 2 {
				continue
			}

			id := docs.ID(rand.Intn(int(next-1))) + 1
			if _, err := ix.Delete([]docs.ID{id}); err != nil {
				return kleverr.Newf("could not delete %d: %w", id, err)
			}
		}
		return nil
	})

	g.Go(func() error {
		for ctx.Err() == nil {
			if _, err := ix.Compact(); err != nil {
				return kleverr.Newf("could not compact: %w", err)
			}
			time.Sleep(10 * time.Millisecond)
		}
		return nil
	})

	require.NoError(t, g.Wait())
}

package dict

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/tern-dev/terndb/store"
)

func writeDict(t *testing.T, path string, terms map[string]TermInfo, docCount int) {
	t.Helper()

	names := maps.Keys(terms)
	slices.Sort(names)

	w := NewWriter(8, 8, docCount)
	for _, name := range names {
		info := terms[name]
		require.NoError(t, w.Add([]byte(name), info.DF, info.Off))
	}

	out, err := store.CreateFile(path)
	require.NoError(t, err)
	require.NoError(t, w.Flush(out))
	require.NoError(t, out.Close())
}

func TestReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.dict")
	terms := map[string]TermInfo{
		"alpha": {DF: 3, Off: 0},
		"beta":  {DF: 1, Off: 100},
		"betas": {DF: 2, Off: 150},
		"zeta":  {DF: 7, Off: 300},
	}
	writeDict(t, path, terms, 7)

	r, err := Open(path)
	require.NoError(t, err)

	require.Equal(t, len(terms), r.Count())
	require.Equal(t, 7, r.Docs())
	skip0, skipN := r.SkipParams()
	require.Equal(t, 8, skip0)
	require.Equal(t, 8, skipN)

	for name, info := range terms {
		got, err := r.Lookup([]byte(name))
		require.NoError(t, err)
		require.Equal(t, info, got)
	}

	_, err = r.Lookup([]byte("gamma"))
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Lookup([]byte("bet"))
	require.ErrorIs(t, err, ErrNotFound)

	var walked []string
	require.NoError(t, r.Walk(func(term []byte, info TermInfo) error {
		walked = append(walked, string(term))
		return nil
	}))

	want := maps.Keys(terms)
	slices.Sort(want)
	require.Equal(t, want, walked)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "none.dict"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWalkStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.dict")
	writeDict(t, path, map[string]TermInfo{
		"a": {DF: 1, Off: 0},
		"b": {DF: 1, Off: 10},
		"c": {DF: 1, Off: 20},
	}, 1)

	r, err := Open(path)
	require.NoError(t, err)

	stop := errors.New("stop")
	var visited int
	err = r.Walk(func(term []byte, info TermInfo) error {
		visited++
		if visited == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 2, visited)
}

func TestWriterErrors(t *testing.T) {
	w := NewWriter(8, 8, 10)

	require.NoError(t, w.Add([]byte("m"), 1, 0))
	require.Error(t, w.Add([]byte("m"), 1, 10))
	require.Error(t, w.Add([]byte("a"), 1, 10))
	require.Error(t, w.Add(nil, 1, 10))
	require.Error(t, w.Add([]byte("z"), 0, 10))
}

func TestCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.dict")
	writeDict(t, path, map[string]TermInfo{
		"alpha": {DF: 2, Off: 0},
		"beta":  {DF: 1, Off: 50},
	}, 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	t.Run("flipped footer", func(t *testing.T) {
		bad := slices.Clone(data)
		bad[len(bad)-1] ^= 0xff
		_, err := Parse(bad)
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("flipped body", func(t *testing.T) {
		bad := slices.Clone(data)
		bad[0] ^= 0xff
		_, err := Parse(bad)
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Parse(data[:3])
		require.ErrorIs(t, err, ErrCorrupted)

		_, err = Parse(data[:len(data)-1])
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		body := slices.Clone(data[:len(data)-4])
		body = append(body, 0)
		bad := binary.BigEndian.AppendUint32(body, crc32.Checksum(body, crc32cTable))
		_, err := Parse(bad)
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("bad skip params", func(t *testing.T) {
		body := []byte{8, 1, 0, 0}
		bad := binary.BigEndian.AppendUint32(body, crc32.Checksum(body, crc32cTable))
		_, err := Parse(bad)
		require.ErrorIs(t, err, ErrCorrupted)
	})

	t.Run("df exceeds docs", func(t *testing.T) {
		w := NewWriter(8, 8, 1)
		require.NoError(t, w.Add([]byte("big"), 5, 0))

		out := store.NewBuffer()
		require.NoError(t, w.Flush(out))
		_, err := Parse(out.Bytes())
		require.ErrorIs(t, err, ErrCorrupted)
	})
}

package terndb

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tern-dev/terndb/docs"
)

func BenchmarkSingle(b *testing.B) {
	b.Run("Add", benchmarkAdd)
	b.Run("Search", benchmarkSearch)
	b.Run("Get", benchmarkGet)
}

func BenchmarkMulti(b *testing.B) {
	b.Run("Base", benchmarkBaseMulti)
}

func MkdirBench(b *testing.B) string {
	name := strings.Replace(b.Name(), "/", "_", -1)

	currentDir, err := os.Getwd()
	require.NoError(b, err)

	dir, err := os.MkdirTemp(currentDir, name)
	require.NoError(b, err)
	return dir
}

func benchDocs(n int) []Document {
	ds := make([]Document, n)
	for i := range ds {
		ds[i] = Document{Text: fmt.Sprintf("entry number%d of a shared benchmark corpus", i)}
	}
	return ds
}

func fillIndex(b *testing.B, ix Index) []Document {
	ds := benchDocs(b.N)
	for i := 0; i < b.N; i += 8 {
		top := i + 8
		if top > b.N {
			top = b.N
		}
		if _, err := ix.Add(ds[i:top]); err != nil {
			b.Fatal(err)
		}
	}
	return ds
}

func benchmarkAdd(b *testing.B) {
	for _, bn := range []int{1, 8} {
		bn := bn
		b.Run(fmt.Sprintf("%d", bn), func(b *testing.B) {
			dir := MkdirBench(b)
			defer os.RemoveAll(dir)

			ix, err := Open(dir, Options{})
			require.NoError(b, err)
			defer ix.Close()

			ds := benchDocs(b.N)

			b.SetBytes(int64(len(ds[0].Text)) * int64(bn))
			b.ResetTimer()

			for i := 0; i < b.N; i += bn {
				top := i + bn
				if top > b.N {
					top = b.N
				}

				if _, err := ix.Add(ds[i:top]); err != nil {
					b.Fatal(err)
				}
			}

			b.StopTimer()
		})
	}
}

func benchmarkSearch(b *testing.B) {
	b.Run("W", func(b *testing.B) {
		dir := MkdirBench(b)
		defer os.RemoveAll(dir)

		ix, err := Open(dir, Options{})
		require.NoError(b, err)
		defer ix.Close()

		fillIndex(b, ix)

		queries := make([]string, b.N)
		for i := range queries {
			queries[i] = fmt.Sprintf("number%d", i)
		}

		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			if _, err := ix.Search(queries[i]); err != nil {
				b.Fatal(err)
			}
		}

		b.StopTimer()
	})

	b.Run("R", func(b *testing.B) {
		dir := MkdirBench(b)
		defer os.RemoveAll(dir)

		ix, err := Open(dir, Options{})
		require.NoError(b, err)
		defer ix.Close()

		fillIndex(b, ix)
		require.NoError(b, ix.Close())

		queries := make([]string, b.N)
		for i := range queries {
			queries[i] = fmt.Sprintf("number%d", i)
		}

		b.ResetTimer()

		ix, err = Open(dir, Options{Readonly: true})
		require.NoError(b, err)
		defer ix.Close()

		for i := 0; i < b.N; i++ {
			if _, err := ix.Search(queries[i]); err != nil {
				b.Fatal(err)
			}
		}

		b.StopTimer()
	})
}

func benchmarkGet(b *testing.B) {
	dir := MkdirBench(b)
	defer os.RemoveAll(dir)

	ix, err := Open(dir, Options{})
	require.NoError(b, err)
	defer ix.Close()

	ds := fillIndex(b, ix)

	b.SetBytes(int64(len(ds[0].Text)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ix.Get(docs.ID(i + 1)); err != nil {
			b.Fatal(err)
		}
	}

	b.StopTimer()
}

func benchmarkBaseMulti(b *testing.B) {
	dir := MkdirBench(b)
	defer os.RemoveAll(dir)

	ix, err := Open(dir, Options{})
	require.NoError(b, err)
	defer ix.Close()

	ds := benchDocs(b.N)

	b.ResetTimer()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < b.N; i += 8 {
			top := i + 8
			if top > b.N {
				top = b.N
			}
			if _, err := ix.Add(ds[i:top]); err != nil {
				b.Fatal(err)
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < b.N; i++ {
			if _, err := ix.Search("shared"); err != nil {
				b.Fatal(err)
			}
		}
	}()

	wg.Wait()

	b.StopTimer()
}

package terndb

import (
	"errors"
	"math"

	"golang.org/x/exp/slices"

	"github.com/tern-dev/terndb/dict"
	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/segment"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// postingsCursor is the movement surface a search needs, shared by the
// disk iterators and the in-memory lists.
type postingsCursor interface {
	Next() (docs.ID, error)
	Advance(target docs.ID) (docs.ID, error)
	Doc() docs.ID
	Freq() int
}

type memIterator struct {
	list []segment.Posting
	pos  int
	doc  docs.ID
	freq int
}

func newMemIterator(list []segment.Posting) *memIterator {
	return &memIterator{list: list, pos: -1}
}

func (it *memIterator) Next() (docs.ID, error) {
	if it.pos+1 >= len(it.list) {
		it.doc = docs.EOF
		return docs.EOF, nil
	}
	it.pos++
	it.doc, it.freq = it.list[it.pos].Doc, it.list[it.pos].Freq
	return it.doc, nil
}

func (it *memIterator) Advance(target docs.ID) (docs.ID, error) {
	for it.doc < target {
		if _, err := it.Next(); err != nil {
			return docs.Invalid, err
		}
	}
	return it.doc, nil
}

func (it *memIterator) Doc() docs.ID {
	return it.doc
}

func (it *memIterator) Freq() int {
	return it.freq
}

// termSource is one searchable unit, either a committed segment or the
// in-memory buffer. Locals returned by its cursors map to globals
// through base.
type termSource struct {
	base   docs.ID
	masked func(local docs.ID) bool
	norm   func(local docs.ID) (uint32, error)
	open   func(term string) (postingsCursor, int, bool, error)
}

func segmentSource(rdr *segment.Reader) termSource {
	return termSource{
		base:   rdr.Base(),
		masked: rdr.Masked,
		norm:   rdr.Norm,
		open: func(term string) (postingsCursor, int, bool, error) {
			it, info, err := rdr.Postings([]byte(term))
			switch {
			case errors.Is(err, dict.ErrNotFound):
				return nil, 0, false, nil
			case err != nil:
				return nil, 0, false, err
			}
			return it, info.DF, true, nil
		},
	}
}

func bufferSource(v *memView) termSource {
	return termSource{
		base: v.base,
		masked: func(local docs.ID) bool {
			return v.deleted.Contains(uint32(local))
		},
		norm: func(local docs.ID) (uint32, error) {
			return v.docList[local-1].norm, nil
		},
		open: func(term string) (postingsCursor, int, bool, error) {
			list, ok := v.lists[term]
			if !ok {
				return nil, 0, false, nil
			}
			return newMemIterator(list), len(list), true, nil
		},
	}
}

func (ix *index) Search(query string) ([]Hit, error) {
	return ix.search(query, true)
}

func (ix *index) SearchAny(query string) ([]Hit, error) {
	return ix.search(query, false)
}

func (ix *index) search(query string, all bool) ([]Hit, error) {
	terms := Analyze(query)
	slices.Sort(terms)
	terms = slices.Compact(terms)
	if len(terms) == 0 {
		return nil, nil
	}

	var mem *memView
	if !ix.opts.Readonly {
		ix.writerMu.Lock()
		mem = ix.writer.view(terms)
		ix.writerMu.Unlock()
	}

	ix.readersMu.RLock()
	defer ix.readersMu.RUnlock()

	// collect the sources, skipping segments the buffer snapshot
	// already covers to not count a doc twice
	var sources []termSource
	var live int
	var normSum uint64
	for _, rdr := range ix.readers {
		if mem != nil && rdr.Base() >= mem.base {
			continue
		}
		sources = append(sources, segmentSource(rdr))
		live += rdr.Live()
		normSum += rdr.NormSum()
	}
	if mem != nil && mem.count > 0 {
		sources = append(sources, bufferSource(mem))
		live += mem.live()
		normSum += mem.normSum
	}
	if live <= 0 {
		return nil, nil
	}

	// open all cursors up front, the summed dfs drive the idf so every
	// source scores a term with the same weight
	cursors := make([][]postingsCursor, len(sources))
	dfs := make([]int, len(terms))
	for si, src := range sources {
		cursors[si] = make([]postingsCursor, len(terms))
		for ti, term := range terms {
			cur, df, found, err := src.open(term)
			if err != nil {
				return nil, err
			}
			if found {
				cursors[si][ti] = cur
				dfs[ti] += df
			}
		}
	}

	idf := make([]float64, len(terms))
	for ti, df := range dfs {
		if df == 0 {
			if all {
				return nil, nil
			}
			continue
		}
		if w := math.Log(1 + (float64(live)-float64(df)+0.5)/(float64(df)+0.5)); w > 0 {
			idf[ti] = w
		}
	}
	avgdl := float64(normSum) / float64(live)

	var hits []Hit
	for si, src := range sources {
		var found []Hit
		var err error
		if all {
			found, err = conjunction(src, cursors[si], idf, avgdl)
		} else {
			found, err = disjunction(src, cursors[si], idf, avgdl)
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, found...)
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Doc < b.Doc:
			return -1
		case a.Doc > b.Doc:
			return 1
		}
		return 0
	})
	return hits, nil
}

// conjunction walks all cursors in lockstep, emitting docs every term
// agrees on. Skip lists make the catch-up advances cheap.
func conjunction(src termSource, cursors []postingsCursor, idf []float64, avgdl float64) ([]Hit, error) {
	for _, cur := range cursors {
		if cur == nil {
			return nil, nil
		}
	}

	var hits []Hit
	target := docs.ID(1)
	for target < docs.EOF {
		aligned := target
		for _, cur := range cursors {
			doc, err := cur.Advance(aligned)
			if err != nil {
				return nil, err
			}
			if doc > aligned {
				aligned = doc
			}
		}
		if aligned != target {
			target = aligned
			continue
		}

		if !src.masked(target) {
			dl, err := src.norm(target)
			if err != nil {
				return nil, err
			}

			var score float64
			for ti, cur := range cursors {
				score += idf[ti] * saturate(cur.Freq(), dl, avgdl)
			}
			hits = append(hits, Hit{Doc: src.base + target - 1, Score: score})
		}
		target++
	}
	return hits, nil
}

// disjunction drains each cursor separately, accumulating scores per
// doc.
func disjunction(src termSource, cursors []postingsCursor, idf []float64, avgdl float64) ([]Hit, error) {
	scores := map[docs.ID]float64{}
	for ti, cur := range cursors {
		if cur == nil {
			continue
		}

		for {
			doc, err := cur.Next()
			if err != nil {
				return nil, err
			}
			if doc == docs.EOF {
				break
			}
			if src.masked(doc) {
				continue
			}

			dl, err := src.norm(doc)
			if err != nil {
				return nil, err
			}
			scores[doc] += idf[ti] * saturate(cur.Freq(), dl, avgdl)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, score := range scores {
		hits = append(hits, Hit{Doc: src.base + doc - 1, Score: score})
	}
	return hits, nil
}

// saturate is the bm25 term frequency component: more occurrences help
// less and less, long docs are held to a higher bar.
func saturate(freq int, dl uint32, avgdl float64) float64 {
	f := float64(freq)
	return f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(dl)/avgdl))
}

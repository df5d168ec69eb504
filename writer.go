package terndb

import (
	"github.com/RoaringBitmap/roaring"
	art "github.com/plar/go-adaptive-radix-tree"

	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/segment"
)

// writer buffers analyzed documents until the next rollover. All
// mutation runs under the index writerMu, searches snapshot it
// through view.
type writer struct {
	base docs.ID
	opts Options

	terms   art.Tree
	docList []memDoc
	deleted *roaring.Bitmap
	normSum uint64
	size    int64
}

type memDoc struct {
	norm uint32
	text string
}

type memList struct {
	entries []segment.Posting
}

func newWriter(base docs.ID, opts Options) *writer {
	return &writer{
		base:    base,
		opts:    opts,
		terms:   art.New(),
		deleted: roaring.New(),
	}
}

func (w *writer) count() int {
	return len(w.docList)
}

func (w *writer) next() docs.ID {
	return w.base + docs.ID(len(w.docList))
}

func (w *writer) needsRollover(rollover int64) bool {
	return w.size > rollover
}

func (w *writer) add(ds []Document) (docs.ID, error) {
	for i := range ds {
		doc := w.next()
		if err := docs.Validate(doc); err != nil {
			return docs.Invalid, kleverr.Newf("index full: %w", err)
		}
		ds[i].ID = doc

		tokens := Analyze(ds[i].Text)
		freqs := map[string]int{}
		for _, tok := range tokens {
			freqs[tok]++
		}

		local := docs.ID(len(w.docList) + 1)
		for term, freq := range freqs {
			w.append(term, local, freq)
		}

		w.docList = append(w.docList, memDoc{norm: uint32(len(tokens)), text: ds[i].Text})
		w.normSum += uint64(len(tokens))
		w.size += int64(len(ds[i].Text))
	}
	return w.next(), nil
}

func (w *writer) append(term string, local docs.ID, freq int) {
	key := art.Key(term)
	if v, found := w.terms.Search(key); found {
		list := v.(*memList)
		list.entries = append(list.entries, segment.Posting{Doc: local, Freq: freq})
	} else {
		w.terms.Insert(key, &memList{entries: []segment.Posting{{Doc: local, Freq: freq}}})
	}
	w.size += int64(len(term)) + 16
}

func (w *writer) delete(ids []docs.ID) int {
	var deleted int
	for _, id := range ids {
		local := id - w.base + 1
		if w.deleted.CheckedAdd(uint32(local)) {
			deleted++
			w.normSum -= uint64(w.docList[local-1].norm)
		}
	}
	return deleted
}

func (w *writer) get(doc docs.ID) (string, error) {
	if doc >= w.next() {
		return "", kleverr.Newf("%w: doc %d", docs.ErrInvalidDoc, doc)
	}
	local := doc - w.base + 1
	if w.deleted.Contains(uint32(local)) {
		return "", kleverr.Newf("%w: doc %d", docs.ErrNotFound, doc)
	}
	return w.docList[local-1].text, nil
}

// view snapshots the buffer for a search. The doc slice header and the
// capped list windows stay valid after the mutex is released, since
// concurrent adds only ever append past the captured lengths.
func (w *writer) view(terms []string) *memView {
	v := &memView{
		base:    w.base,
		count:   len(w.docList),
		docList: w.docList[:len(w.docList):len(w.docList)],
		deleted: w.deleted.Clone(),
		normSum: w.normSum,
	}
	if len(terms) > 0 {
		v.lists = make(map[string][]segment.Posting, len(terms))
		for _, term := range terms {
			if val, found := w.terms.Search(art.Key(term)); found {
				entries := val.(*memList).entries
				v.lists[term] = entries[:len(entries):len(entries)]
			}
		}
	}
	return v
}

type memView struct {
	base    docs.ID
	count   int
	docList []memDoc
	deleted *roaring.Bitmap
	normSum uint64
	lists   map[string][]segment.Posting
}

func (v *memView) live() int {
	return v.count - int(v.deleted.GetCardinality())
}

// The writer doubles as a segment.Source, so a rollover flushes it
// directly. Deleted docs flush as dropped slots, keeping ids dense.

func (w *writer) Params() (int, int, int) {
	return w.opts.SkipInterval, w.opts.SkipMultiplier, w.opts.MaxSkipLevels
}

func (w *writer) Docs() int {
	return len(w.docList)
}

func (w *writer) Doc(local docs.ID) (uint32, string, bool, error) {
	d := w.docList[local-1]
	if w.deleted.Contains(uint32(local)) {
		return d.norm, "", false, nil
	}
	return d.norm, d.text, true, nil
}

func (w *writer) Walk(fn func(term []byte, list []segment.Posting) error) error {
	var werr error
	var live []segment.Posting
	w.terms.ForEach(func(node art.Node) bool {
		entries := node.Value().(*memList).entries

		live = live[:0]
		for _, p := range entries {
			if w.deleted.Contains(uint32(p.Doc)) {
				continue
			}
			live = append(live, p)
		}
		if len(live) == 0 {
			return true
		}

		if err := fn(node.Key(), live); err != nil {
			werr = err
			return false
		}
		return true
	})
	return werr
}

package postings

import (
	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/skip"
	"github.com/tern-dev/terndb/store"
)

// Writer serializes postings lists one term at a time, reusing its
// buffers in between. Each skip payload carries the doc after the skip
// point, the doc before it and the byte position of the next entry,
// all absolute, so a payload can be interpreted without having decoded
// any previous one.
type Writer struct {
	skip0 int
	max   int

	buf  *store.Buffer
	skip *skip.Writer

	df    int
	count int
	last  docs.ID

	skipNext docs.ID
	skipLast docs.ID
	skipPtr  int64
}

func NewWriter(skipInterval, skipMultiplier, maxSkipLevels int) *Writer {
	return &Writer{
		skip0: skipInterval,
		max:   maxSkipLevels,
		buf:   store.NewBuffer(),
		skip:  skip.NewWriter(skipInterval, skipMultiplier),
	}
}

// Begin starts a new list of df entries.
func (w *Writer) Begin(df int) {
	w.buf.Reset()
	w.skip.Prepare(w.max, df, w.writeSkip)
	w.df = df
	w.count = 0
	w.last = docs.Invalid
}

// Add appends one entry. Docs must be strictly increasing within the
// list and freq must be positive. On finest stride boundaries the skip
// point is recorded before the new entry is encoded, so its payload
// names the doc a reader will decode right after a jump.
func (w *Writer) Add(doc docs.ID, freq int) error {
	if err := docs.Validate(doc); err != nil {
		return err
	}
	if doc <= w.last {
		return kleverr.Newf("postings out of order: %d after %d", doc, w.last)
	}
	if freq < 1 {
		return kleverr.Newf("postings freq %d for doc %d", freq, doc)
	}

	if w.count > 0 && w.count%w.skip0 == 0 {
		w.skipNext, w.skipLast, w.skipPtr = doc, w.last, w.buf.FilePointer()
		if err := w.skip.Skip(w.count); err != nil {
			return err
		}
	}

	if err := store.WriteUvarint(w.buf, uint64(doc-w.last)); err != nil {
		return err
	}
	if err := store.WriteUvarint(w.buf, uint64(freq)); err != nil {
		return err
	}

	w.last = doc
	w.count++
	return nil
}

func (w *Writer) writeSkip(level int, out *store.Buffer) error {
	if err := store.WriteUvarint(out, uint64(w.skipNext)); err != nil {
		return err
	}
	if err := store.WriteUvarint(out, uint64(w.skipLast)); err != nil {
		return err
	}
	return store.WriteUvarint(out, uint64(w.skipPtr))
}

// Flush writes the byte length of the entry data, the entries and the
// skip structure.
func (w *Writer) Flush(out store.Output) error {
	if w.count != w.df {
		return kleverr.Newf("postings count: %d of %d", w.count, w.df)
	}

	if err := store.WriteUvarint(out, uint64(w.buf.Len())); err != nil {
		return err
	}
	if _, err := w.buf.WriteTo(out); err != nil {
		return err
	}
	return w.skip.Flush(out)
}

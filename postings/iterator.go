package postings

import (
	"encoding/binary"

	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/skip"
	"github.com/tern-dev/terndb/store"
)

// Iterator decodes one postings list. It owns the cursor of its input;
// callers iterating a shared input hand over a Dup. Not safe for
// concurrent use.
type Iterator struct {
	in    store.Input
	skip0 int
	skipN int

	df       int
	consumed int
	doc      docs.ID
	freq     int

	dataStart int64
	dataEnd   int64

	skip   *skip.Reader
	target docs.ID
	safe   safePoint
}

// safePoint is the best jump found during a skip descent: the entry
// data position to resume from, with the doc before it as delta base.
type safePoint struct {
	doc docs.ID
	ptr int64
	ok  bool
}

// NewIterator positions in at off and reads the list header. The entry
// count df comes from the term dictionary.
func NewIterator(in store.Input, off int64, df int, skipInterval, skipMultiplier int) (*Iterator, error) {
	if err := in.Seek(off); err != nil {
		return nil, err
	}
	length, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, kleverr.Newf("postings length: %w", err)
	}

	start := in.FilePointer()
	end := start + int64(length)
	if end > in.Len() {
		return nil, kleverr.Newf("%w: data overruns input", ErrCorrupted)
	}

	return &Iterator{
		in:    in,
		skip0: skipInterval,
		skipN: skipMultiplier,

		df: df,

		dataStart: start,
		dataEnd:   end,
	}, nil
}

// Next decodes the next entry, returning docs.EOF once df entries have
// been consumed.
func (it *Iterator) Next() (docs.ID, error) {
	if it.consumed >= it.df {
		it.doc = docs.EOF
		return docs.EOF, nil
	}
	if it.in.FilePointer() >= it.dataEnd {
		return docs.Invalid, kleverr.Newf("%w: %d entries of %d", ErrCorrupted, it.consumed, it.df)
	}

	delta, err := binary.ReadUvarint(it.in)
	if err != nil {
		return docs.Invalid, kleverr.Newf("postings delta: %w", err)
	}
	if delta == 0 || delta > uint64(docs.EOF-1-it.doc) {
		return docs.Invalid, kleverr.Newf("%w: delta %d after doc %d", ErrCorrupted, delta, it.doc)
	}
	freq, err := binary.ReadUvarint(it.in)
	if err != nil {
		return docs.Invalid, kleverr.Newf("postings freq: %w", err)
	}
	if it.in.FilePointer() > it.dataEnd {
		return docs.Invalid, kleverr.Newf("%w: entry overruns data", ErrCorrupted)
	}

	it.doc += docs.ID(delta)
	it.freq = int(freq)
	it.consumed++
	return it.doc, nil
}

// Doc returns the current doc: docs.Invalid before the first Next,
// docs.EOF after exhaustion.
func (it *Iterator) Doc() docs.ID {
	return it.doc
}

// Freq returns the term frequency at the current doc.
func (it *Iterator) Freq() int {
	return it.freq
}

// Advance moves to the first doc at or past target and returns it. On
// lists long enough to have a skip structure the structure is prepared
// lazily over a duplicated cursor and consulted first; entries it
// clears are jumped over without decoding. Non-decreasing targets
// across calls reuse the structure and never move the input backward.
func (it *Iterator) Advance(target docs.ID) (docs.ID, error) {
	if it.doc >= target {
		return it.doc, nil
	}

	if it.skip == nil && it.df > it.skip0 {
		dup, err := it.in.Dup()
		if err != nil {
			return docs.Invalid, err
		}
		if err := dup.Seek(it.dataEnd); err != nil {
			return docs.Invalid, err
		}

		r := skip.NewReader(it.skip0, it.skipN)
		if err := r.Prepare(dup, it.readSkip); err != nil {
			return docs.Invalid, err
		}
		it.skip = r
	}

	if it.skip != nil {
		it.target = target
		it.safe = safePoint{}

		s, err := it.skip.Seek(target)
		if err != nil {
			return docs.Invalid, err
		}
		if s > it.consumed && it.safe.ok {
			if err := it.in.Seek(it.dataStart + it.safe.ptr); err != nil {
				return docs.Invalid, err
			}
			it.doc = it.safe.doc
			it.consumed = s
		}
	}

	for it.doc < target {
		if _, err := it.Next(); err != nil {
			return docs.Invalid, err
		}
	}
	return it.doc, nil
}

// readSkip decodes one skip payload. Payloads whose upcoming doc is
// still below the stashed target cover only entries the current seek
// may jump over, so the latest of them is the resume point.
func (it *Iterator) readSkip(level int, l *skip.Level) (docs.ID, error) {
	if l.Eof() {
		return docs.EOF, nil
	}

	next, err := binary.ReadUvarint(l)
	if err != nil {
		return docs.Invalid, kleverr.Newf("skip payload: %w", err)
	}
	last, err := binary.ReadUvarint(l)
	if err != nil {
		return docs.Invalid, kleverr.Newf("skip payload: %w", err)
	}
	ptr, err := binary.ReadUvarint(l)
	if err != nil {
		return docs.Invalid, kleverr.Newf("skip payload: %w", err)
	}

	if docs.ID(next) < it.target {
		it.safe = safePoint{doc: docs.ID(last), ptr: int64(ptr), ok: true}
	}
	return docs.ID(next), nil
}

package segment

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/dict"
	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/norms"
	"github.com/tern-dev/terndb/postings"
	"github.com/tern-dev/terndb/store"
	"github.com/tern-dev/terndb/stored"
)

// Reader serves lookups over one committed segment. It is safe for
// concurrent use: postings iterators run over duplicated cursors and
// the deletion mask swaps as a whole under its own lock.
type Reader struct {
	seg Segment

	post  *store.FileInput
	terms *dict.Reader
	table *norms.Reader
	raw   *stored.Reader
	rawIn *store.FileInput

	mu   sync.RWMutex
	mask *roaring.Bitmap
}

// Open maps the segment files and cross-checks the doc count between
// the dictionary and the doc table.
func Open(seg Segment) (*Reader, error) {
	terms, err := dict.Open(seg.Dict)
	if err != nil {
		return nil, err
	}

	table, err := norms.Open(seg.Docs)
	if err != nil {
		return nil, err
	}
	if table.Count() != terms.Docs() {
		return nil, kleverr.Newf("%w: doc counts %d and %d", ErrCorrupted, table.Count(), terms.Docs())
	}

	post, err := store.OpenFile(seg.Post)
	if err != nil {
		return nil, err
	}

	rawIn, err := store.OpenFile(seg.Raw)
	if err != nil {
		post.Close()
		return nil, err
	}

	mask, err := loadMask(seg.Mask)
	if err != nil {
		post.Close()
		rawIn.Close()
		return nil, err
	}

	return &Reader{
		seg:   seg,
		post:  post,
		terms: terms,
		table: table,
		raw:   stored.NewReader(rawIn),
		rawIn: rawIn,
		mask:  mask,
	}, nil
}

func (r *Reader) Segment() Segment {
	return r.seg
}

func (r *Reader) Base() docs.ID {
	return r.seg.Base
}

// Docs returns the number of local entries, dropped ones included.
// Local ids run 1 through Docs and keep their positions for the
// segment's whole life.
func (r *Reader) Docs() int {
	return r.table.Count()
}

// Live returns the number of docs that survive both drops and the
// current mask.
func (r *Reader) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Live() - int(r.mask.GetCardinality())
}

// Deleted returns the number of masked docs, deletions the next
// rewrite will fold in.
func (r *Reader) Deleted() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.mask.GetCardinality())
}

// NormSum returns the summed token counts of non-dropped docs. Masked
// docs still count until a rewrite drops them.
func (r *Reader) NormSum() uint64 {
	return r.table.NormSum()
}

func (r *Reader) Terms() int {
	return r.terms.Count()
}

func (r *Reader) SkipParams() (int, int) {
	return r.terms.SkipParams()
}

// Postings returns an iterator over term's list, or dict.ErrNotFound
// when the segment has no such term. The iterator moves an independent
// cursor and stays usable until the reader closes.
func (r *Reader) Postings(term []byte) (*postings.Iterator, dict.TermInfo, error) {
	info, err := r.terms.Lookup(term)
	if err != nil {
		return nil, dict.TermInfo{}, err
	}

	in, err := r.post.Dup()
	if err != nil {
		return nil, dict.TermInfo{}, err
	}

	skip0, skipN := r.terms.SkipParams()
	it, err := postings.NewIterator(in, info.Off, info.DF, skip0, skipN)
	if err != nil {
		return nil, dict.TermInfo{}, err
	}
	return it, info, nil
}

// Norm returns the token count of a non-dropped local doc. Masked docs
// still resolve, the caller filters those through Masked.
func (r *Reader) Norm(local docs.ID) (uint32, error) {
	entry, err := r.table.Get(local)
	if err != nil {
		return 0, err
	}
	if entry.Off == norms.Dropped {
		return 0, kleverr.Newf("%w: doc %d", docs.ErrNotFound, local)
	}
	return entry.Norm, nil
}

func (r *Reader) Masked(local docs.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mask.Contains(uint32(local))
}

// Doc returns the stored text of a live local doc. Dropped and masked
// docs return docs.ErrNotFound.
func (r *Reader) Doc(local docs.ID) (string, error) {
	entry, err := r.table.Get(local)
	if err != nil {
		return "", err
	}
	if entry.Off == norms.Dropped || r.Masked(local) {
		return "", kleverr.Newf("%w: doc %d", docs.ErrNotFound, local)
	}
	return r.raw.Read(entry.Off)
}

// Walk visits the live docs in local order.
func (r *Reader) Walk(fn func(local docs.ID, norm uint32, text string) error) error {
	for local := docs.ID(1); local <= docs.ID(r.table.Count()); local++ {
		entry, err := r.table.Get(local)
		if err != nil {
			return err
		}
		if entry.Off == norms.Dropped || r.Masked(local) {
			continue
		}

		text, err := r.raw.Read(entry.Off)
		if err != nil {
			return err
		}
		if err := fn(local, entry.Norm, text); err != nil {
			return err
		}
	}
	return nil
}

// WalkTerms visits the dictionary in ascending term order.
func (r *Reader) WalkTerms(fn func(term []byte, info dict.TermInfo) error) error {
	return r.terms.Walk(fn)
}

// Mask returns a copy of the current deletion mask.
func (r *Reader) Mask() *roaring.Bitmap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mask.Clone()
}

// AddMask marks local docs deleted and persists the grown mask before
// exposing it. Docs already masked or dropped do not count towards the
// returned number of new deletions.
func (r *Reader) AddMask(locals []docs.ID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.mask.Clone()
	var added int
	for _, local := range locals {
		entry, err := r.table.Get(local)
		if err != nil {
			return 0, err
		}
		if entry.Off == norms.Dropped {
			continue
		}
		if next.CheckedAdd(uint32(local)) {
			added++
		}
	}
	if added == 0 {
		return 0, nil
	}

	if err := saveMask(r.seg.Mask, next); err != nil {
		return 0, err
	}
	r.mask = next
	return added, nil
}

func (r *Reader) Close() error {
	if err := r.post.Close(); err != nil {
		return err
	}
	return r.rawIn.Close()
}

// Package dict is the per-segment term dictionary: every term of the
// segment with its document frequency and the offset of its postings
// list. The file carries a checksum footer and doubles as the segment
// commit marker, so it is always written and synced last.
package dict

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"

	"github.com/klev-dev/kleverr"
	art "github.com/plar/go-adaptive-radix-tree"

	"github.com/tern-dev/terndb/store"
)

var ErrCorrupted = errors.New("dict corrupted")
var ErrNotFound = errors.New("term not found")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// TermInfo locates one term's postings list.
type TermInfo struct {
	DF  int
	Off int64
}

// Writer accumulates dictionary entries and serializes them behind a
// small header, followed by a crc32c footer over everything before it.
type Writer struct {
	skip0    int
	skipN    int
	docCount int

	buf   *store.Buffer
	count int
	last  []byte
}

func NewWriter(skipInterval, skipMultiplier, docCount int) *Writer {
	return &Writer{
		skip0:    skipInterval,
		skipN:    skipMultiplier,
		docCount: docCount,
		buf:      store.NewBuffer(),
	}
}

// Add records a term. Terms must arrive in strictly ascending byte
// order, the order their postings lists were flushed in.
func (w *Writer) Add(term []byte, df int, postOff int64) error {
	if len(term) == 0 {
		return kleverr.Newf("dict term empty")
	}
	if w.count > 0 && bytes.Compare(term, w.last) <= 0 {
		return kleverr.Newf("dict term out of order: %q after %q", term, w.last)
	}
	if df < 1 {
		return kleverr.Newf("dict df %d for term %q", df, term)
	}

	if err := store.WriteUvarint(w.buf, uint64(len(term))); err != nil {
		return err
	}
	if _, err := w.buf.Write(term); err != nil {
		return err
	}
	if err := store.WriteUvarint(w.buf, uint64(df)); err != nil {
		return err
	}
	if err := store.WriteUvarint(w.buf, uint64(postOff)); err != nil {
		return err
	}

	w.last = append(w.last[:0], term...)
	w.count++
	return nil
}

// Flush writes the header, the entries and the checksum footer.
func (w *Writer) Flush(out store.Output) error {
	head := store.NewBuffer()
	if err := store.WriteUvarint(head, uint64(w.skip0)); err != nil {
		return err
	}
	if err := store.WriteUvarint(head, uint64(w.skipN)); err != nil {
		return err
	}
	if err := store.WriteUvarint(head, uint64(w.docCount)); err != nil {
		return err
	}
	if err := store.WriteUvarint(head, uint64(w.count)); err != nil {
		return err
	}

	crc := crc32.Checksum(head.Bytes(), crc32cTable)
	crc = crc32.Update(crc, crc32cTable, w.buf.Bytes())

	if _, err := head.WriteTo(out); err != nil {
		return err
	}
	if _, err := w.buf.WriteTo(out); err != nil {
		return err
	}

	var footer [4]byte
	binary.BigEndian.PutUint32(footer[:], crc)
	if _, err := out.Write(footer[:]); err != nil {
		return err
	}
	return nil
}

// Reader is a loaded dictionary. Lookups go through a radix tree, so
// sharing a reader between goroutines is safe once it is built.
type Reader struct {
	skip0    int
	skipN    int
	docCount int

	terms art.Tree
	count int
}

// Open reads and verifies a dictionary file.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kleverr.Newf("dict open: %w", err)
	}
	return Parse(data)
}

// Parse verifies the checksum and loads the entries.
func Parse(data []byte) (*Reader, error) {
	if len(data) < 4 {
		return nil, kleverr.Newf("%w: %d bytes", ErrCorrupted, len(data))
	}

	body, footer := data[:len(data)-4], data[len(data)-4:]
	if crc := crc32.Checksum(body, crc32cTable); crc != binary.BigEndian.Uint32(footer) {
		return nil, kleverr.Newf("%w: checksum mismatch", ErrCorrupted)
	}

	in := store.NewBytes(body)
	skip0, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, kleverr.Newf("dict header: %w", err)
	}
	skipN, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, kleverr.Newf("dict header: %w", err)
	}
	docCount, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, kleverr.Newf("dict header: %w", err)
	}
	termCount, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, kleverr.Newf("dict header: %w", err)
	}

	if skip0 < 1 || skipN < 2 {
		return nil, kleverr.Newf("%w: skip params %d/%d", ErrCorrupted, skip0, skipN)
	}

	terms := art.New()
	var last []byte
	for i := uint64(0); i < termCount; i++ {
		length, err := binary.ReadUvarint(in)
		if err != nil {
			return nil, kleverr.Newf("dict term: %w", err)
		}
		if length == 0 || int64(length) > in.Len()-in.FilePointer() {
			return nil, kleverr.Newf("%w: term length %d", ErrCorrupted, length)
		}

		term := make([]byte, length)
		if _, err := io.ReadFull(in, term); err != nil {
			return nil, kleverr.Newf("dict term: %w", err)
		}
		if bytes.Compare(term, last) <= 0 && i > 0 {
			return nil, kleverr.Newf("%w: term %q out of order", ErrCorrupted, term)
		}

		df, err := binary.ReadUvarint(in)
		if err != nil {
			return nil, kleverr.Newf("dict df: %w", err)
		}
		off, err := binary.ReadUvarint(in)
		if err != nil {
			return nil, kleverr.Newf("dict offset: %w", err)
		}
		if df < 1 || df > docCount {
			return nil, kleverr.Newf("%w: df %d of %d docs", ErrCorrupted, df, docCount)
		}

		terms.Insert(art.Key(term), TermInfo{DF: int(df), Off: int64(off)})
		last = term
	}

	if in.FilePointer() != in.Len() {
		return nil, kleverr.Newf("%w: %d trailing bytes", ErrCorrupted, in.Len()-in.FilePointer())
	}

	return &Reader{
		skip0:    int(skip0),
		skipN:    int(skipN),
		docCount: int(docCount),

		terms: terms,
		count: int(termCount),
	}, nil
}

// Lookup returns the postings location of term.
func (r *Reader) Lookup(term []byte) (TermInfo, error) {
	if v, found := r.terms.Search(art.Key(term)); found {
		return v.(TermInfo), nil
	}
	return TermInfo{}, ErrNotFound
}

// Count returns the number of terms.
func (r *Reader) Count() int {
	return r.count
}

// Docs returns the segment document count recorded at write time.
func (r *Reader) Docs() int {
	return r.docCount
}

// SkipParams returns the stride parameters the postings lists were
// built with.
func (r *Reader) SkipParams() (int, int) {
	return r.skip0, r.skipN
}

// Walk visits every term in ascending byte order.
func (r *Reader) Walk(fn func(term []byte, info TermInfo) error) error {
	var werr error
	r.terms.ForEach(func(node art.Node) bool {
		if err := fn(node.Key(), node.Value().(TermInfo)); err != nil {
			werr = err
			return false
		}
		return true
	})
	return werr
}

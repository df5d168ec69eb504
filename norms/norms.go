// Package norms is the per-segment document table: one fixed-width
// entry per local doc with its token count and the offset of its
// stored blob. The table is the bridge between postings (local ids)
// and stored text, and feeds document lengths to scoring.
package norms

import (
	"encoding/binary"
	"errors"
	"os"

	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/store"
)

var ErrCorrupted = errors.New("norms corrupted")

// EntrySize is the byte width of one entry on disk, so a table's doc
// count is its file size divided by it.
const EntrySize = 12

// Dropped marks entries whose document was removed by a rewrite. The
// entry itself stays so surviving local ids keep their positions.
const Dropped = int64(-1)

// Entry is one document row.
type Entry struct {
	Norm uint32
	Off  int64
}

// Writer appends entries in local doc order.
type Writer struct {
	out   store.Output
	count int
}

func NewWriter(out store.Output) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Add(norm uint32, storedOff int64) error {
	var buf [EntrySize]byte
	binary.BigEndian.PutUint32(buf[0:], norm)
	binary.BigEndian.PutUint64(buf[4:], uint64(storedOff))

	if _, err := w.out.Write(buf[:]); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *Writer) Count() int {
	return w.count
}

// Reader holds the loaded table. Entries are small and fixed width, so
// the whole file is decoded up front and lookups are slice reads.
type Reader struct {
	entries []Entry
	live    int
	normSum uint64
}

func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kleverr.Newf("norms open: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Reader, error) {
	if len(data)%EntrySize != 0 {
		return nil, kleverr.Newf("%w: %d bytes", ErrCorrupted, len(data))
	}

	entries := make([]Entry, len(data)/EntrySize)
	var live int
	var sum uint64
	for i := range entries {
		b := data[i*EntrySize:]
		e := Entry{
			Norm: binary.BigEndian.Uint32(b),
			Off:  int64(binary.BigEndian.Uint64(b[4:])),
		}
		if e.Off < 0 && e.Off != Dropped {
			return nil, kleverr.Newf("%w: offset %d at %d", ErrCorrupted, e.Off, i)
		}

		entries[i] = e
		if e.Off != Dropped {
			live++
			sum += uint64(e.Norm)
		}
	}

	return &Reader{entries: entries, live: live, normSum: sum}, nil
}

// Count returns the number of entries, dropped included. Local ids run
// 1..Count.
func (r *Reader) Count() int {
	return len(r.entries)
}

// Live returns how many entries still have a document behind them.
func (r *Reader) Live() int {
	return r.live
}

// NormSum returns the total token count over live entries.
func (r *Reader) NormSum() uint64 {
	return r.normSum
}

// Get returns the entry for a local doc.
func (r *Reader) Get(local docs.ID) (Entry, error) {
	if local < 1 || int64(local) > int64(len(r.entries)) {
		return Entry{}, kleverr.Newf("%w: local %d of %d", docs.ErrInvalidDoc, local, len(r.entries))
	}
	return r.entries[local-1], nil
}

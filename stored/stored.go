// Package stored keeps the original document text as append-only
// records, each guarded by its own checksum. Postings and norms only
// carry derived data; this file is what Get and snippets read back.
package stored

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/store"
)

var ErrCorrupted = errors.New("stored corrupted")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

const headerSize = 4 + // crc
	4 // length

// Writer appends records, reusing one scratch buffer.
type Writer struct {
	out  store.Output
	buff []byte
}

func NewWriter(out store.Output) *Writer {
	return &Writer{out: out}
}

// Append writes one record and returns its offset.
func (w *Writer) Append(text string) (int64, error) {
	full := headerSize + len(text)
	if w.buff == nil || cap(w.buff) < full {
		w.buff = make([]byte, full)
	} else {
		w.buff = w.buff[:full]
	}

	copy(w.buff[headerSize:], text)
	crc := crc32.Checksum(w.buff[headerSize:], crc32cTable)
	binary.BigEndian.PutUint32(w.buff[0:], crc)
	binary.BigEndian.PutUint32(w.buff[4:], uint32(len(text)))

	pos := w.out.FilePointer()
	if _, err := w.out.Write(w.buff); err != nil {
		return 0, err
	}
	return pos, nil
}

// Reader reads records back by offset. Every read runs over its own
// duplicated cursor, so a reader is safe for concurrent use.
type Reader struct {
	in store.Input
}

func NewReader(in store.Input) *Reader {
	return &Reader{in: in}
}

// Read returns the text at off after validating its checksum.
func (r *Reader) Read(off int64) (string, error) {
	if off < 0 || off+headerSize > r.in.Len() {
		return "", kleverr.Newf("%w: offset %d", ErrCorrupted, off)
	}

	in, err := r.in.Dup()
	if err != nil {
		return "", err
	}
	if err := in.Seek(off); err != nil {
		return "", err
	}

	var head [headerSize]byte
	if _, err := io.ReadFull(in, head[:]); err != nil {
		return "", kleverr.Newf("stored header: %w", err)
	}
	crc := binary.BigEndian.Uint32(head[0:])
	length := binary.BigEndian.Uint32(head[4:])
	if int64(length) > in.Len()-in.FilePointer() {
		return "", kleverr.Newf("%w: length %d at %d", ErrCorrupted, length, off)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(in, data); err != nil {
		return "", kleverr.Newf("stored data: %w", err)
	}
	if actual := crc32.Checksum(data, crc32cTable); actual != crc {
		return "", kleverr.Newf("%w: checksum at %d", ErrCorrupted, off)
	}
	return string(data), nil
}

// Walk visits every record in file order.
func (r *Reader) Walk(fn func(off int64, text string) error) error {
	for off := int64(0); off < r.in.Len(); {
		text, err := r.Read(off)
		if err != nil {
			return err
		}
		if err := fn(off, text); err != nil {
			return err
		}
		off += headerSize + int64(len(text))
	}
	return nil
}

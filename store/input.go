package store

import (
	"io"

	"golang.org/x/exp/mmap"

	"github.com/klev-dev/kleverr"
)

// Input is a random access read cursor over serialized index data.
// Dup returns an independent cursor over the same underlying bytes, so
// different readers can move through the data without sharing a
// position. The underlying bytes are owned by the original input and
// must outlive all duplicates.
type Input interface {
	io.Reader
	io.ByteReader
	FilePointer() int64
	Seek(pos int64) error
	Len() int64
	Dup() (Input, error)
}

// FileInput reads a file through a shared memory mapping.
type FileInput struct {
	Path  string
	ra    *mmap.ReaderAt
	pos   int64
	owner bool
}

func OpenFile(path string) (*FileInput, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, kleverr.Newf("input open: %w", err)
	}
	return &FileInput{Path: path, ra: ra, owner: true}, nil
}

func (in *FileInput) Read(p []byte) (int, error) {
	if in.pos >= int64(in.ra.Len()) {
		return 0, io.EOF
	}
	n, err := in.ra.ReadAt(p, in.pos)
	in.pos += int64(n)
	return n, err
}

func (in *FileInput) ReadByte() (byte, error) {
	if in.pos >= int64(in.ra.Len()) {
		return 0, io.EOF
	}
	c := in.ra.At(int(in.pos))
	in.pos++
	return c, nil
}

func (in *FileInput) FilePointer() int64 {
	return in.pos
}

func (in *FileInput) Seek(pos int64) error {
	if pos < 0 || pos > int64(in.ra.Len()) {
		return kleverr.Newf("input seek: %d out of range", pos)
	}
	in.pos = pos
	return nil
}

func (in *FileInput) Len() int64 {
	return int64(in.ra.Len())
}

// Dup shares the mapping and keeps the current position, but the
// returned cursor moves independently from this one.
func (in *FileInput) Dup() (Input, error) {
	return &FileInput{Path: in.Path, ra: in.ra, pos: in.pos}, nil
}

// Close unmaps the file. Closing a duplicate is a no-op, the mapping
// belongs to the input that opened it.
func (in *FileInput) Close() error {
	if !in.owner {
		return nil
	}
	if err := in.ra.Close(); err != nil {
		return kleverr.Newf("input close: %w", err)
	}
	return nil
}

// Bytes is an Input over a byte slice.
type Bytes struct {
	b   []byte
	pos int64
}

func NewBytes(b []byte) *Bytes {
	return &Bytes{b: b}
}

func (in *Bytes) Read(p []byte) (int, error) {
	if in.pos >= int64(len(in.b)) {
		return 0, io.EOF
	}
	n := copy(p, in.b[in.pos:])
	in.pos += int64(n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (in *Bytes) ReadByte() (byte, error) {
	if in.pos >= int64(len(in.b)) {
		return 0, io.EOF
	}
	c := in.b[in.pos]
	in.pos++
	return c, nil
}

func (in *Bytes) FilePointer() int64 {
	return in.pos
}

func (in *Bytes) Seek(pos int64) error {
	if pos < 0 || pos > int64(len(in.b)) {
		return kleverr.Newf("input seek: %d out of range", pos)
	}
	in.pos = pos
	return nil
}

func (in *Bytes) Len() int64 {
	return int64(len(in.b))
}

func (in *Bytes) Dup() (Input, error) {
	return &Bytes{b: in.b, pos: in.pos}, nil
}

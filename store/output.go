package store

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/klev-dev/kleverr"
)

// Output is a destination for serialized index data. FilePointer
// reports the number of bytes written so far, which the codecs record
// as absolute offsets into the output.
type Output interface {
	io.Writer
	io.ByteWriter
	FilePointer() int64
}

// WriteUvarint writes v in LEB128 form, the variable-length integer
// encoding used throughout the on-disk formats.
func WriteUvarint(o Output, v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := o.Write(buf[:n])
	return err
}

// UvarintLen returns the encoded size of v.
func UvarintLen(v uint64) int64 {
	var buf [binary.MaxVarintLen64]byte
	return int64(binary.PutUvarint(buf[:], v))
}

// Buffer is an in-memory Output. Reset truncates it while keeping the
// allocation, so one buffer serves many postings lists in sequence.
type Buffer struct {
	b []byte
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.b = append(b.b, p...)
	return len(p), nil
}

func (b *Buffer) WriteByte(c byte) error {
	b.b = append(b.b, c)
	return nil
}

func (b *Buffer) FilePointer() int64 {
	return int64(len(b.b))
}

func (b *Buffer) Len() int64 {
	return int64(len(b.b))
}

// Bytes returns the written bytes. The slice is only valid until the
// next Write or Reset.
func (b *Buffer) Bytes() []byte {
	return b.b
}

func (b *Buffer) Reset() {
	b.b = b.b[:0]
}

func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.b)
	return int64(n), err
}

// FileOutput is a buffered file Output.
type FileOutput struct {
	Path string
	f    *os.File
	w    *bufio.Writer
	pos  int64
}

func CreateFile(path string) (*FileOutput, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, kleverr.Newf("output open: %w", err)
	}
	return &FileOutput{Path: path, f: f, w: bufio.NewWriter(f)}, nil
}

func (o *FileOutput) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	o.pos += int64(n)
	if err != nil {
		return n, kleverr.Newf("output write: %w", err)
	}
	return n, nil
}

func (o *FileOutput) WriteByte(c byte) error {
	if err := o.w.WriteByte(c); err != nil {
		return kleverr.Newf("output write: %w", err)
	}
	o.pos++
	return nil
}

func (o *FileOutput) FilePointer() int64 {
	return o.pos
}

func (o *FileOutput) Sync() error {
	if err := o.w.Flush(); err != nil {
		return kleverr.Newf("output flush: %w", err)
	}
	if err := o.f.Sync(); err != nil {
		return kleverr.Newf("output sync: %w", err)
	}
	return nil
}

func (o *FileOutput) Close() error {
	if err := o.w.Flush(); err != nil {
		return kleverr.Newf("output flush: %w", err)
	}
	if err := o.f.Close(); err != nil {
		return kleverr.Newf("output close: %w", err)
	}
	return nil
}

func (o *FileOutput) SyncAndClose() error {
	if err := o.Sync(); err != nil {
		return err
	}
	return o.Close()
}

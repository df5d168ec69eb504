package skip

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/store"
)

var ErrCorrupted = errors.New("skip list corrupted")

// ReadFunc decodes one skip entry payload from a level and returns the
// doc it names, or docs.EOF once the level is exhausted. Levels are
// numbered from the finest (0) upward, matching the writer.
type ReadFunc func(level int, l *Level) (docs.ID, error)

const noChild = int64(-1)

// maxReadLevels bounds the level count accepted from an input. Deeper
// structures would need more entries than the id space can hold, so a
// bigger count is corruption.
const maxReadLevels = 32

// Level is one loaded stride of the structure: a byte window over the
// shared input with its own cursor, plus the descent state.
type Level struct {
	in    store.Input
	begin int64
	end   int64

	step    int
	skipped int
	child   int64
	doc     docs.ID
}

// Read is bounded by the level window, so payload decoders see io.EOF
// instead of running into the next level's bytes.
func (l *Level) Read(p []byte) (int, error) {
	rem := l.end - l.in.FilePointer()
	if rem <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > rem {
		p = p[:rem]
	}
	return l.in.Read(p)
}

func (l *Level) ReadByte() (byte, error) {
	if l.in.FilePointer() >= l.end {
		return 0, io.EOF
	}
	return l.in.ReadByte()
}

// Eof reports whether the level has no more entries to read.
func (l *Level) Eof() bool {
	return l.in.FilePointer() >= l.end
}

// Reader navigates a loaded skip structure. A reader is not safe for
// concurrent use; concurrent seeks over the same data each prepare
// their own reader over a Dup of the input.
type Reader struct {
	skip0  int
	skipN  int
	levels []Level
	read   ReadFunc
}

func NewReader(skipInterval, skipMultiplier int) *Reader {
	return &Reader{skip0: skipInterval, skipN: skipMultiplier}
}

// Prepare loads the level windows from in, whose cursor must be at the
// start of a serialized structure. Every level except the finest gets
// its own duplicated cursor; the finest keeps in. A level count of
// zero leaves the reader empty, with every Seek returning 0.
func (r *Reader) Prepare(in store.Input, read ReadFunc) error {
	count, err := binary.ReadUvarint(in)
	if err != nil {
		return kleverr.Newf("skip levels: %w", err)
	}

	r.read = read
	r.levels = r.levels[:0]
	if count == 0 {
		return nil
	}
	if count > maxReadLevels {
		return kleverr.Newf("%w: %d levels", ErrCorrupted, count)
	}

	step := r.skip0
	for i := uint64(1); i < count; i++ {
		step *= r.skipN
	}

	for i := uint64(0); i < count; i++ {
		length, err := binary.ReadUvarint(in)
		if err != nil {
			return kleverr.Newf("skip level length: %w", err)
		}
		if length == 0 {
			return kleverr.Newf("%w: zero length level", ErrCorrupted)
		}

		begin := in.FilePointer()
		end := begin + int64(length)
		if end > in.Len() {
			return kleverr.Newf("%w: level overruns input", ErrCorrupted)
		}

		if i+1 < count {
			dup, err := in.Dup()
			if err != nil {
				return kleverr.Newf("skip level dup: %w", err)
			}
			r.levels = append(r.levels, Level{in: dup, begin: begin, end: end, step: step})
			if err := in.Seek(end); err != nil {
				return err
			}
		} else {
			// the finest level has nothing below it to point into
			r.levels = append(r.levels, Level{in: in, begin: begin, end: end, step: step, child: noChild})
		}

		step /= r.skipN
	}

	return nil
}

// NumLevels returns how many levels were loaded.
func (r *Reader) NumLevels() int {
	return len(r.levels)
}

// Seek returns how many postings entries can be skipped to land just
// short of target, or 0 when the structure cannot help. The descent
// runs coarse to fine; level cursors only ever move forward, so
// non-decreasing targets across calls never re-read data.
func (r *Reader) Seek(target docs.ID) (int, error) {
	if len(r.levels) == 0 {
		return 0, nil
	}

	// start at the coarsest level not already past the target
	start := len(r.levels) - 1
	for i := range r.levels {
		if r.levels[i].doc <= target {
			start = i
			break
		}
	}

	var child int64
	var skipped int
	for i := start; i < len(r.levels); i++ {
		level := &r.levels[i]
		if level.doc >= target {
			continue
		}

		if err := r.seekLevel(level, child, skipped); err != nil {
			return 0, err
		}

		child = level.child
		if err := r.readSkip(i, level); err != nil {
			return 0, err
		}
		for level.doc < target {
			child = level.child
			if err := r.readSkip(i, level); err != nil {
				return 0, err
			}
		}

		skipped = level.skipped - level.step
	}

	if s := r.levels[len(r.levels)-1].skipped; s != 0 {
		return s - r.skip0, nil
	}
	return 0, nil
}

// seekLevel repositions a level to the back-pointer carried from the
// level above, forward only. A stale or zero pointer from a previous
// descent never moves the cursor backward. On an actual jump the
// cursor lands between a payload and its back-pointer, so the level's
// own child is re-read here, leaving the cursor at the next payload.
func (r *Reader) seekLevel(level *Level, child int64, skipped int) error {
	pos := level.begin + child
	if pos <= level.in.FilePointer() {
		return nil
	}

	if err := level.in.Seek(pos); err != nil {
		return err
	}
	level.skipped = skipped
	if level.child != noChild {
		c, err := binary.ReadUvarint(level)
		if err != nil {
			return kleverr.Newf("skip child: %w", err)
		}
		level.child = int64(c)
	}
	return nil
}

// readSkip reads one entry: the callback decodes the payload, then the
// back-pointer is consumed for levels that have one. The skipped count
// advances by the level step regardless of the outcome, including on
// exhaustion.
func (r *Reader) readSkip(i int, level *Level) error {
	doc, err := r.read(len(r.levels)-1-i, level)
	if err != nil {
		return err
	}
	level.doc = doc

	if doc != docs.EOF && level.child != noChild {
		child, err := binary.ReadUvarint(level)
		if err != nil {
			return kleverr.Newf("skip child: %w", err)
		}
		level.child = int64(child)
	}

	level.skipped += level.step
	return nil
}

// Reset rewinds every level, after which the reader behaves exactly
// like a freshly prepared one over the same structure.
func (r *Reader) Reset() error {
	for i := range r.levels {
		level := &r.levels[i]
		if err := level.in.Seek(level.begin); err != nil {
			return err
		}
		if level.child != noChild {
			level.child = 0
		}
		level.skipped = 0
		level.doc = docs.Invalid
	}
	return nil
}

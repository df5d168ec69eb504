package skip

import (
	"github.com/tern-dev/terndb/store"
)

// WriteFunc serializes one skip entry payload for a level into its
// stream. Level 0 is the finest. The payload content is owned by the
// caller; the writer only chains levels together.
type WriteFunc func(level int, out *store.Buffer) error

// maxLevels returns how many levels a list of count entries can fill:
// 0 when count fits under a single finest stride, otherwise one finest
// level plus one per full skipN factor above it.
func maxLevels(skip0, skipN, count int) int {
	if count <= skip0 {
		return 0
	}
	levels := 1
	for count /= skip0; count >= skipN; count /= skipN {
		levels++
	}
	return levels
}

// Writer builds the skip structure for one postings list at a time.
// Levels accumulate in memory and are serialized by Flush. A writer is
// single-owner and not safe for concurrent use.
//
// skipInterval is the finest-level stride, skipMultiplier the stride
// factor between levels; both must match the reader side and the
// multiplier must be greater than 1.
type Writer struct {
	skip0  int
	skipN  int
	levels []*store.Buffer
	write  WriteFunc
}

func NewWriter(skipInterval, skipMultiplier int) *Writer {
	return &Writer{skip0: skipInterval, skipN: skipMultiplier}
}

// Prepare sizes the writer for a postings list of count entries,
// keeping at most max levels, and stores the payload callback. Level
// buffers are reused between lists.
func (w *Writer) Prepare(max, count int, write WriteFunc) {
	if max < 1 {
		max = 1
	}
	if computed := maxLevels(w.skip0, w.skipN, count); computed < max {
		max = computed
	}

	if cap(w.levels) < max {
		next := make([]*store.Buffer, max)
		copy(next, w.levels[:cap(w.levels)])
		w.levels = next
	}
	w.levels = w.levels[:max]
	for i, l := range w.levels {
		if l == nil {
			w.levels[i] = store.NewBuffer()
		} else {
			l.Reset()
		}
	}

	w.write = write
}

// Skip records a skip point after count entries have been appended. It
// is a no-op unless count is a multiple of the finest stride. The
// callback runs for level 0 and for every coarser level whose stride
// also divides count; each coarser entry is followed by a back-pointer
// to the position in the finer level it was derived from.
func (w *Writer) Skip(count int) error {
	if len(w.levels) == 0 || count%w.skip0 != 0 {
		return nil
	}

	if err := w.write(0, w.levels[0]); err != nil {
		return err
	}
	child := w.levels[0].FilePointer()
	count /= w.skip0

	for level := 1; level < len(w.levels) && count%w.skipN == 0; level++ {
		out := w.levels[level]
		if err := w.write(level, out); err != nil {
			return err
		}

		next := out.FilePointer()
		if err := store.WriteUvarint(out, uint64(child)); err != nil {
			return err
		}
		child = next

		count /= w.skipN
	}

	return nil
}

// Flush serializes the structure to out: the count of non-empty
// levels, then each of them, coarsest first, as a length-prefixed
// block. Levels whose stride never divided the entry count stay empty
// and are dropped.
func (w *Writer) Flush(out store.Output) error {
	top := len(w.levels)
	for top > 0 && w.levels[top-1].Len() == 0 {
		top--
	}

	if err := store.WriteUvarint(out, uint64(top)); err != nil {
		return err
	}

	for level := top - 1; level >= 0; level-- {
		l := w.levels[level]
		if err := store.WriteUvarint(out, uint64(l.Len())); err != nil {
			return err
		}
		if _, err := l.WriteTo(out); err != nil {
			return err
		}
	}

	return nil
}

// Reset truncates every level for the next postings list.
func (w *Writer) Reset() {
	for _, l := range w.levels {
		l.Reset()
	}
}

package terndb

import (
	"context"
	"time"

	"golang.org/x/exp/slices"

	"github.com/tern-dev/terndb/segment"
)

// CompactStats reports what a compaction did.
type CompactStats struct {
	// Segments is how many segments had deletes folded in.
	Segments int
	// Removed is how many of those held no live docs and were deleted.
	Removed int
	// Docs is the number of doc slots dropped.
	Docs int
	// Reclaimed is the disk space freed.
	Reclaimed int64
}

func (ix *index) Compact() (CompactStats, error) {
	if ix.opts.Readonly {
		return CompactStats{}, ErrReadonly
	}

	ix.compactMu.Lock()
	defer ix.compactMu.Unlock()

	ix.readersMu.RLock()
	readers := slices.Clone(ix.readers)
	ix.readersMu.RUnlock()

	var stats CompactStats
	for i, rdr := range readers {
		if rdr.Deleted() == 0 && rdr.Live() > 0 {
			continue
		}

		// a fully dead newest segment still anchors the next doc id
		// across reopens, leave it until more segments exist
		if rdr.Live() == 0 && i == len(readers)-1 {
			continue
		}

		rs, reclaimed, err := ix.compactSegment(rdr)
		if err != nil {
			return stats, err
		}

		stats.Segments++
		stats.Docs += rs.Dropped
		stats.Reclaimed += reclaimed
		if rs.Removed {
			stats.Removed++
		}
	}
	return stats, nil
}

// compactSegment rewrites one segment and swaps its reader. deleteMu
// keeps new deletes from landing on the old reader between the rewrite
// and the swap, where they would be lost.
func (ix *index) compactSegment(rdr *segment.Reader) (segment.RewriteStats, int64, error) {
	ix.deleteMu.Lock()
	defer ix.deleteMu.Unlock()

	seg := rdr.Segment()
	before, err := seg.Stat()
	if err != nil {
		return segment.RewriteStats{}, 0, err
	}

	rs, err := segment.Rewrite(seg, ix.opts.MaxSkipLevels)
	if err != nil {
		return segment.RewriteStats{}, 0, err
	}

	if rs.Removed {
		ix.readersMu.Lock()
		ix.readers = slices.DeleteFunc(ix.readers, func(r *segment.Reader) bool {
			return r == rdr
		})
		ix.readersMu.Unlock()
	} else {
		swapped, err := segment.Open(seg)
		if err != nil {
			return segment.RewriteStats{}, 0, err
		}

		ix.readersMu.Lock()
		if i := slices.Index(ix.readers, rdr); i >= 0 {
			ix.readers[i] = swapped
		}
		ix.readersMu.Unlock()
	}

	if err := rdr.Close(); err != nil {
		return segment.RewriteStats{}, 0, err
	}

	return rs, before.Size - rs.Size, nil
}

// CompactMultiBackoff is called between [CompactMulti] rounds to give
// applications opportunity to not overload the index with rewrites
type CompactMultiBackoff func(context.Context) error

// CompactMultiWithWait returns a backoff func that sleeps/waits
// for a certain duration. If context is canceled while executing
// it returns the associated error
func CompactMultiWithWait(d time.Duration) CompactMultiBackoff {
	return func(ctx context.Context) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CompactMulti compacts until a round finds no segment with deletes,
// so deletes arriving while it runs still get folded in
//
// If error is encountered, it will return the stats so far,
// together with the error
//
// [CompactMultiBackoff] is called on each iteration to give
// others a chance to work with the index, while it is compacted
func CompactMulti(ctx context.Context, ix Index, backoff CompactMultiBackoff) (CompactStats, error) {
	var total CompactStats

	for {
		stats, err := ix.Compact()

		total.Segments += stats.Segments
		total.Removed += stats.Removed
		total.Docs += stats.Docs
		total.Reclaimed += stats.Reclaimed

		switch {
		case err != nil:
			return total, err
		case stats.Segments == 0:
			return total, nil
		}

		if err := backoff(ctx); err != nil {
			return total, err
		}
	}
}

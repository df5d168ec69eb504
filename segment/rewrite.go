package segment

import (
	"github.com/tern-dev/terndb/dict"
	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/norms"
	"github.com/tern-dev/terndb/postings"
)

type RewriteStats struct {
	// Live is the number of docs readable after the rewrite.
	Live int
	// Dropped is the number of masked docs this rewrite folded in.
	Dropped int
	// Removed reports that no live docs were left and the segment was
	// deleted instead of rewritten.
	Removed bool
	// Size is the rewritten segment's size on disk, zero when removed.
	Size int64
}

// Rewrite folds the deletion mask into the segment: masked docs turn
// into dropped slots, their postings and stored text go away and the
// mask file disappears. Local ids of surviving docs do not move, so
// masks taken before the rewrite stay valid after it. A segment left
// with no live docs is removed entirely.
//
// The new file set is built aside and swapped in through Override, so
// a crash leaves either the old segment or a set Recover can finish.
func Rewrite(seg Segment, maxSkipLevels int) (RewriteStats, error) {
	r, err := Open(seg)
	if err != nil {
		return RewriteStats{}, err
	}
	defer r.Close()

	dropped := int(r.mask.GetCardinality())
	live := r.table.Live() - dropped

	if live == 0 {
		if err := seg.Remove(); err != nil {
			return RewriteStats{}, err
		}
		return RewriteStats{Dropped: dropped, Removed: true}, nil
	}

	news, err := seg.ForRewrite()
	if err != nil {
		return RewriteStats{}, err
	}

	skip0, skipN := r.terms.SkipParams()
	src := &rewriteSource{r: r, skip0: skip0, skipN: skipN, maxLevels: maxSkipLevels}
	if err := Write(news, src); err != nil {
		news.discard()
		return RewriteStats{}, err
	}

	if err := news.Override(seg); err != nil {
		return RewriteStats{}, err
	}

	stat, err := seg.Stat()
	if err != nil {
		return RewriteStats{}, err
	}
	return RewriteStats{Live: live, Dropped: dropped, Size: stat.Size}, nil
}

// rewriteSource reads a segment back as a Source, dropping masked
// docs but keeping every local slot in place.
type rewriteSource struct {
	r *Reader

	skip0     int
	skipN     int
	maxLevels int
}

func (s *rewriteSource) Params() (int, int, int) {
	return s.skip0, s.skipN, s.maxLevels
}

func (s *rewriteSource) Docs() int {
	return s.r.table.Count()
}

func (s *rewriteSource) Doc(local docs.ID) (uint32, string, bool, error) {
	entry, err := s.r.table.Get(local)
	if err != nil {
		return 0, "", false, err
	}
	if entry.Off == norms.Dropped || s.r.mask.Contains(uint32(local)) {
		return entry.Norm, "", false, nil
	}

	text, err := s.r.raw.Read(entry.Off)
	if err != nil {
		return 0, "", false, err
	}
	return entry.Norm, text, true, nil
}

func (s *rewriteSource) Walk(fn func(term []byte, list []Posting) error) error {
	skip0, skipN := s.r.terms.SkipParams()

	var list []Posting
	return s.r.terms.Walk(func(term []byte, info dict.TermInfo) error {
		in, err := s.r.post.Dup()
		if err != nil {
			return err
		}
		it, err := postings.NewIterator(in, info.Off, info.DF, skip0, skipN)
		if err != nil {
			return err
		}

		list = list[:0]
		for {
			doc, err := it.Next()
			if err != nil {
				return err
			}
			if doc == docs.EOF {
				break
			}
			if s.r.mask.Contains(uint32(doc)) {
				continue
			}
			list = append(list, Posting{Doc: doc, Freq: it.Freq()})
		}

		// terms left with no docs fall out of the dictionary
		if len(list) == 0 {
			return nil
		}
		return fn(term, list)
	})
}

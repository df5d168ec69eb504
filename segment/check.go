package segment

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/klev-dev/kleverr"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/tern-dev/terndb/dict"
	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/norms"
	"github.com/tern-dev/terndb/postings"
)

// Check verifies a committed segment end to end: stored record
// checksums, every postings list against its document frequency, the
// doc table against the summed term frequencies and the mask against
// the doc table.
func Check(seg Segment) error {
	r, err := Open(seg)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.check()
}

func (r *Reader) check() error {
	count := r.table.Count()

	if err := r.raw.Walk(func(off int64, text string) error {
		return nil
	}); err != nil {
		return err
	}

	sums := make([]uint64, count+1)
	skip0, skipN := r.terms.SkipParams()
	err := r.terms.Walk(func(term []byte, info dict.TermInfo) error {
		in, err := r.post.Dup()
		if err != nil {
			return err
		}
		it, err := postings.NewIterator(in, info.Off, info.DF, skip0, skipN)
		if err != nil {
			return err
		}

		for i := 0; i < info.DF; i++ {
			doc, err := it.Next()
			if err != nil {
				return err
			}
			switch {
			case doc == docs.EOF:
				return kleverr.Newf("%w: term %q ends at %d of %d", ErrCorrupted, term, i, info.DF)
			case int(doc) > count:
				return kleverr.Newf("%w: term %q doc %d of %d", ErrCorrupted, term, doc, count)
			case it.Freq() < 1:
				return kleverr.Newf("%w: term %q doc %d freq %d", ErrCorrupted, term, doc, it.Freq())
			}
			sums[doc] += uint64(it.Freq())
		}
		switch doc, err := it.Next(); {
		case err != nil:
			return err
		case doc != docs.EOF:
			return kleverr.Newf("%w: term %q runs past df %d", ErrCorrupted, term, info.DF)
		}

		// long lists also decode through their skip structure
		if info.DF > skip0 {
			in, err := r.post.Dup()
			if err != nil {
				return err
			}
			jumper, err := postings.NewIterator(in, info.Off, info.DF, skip0, skipN)
			if err != nil {
				return err
			}
			switch doc, err := jumper.Advance(docs.EOF); {
			case err != nil:
				return err
			case doc != docs.EOF:
				return kleverr.Newf("%w: term %q seek past end lands on %d", ErrCorrupted, term, doc)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for local := docs.ID(1); local <= docs.ID(count); local++ {
		entry, err := r.table.Get(local)
		if err != nil {
			return err
		}
		switch {
		case entry.Off == norms.Dropped && sums[local] != 0:
			return kleverr.Newf("%w: dropped doc %d has postings", ErrCorrupted, local)
		case entry.Off != norms.Dropped && sums[local] != uint64(entry.Norm):
			return kleverr.Newf("%w: doc %d norm %d, postings %d", ErrCorrupted, local, entry.Norm, sums[local])
		}
	}

	return r.checkMask()
}

func (r *Reader) checkMask() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var werr error
	r.mask.Iterate(func(x uint32) bool {
		entry, err := r.table.Get(docs.ID(x))
		switch {
		case err != nil:
			werr = err
		case entry.Off == norms.Dropped:
			werr = kleverr.Newf("%w: mask covers dropped doc %d", ErrCorrupted, x)
		}
		return werr == nil
	})
	return werr
}

// CheckDir checks every committed segment of dir, multiple segments in
// parallel.
func CheckDir(ctx context.Context, dir string) error {
	segments, err := Find(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, seg := range segments {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := Check(seg); err != nil {
				return kleverr.Newf("segment %d: %w", seg.Base, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type recoverState struct {
	exts  map[string]bool
	temps map[string]map[string]bool
}

// Recover removes leftovers of interrupted flushes and finishes
// interrupted rewrites. A base without a dictionary is an aborted
// flush, unless a rewrite file set with its own dictionary exists for
// it: the dictionary is written before the swap starts, so such a set
// is a completed rewrite and renaming it forward finishes the swap.
func Recover(dir string) error {
	files, err := os.ReadDir(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return kleverr.Newf("could not list dir: %w", err)
	}

	bases := map[string]*recoverState{}
	for _, f := range files {
		baseStr, ext, suffix, ok := splitName(f.Name())
		if !ok {
			continue
		}

		state := bases[baseStr]
		if state == nil {
			state = &recoverState{exts: map[string]bool{}, temps: map[string]map[string]bool{}}
			bases[baseStr] = state
		}

		if suffix == "" {
			state.exts[ext] = true
			continue
		}
		if state.temps[suffix] == nil {
			state.temps[suffix] = map[string]bool{}
		}
		state.temps[suffix][ext] = true
	}

	baseStrs := maps.Keys(bases)
	slices.Sort(baseStrs)

	for _, baseStr := range baseStrs {
		state := bases[baseStr]
		base, _ := strconv.ParseUint(baseStr, 10, 32)
		seg := New(dir, docs.ID(base))

		if state.exts["dict"] {
			// committed, any rewrite set around it never swapped in
			for _, suffix := range sortedKeys(state.temps) {
				seg.forSuffix(suffix).discard()
			}
			continue
		}

		var done string
		for _, suffix := range sortedKeys(state.temps) {
			if state.temps[suffix]["dict"] {
				done = suffix
				break
			}
		}

		if done != "" {
			if err := resumeOverride(seg.forSuffix(done), seg); err != nil {
				return err
			}
		} else {
			seg.discard()
		}

		for _, suffix := range sortedKeys(state.temps) {
			if suffix != done {
				seg.forSuffix(suffix).discard()
			}
		}
	}
	return nil
}

// resumeOverride finishes an Override that crashed partway. Files that
// were already renamed are simply gone from their temp names.
func resumeOverride(olds, news Segment) error {
	renames := []struct{ from, to string }{
		{olds.Raw, news.Raw},
		{olds.Docs, news.Docs},
		{olds.Post, news.Post},
		{olds.Dict, news.Dict},
	}
	for _, m := range renames {
		switch err := os.Rename(m.from, m.to); {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return kleverr.Newf("could not finish rewrite: %w", err)
		}
	}
	if err := os.Remove(news.Mask); err != nil && !errors.Is(err, os.ErrNotExist) {
		return kleverr.Newf("could not finish rewrite: %w", err)
	}
	return nil
}

// splitName parses a segment file name into its base, extension and
// rewrite suffix. Foreign files report not ok and stay untouched.
func splitName(name string) (base, ext, suffix string, ok bool) {
	base, rest, found := strings.Cut(name, ".")
	if !found || len(base) != 20 {
		return "", "", "", false
	}
	if _, err := strconv.ParseUint(base, 10, 32); err != nil {
		return "", "", "", false
	}

	ext, tail, found := strings.Cut(rest, ".")
	switch ext {
	case "post", "dict", "docs", "raw", "mask":
	default:
		return "", "", "", false
	}
	if !found {
		return base, ext, "", true
	}

	suffix, found = strings.CutPrefix(tail, "rewrite.")
	if !found || suffix == "" {
		return "", "", "", false
	}
	return base, ext, suffix, true
}

func sortedKeys(m map[string]map[string]bool) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

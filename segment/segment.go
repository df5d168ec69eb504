// Package segment manages immutable index segments on disk. A segment
// is a set of files sharing a zero-padded base id: postings, term
// dictionary, document table, stored text and an optional deletion
// mask. The dictionary is the commit marker. It is written and synced
// last, so a base without a readable dictionary is an aborted flush.
package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/norms"
)

var ErrCorrupted = errors.New("segment corrupted")

type Segment struct {
	Dir  string
	Base docs.ID

	Post string
	Dict string
	Docs string
	Raw  string
	Mask string
}

func New(dir string, base docs.ID) Segment {
	prefix := filepath.Join(dir, fmt.Sprintf("%020d", base))
	return Segment{
		Dir:  dir,
		Base: base,

		Post: prefix + ".post",
		Dict: prefix + ".dict",
		Docs: prefix + ".docs",
		Raw:  prefix + ".raw",
		Mask: prefix + ".mask",
	}
}

// Find returns the committed segments of dir, ordered by base. Only
// bases with a dictionary file count; data files of an aborted flush
// are invisible here and Recover removes them.
func Find(dir string) ([]Segment, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, kleverr.Newf("could not list dir: %w", err)
	}

	var segments []Segment
	for _, f := range files {
		if strings.HasSuffix(f.Name(), ".dict") {
			baseStr := strings.TrimSuffix(f.Name(), ".dict")

			base, err := strconv.ParseUint(baseStr, 10, 32)
			if err != nil {
				return nil, kleverr.Newf("parse base failed: %w", err)
			}

			segments = append(segments, New(dir, docs.ID(base)))
		}
	}

	return segments, nil
}

type Stats struct {
	Segments int
	Docs     int
	Deleted  int
	Size     int64
}

func (s Segment) Stat() (Stats, error) {
	var size int64
	for _, path := range []string{s.Post, s.Dict, s.Raw} {
		info, err := os.Stat(path)
		if err != nil {
			return Stats{}, fmt.Errorf("stat segment: %w", err)
		}
		size += info.Size()
	}

	docsInfo, err := os.Stat(s.Docs)
	if err != nil {
		return Stats{}, fmt.Errorf("stat segment: %w", err)
	}
	size += docsInfo.Size()

	var deleted int
	switch maskInfo, err := os.Stat(s.Mask); {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Stats{}, fmt.Errorf("stat segment: %w", err)
	default:
		size += maskInfo.Size()

		mask, err := loadMask(s.Mask)
		if err != nil {
			return Stats{}, err
		}
		deleted = int(mask.GetCardinality())
	}

	return Stats{
		Segments: 1,
		Docs:     int(docsInfo.Size() / norms.EntrySize),
		Deleted:  deleted,
		Size:     size,
	}, nil
}

func StatDir(dir string) (Stats, error) {
	segments, err := Find(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Stats{}, nil
	case err != nil:
		return Stats{}, err
	}

	var total = Stats{}
	for _, seg := range segments {
		segStat, err := seg.Stat()
		if err != nil {
			return Stats{}, err
		}

		total.Segments += segStat.Segments
		total.Docs += segStat.Docs
		total.Deleted += segStat.Deleted
		total.Size += segStat.Size
	}
	return total, nil
}

// ForRewrite derives the temp file set a rewrite builds before it
// takes the segment's place.
func (s Segment) ForRewrite() (Segment, error) {
	suffix, err := randStr(5)
	if err != nil {
		return Segment{}, err
	}
	return s.forSuffix(suffix), nil
}

func (s Segment) forSuffix(suffix string) Segment {
	s.Post = fmt.Sprintf("%s.rewrite.%s", s.Post, suffix)
	s.Dict = fmt.Sprintf("%s.rewrite.%s", s.Dict, suffix)
	s.Docs = fmt.Sprintf("%s.rewrite.%s", s.Docs, suffix)
	s.Raw = fmt.Sprintf("%s.rewrite.%s", s.Raw, suffix)
	s.Mask = fmt.Sprintf("%s.rewrite.%s", s.Mask, suffix)
	return s
}

func (s Segment) discard() {
	for _, path := range []string{s.Post, s.Dict, s.Docs, s.Raw, s.Mask} {
		os.Remove(path)
	}
}

// Override moves this temp file set over news. The target's dictionary
// comes off first and the temp dictionary goes in last, so at every
// point in between the base reads as uncommitted and Recover can
// finish the swap from the temp set.
func (olds Segment) Override(news Segment) error {
	if err := os.Remove(news.Dict); err != nil {
		return fmt.Errorf("override dict delete: %w", err)
	}

	if err := os.Rename(olds.Raw, news.Raw); err != nil {
		return fmt.Errorf("override raw rename: %w", err)
	}
	if err := os.Rename(olds.Docs, news.Docs); err != nil {
		return fmt.Errorf("override docs rename: %w", err)
	}
	if err := os.Rename(olds.Post, news.Post); err != nil {
		return fmt.Errorf("override post rename: %w", err)
	}
	if err := os.Rename(olds.Dict, news.Dict); err != nil {
		return fmt.Errorf("override dict rename: %w", err)
	}

	if err := os.Remove(news.Mask); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("override mask delete: %w", err)
	}
	return nil
}

func (s Segment) Remove() error {
	if err := os.Remove(s.Dict); err != nil {
		return fmt.Errorf("remove dict delete: %w", err)
	}
	for _, path := range []string{s.Post, s.Docs, s.Raw} {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove segment delete: %w", err)
		}
	}
	if err := os.Remove(s.Mask); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove mask delete: %w", err)
	}
	return nil
}

func (s Segment) Backup(targetDir string) error {
	for _, path := range []string{s.Raw, s.Docs, s.Post, s.Dict} {
		name, err := filepath.Rel(s.Dir, path)
		if err != nil {
			return fmt.Errorf("backup rel: %w", err)
		}
		if err := copyFile(path, filepath.Join(targetDir, name)); err != nil {
			return fmt.Errorf("backup copy: %w", err)
		}
	}

	name, err := filepath.Rel(s.Dir, s.Mask)
	if err != nil {
		return fmt.Errorf("backup rel: %w", err)
	}
	switch err := copyFile(s.Mask, filepath.Join(targetDir, name)); {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("backup mask copy: %w", err)
	}
	return nil
}

func BackupDir(dir, target string) error {
	segments, err := Find(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return err
	}

	if err := os.MkdirAll(target, 0700); err != nil {
		return kleverr.Newf("could not create backup dir: %w", err)
	}

	for _, seg := range segments {
		if err := seg.Backup(target); err != nil {
			return kleverr.Newf("could not backup segment %d: %w", seg.Base, err)
		}
	}
	return nil
}

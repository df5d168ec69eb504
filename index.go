package terndb

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/exp/slices"

	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/segment"
)

// Open create an index based on a dir and set of options
func Open(dir string, opts Options) (Index, error) {
	if opts.Rollover == 0 {
		opts.Rollover = 1024 * 1024
	}
	if opts.SkipInterval == 0 {
		opts.SkipInterval = 8
	}
	if opts.SkipMultiplier == 0 {
		opts.SkipMultiplier = 8
	}
	if opts.MaxSkipLevels == 0 {
		opts.MaxSkipLevels = 10
	}

	if opts.CreateDirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, kleverr.Newf("could not create index dirs: %w", err)
		}
	}

	lock := flock.New(filepath.Join(dir, ".lock"))
	if opts.Readonly {
		switch ok, err := lock.TryRLock(); {
		case err != nil:
			return nil, kleverr.Newf("could not lock: %w", err)
		case !ok:
			return nil, kleverr.Newf("index already writing locked")
		}
	} else {
		switch ok, err := lock.TryLock(); {
		case err != nil:
			return nil, kleverr.Newf("could not lock: %w", err)
		case !ok:
			return nil, kleverr.Newf("index already locked")
		}

		// a writer owns the dir, safe to clean up interrupted work
		if err := segment.Recover(dir); err != nil {
			return nil, err
		}
	}

	ix := &index{
		dir:  dir,
		opts: opts,
		lock: lock,
	}

	segments, err := segment.Find(dir)
	if err != nil {
		return nil, err
	}

	if len(segments) > 0 && opts.Check {
		if err := segment.Check(segments[len(segments)-1]); err != nil {
			return nil, err
		}
	}

	next := docs.ID(1)
	for _, seg := range segments {
		rdr, err := segment.Open(seg)
		if err != nil {
			return nil, err
		}
		ix.readers = append(ix.readers, rdr)
		next = seg.Base + docs.ID(rdr.Docs())
	}

	if !opts.Readonly {
		ix.writer = newWriter(next, opts)
	}

	return ix, nil
}

type index struct {
	dir  string
	opts Options
	lock *flock.Flock

	writer   *writer
	writerMu sync.Mutex

	readers   []*segment.Reader
	readersMu sync.RWMutex

	deleteMu  sync.Mutex
	compactMu sync.Mutex
}

func (ix *index) Add(ds []Document) (docs.ID, error) {
	if ix.opts.Readonly {
		return docs.Invalid, ErrReadonly
	}

	ix.writerMu.Lock()
	defer ix.writerMu.Unlock()

	if ix.writer.needsRollover(ix.opts.Rollover) {
		if err := ix.rollover(); err != nil {
			return docs.Invalid, err
		}
	}

	next, err := ix.writer.add(ds)
	if err != nil {
		return docs.Invalid, err
	}

	if ix.opts.AutoSync {
		if err := ix.rollover(); err != nil {
			return docs.Invalid, err
		}
	}

	return next, nil
}

// rollover flushes the buffer into a new segment and starts a fresh
// writer right after it. Callers hold writerMu.
func (ix *index) rollover() error {
	w := ix.writer
	if w.count() == 0 {
		return nil
	}

	seg := segment.New(ix.dir, w.base)
	if err := segment.Write(seg, w); err != nil {
		return err
	}
	rdr, err := segment.Open(seg)
	if err != nil {
		return err
	}

	ix.readersMu.Lock()
	ix.readers = append(ix.readers, rdr)
	ix.readersMu.Unlock()

	ix.writer = newWriter(w.next(), ix.opts)
	return nil
}

func (ix *index) NextDoc() (docs.ID, error) {
	if ix.opts.Readonly {
		ix.readersMu.RLock()
		defer ix.readersMu.RUnlock()

		next := docs.ID(1)
		if len(ix.readers) > 0 {
			last := ix.readers[len(ix.readers)-1]
			next = last.Base() + docs.ID(last.Docs())
		}
		return next, nil
	}

	ix.writerMu.Lock()
	defer ix.writerMu.Unlock()

	return ix.writer.next(), nil
}

func (ix *index) Get(doc docs.ID) (Document, error) {
	if err := docs.Validate(doc); err != nil {
		return Document{}, err
	}

	if !ix.opts.Readonly {
		ix.writerMu.Lock()
		if doc >= ix.writer.base {
			text, err := ix.writer.get(doc)
			ix.writerMu.Unlock()
			if err != nil {
				return Document{}, err
			}
			return Document{ID: doc, Text: text}, nil
		}
		ix.writerMu.Unlock()
	}

	ix.readersMu.RLock()
	defer ix.readersMu.RUnlock()

	rdr, ok := findReader(ix.readers, doc)
	if !ok {
		if ix.opts.Readonly {
			next := docs.ID(1)
			if len(ix.readers) > 0 {
				last := ix.readers[len(ix.readers)-1]
				next = last.Base() + docs.ID(last.Docs())
			}
			if doc >= next {
				return Document{}, kleverr.Newf("%w: doc %d", docs.ErrInvalidDoc, doc)
			}
		}
		// the id was assigned, but its whole segment is gone
		return Document{}, kleverr.Newf("%w: doc %d", docs.ErrNotFound, doc)
	}

	text, err := rdr.Doc(doc - rdr.Base() + 1)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: doc, Text: text}, nil
}

// findReader returns the reader whose segment covers doc.
func findReader(readers []*segment.Reader, doc docs.ID) (*segment.Reader, bool) {
	i, found := slices.BinarySearchFunc(readers, doc, func(r *segment.Reader, target docs.ID) int {
		switch {
		case r.Base() < target:
			return -1
		case r.Base() > target:
			return 1
		}
		return 0
	})
	if !found {
		if i == 0 {
			return nil, false
		}
		i--
	}

	rdr := readers[i]
	if doc >= rdr.Base()+docs.ID(rdr.Docs()) {
		return nil, false
	}
	return rdr, true
}

func (ix *index) Walk(fn func(d Document) error) error {
	var mem *memView
	if !ix.opts.Readonly {
		ix.writerMu.Lock()
		mem = ix.writer.view(nil)
		ix.writerMu.Unlock()
	}

	ix.readersMu.RLock()
	defer ix.readersMu.RUnlock()

	for _, rdr := range ix.readers {
		if mem != nil && rdr.Base() >= mem.base {
			continue
		}

		base := rdr.Base()
		err := rdr.Walk(func(local docs.ID, norm uint32, text string) error {
			return fn(Document{ID: base + local - 1, Text: text})
		})
		if err != nil {
			return err
		}
	}

	if mem != nil {
		for i := range mem.docList {
			local := docs.ID(i + 1)
			if mem.deleted.Contains(uint32(local)) {
				continue
			}
			if err := fn(Document{ID: mem.base + local - 1, Text: mem.docList[i].text}); err != nil {
				return err
			}
		}
	}

	return nil
}

func (ix *index) Stat() (Stats, error) {
	ix.readersMu.RLock()
	defer ix.readersMu.RUnlock()

	var total Stats
	for _, rdr := range ix.readers {
		stat, err := rdr.Segment().Stat()
		if err != nil {
			return Stats{}, err
		}

		total.Segments += stat.Segments
		total.Docs += stat.Docs
		total.Deleted += stat.Deleted
		total.Size += stat.Size
	}
	return total, nil
}

func (ix *index) Backup(dir string) error {
	ix.readersMu.RLock()
	defer ix.readersMu.RUnlock()

	if err := os.MkdirAll(dir, 0700); err != nil {
		return kleverr.Newf("could not create backup dirs: %w", err)
	}

	for _, rdr := range ix.readers {
		if err := rdr.Segment().Backup(dir); err != nil {
			return err
		}
	}
	return nil
}

func (ix *index) Sync() error {
	if ix.opts.Readonly {
		return nil
	}

	ix.writerMu.Lock()
	defer ix.writerMu.Unlock()

	return ix.rollover()
}

func (ix *index) Close() error {
	if !ix.opts.Readonly {
		ix.writerMu.Lock()
		defer ix.writerMu.Unlock()

		if err := ix.rollover(); err != nil {
			return err
		}
	}

	ix.readersMu.Lock()
	defer ix.readersMu.Unlock()

	for _, rdr := range ix.readers {
		if err := rdr.Close(); err != nil {
			return err
		}
	}
	ix.readers = nil

	if err := ix.lock.Unlock(); err != nil {
		return kleverr.Newf("could not unlock: %w", err)
	}
	return nil
}

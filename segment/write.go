package segment

import (
	"github.com/tern-dev/terndb/dict"
	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/norms"
	"github.com/tern-dev/terndb/postings"
	"github.com/tern-dev/terndb/store"
	"github.com/tern-dev/terndb/stored"
)

// Posting is one term occurrence handed to Write: a local doc id and
// the term's frequency within that doc.
type Posting struct {
	Doc  docs.ID
	Freq int
}

// Source provides everything Write needs to lay a segment down. A
// flush reads it off the in-memory buffer, a rewrite off an existing
// segment.
type Source interface {
	// Params returns the skip interval, the skip multiplier and the
	// max skip levels for postings lists.
	Params() (skipInterval, skipMultiplier, maxSkipLevels int)
	// Docs returns the number of local entries, dropped ones included.
	Docs() int
	// Doc returns the token count and stored text of a local doc.
	// Dropped docs return live false and keep their local slot.
	Doc(local docs.ID) (norm uint32, text string, live bool, err error)
	// Walk visits every term in ascending byte order, each with its
	// postings sorted by doc.
	Walk(fn func(term []byte, list []Posting) error) error
}

// Write lays the segment files down in dependency order: stored text,
// doc table, postings, then the dictionary. The dictionary is synced
// last, committing the segment.
func Write(seg Segment, src Source) error {
	skip0, skipN, maxLevels := src.Params()
	count := src.Docs()

	if err := writeDocs(seg, src, count); err != nil {
		return err
	}

	terms := dict.NewWriter(skip0, skipN, count)
	if err := writePostings(seg, src, terms, skip0, skipN, maxLevels); err != nil {
		return err
	}

	dictOut, err := store.CreateFile(seg.Dict)
	if err != nil {
		return err
	}
	defer dictOut.Close()

	if err := terms.Flush(dictOut); err != nil {
		return err
	}
	return dictOut.SyncAndClose()
}

func writeDocs(seg Segment, src Source, count int) error {
	rawOut, err := store.CreateFile(seg.Raw)
	if err != nil {
		return err
	}
	defer rawOut.Close()

	docsOut, err := store.CreateFile(seg.Docs)
	if err != nil {
		return err
	}
	defer docsOut.Close()

	raw := stored.NewWriter(rawOut)
	table := norms.NewWriter(docsOut)
	for local := docs.ID(1); local <= docs.ID(count); local++ {
		norm, text, live, err := src.Doc(local)
		if err != nil {
			return err
		}

		off := norms.Dropped
		if live {
			if off, err = raw.Append(text); err != nil {
				return err
			}
		}
		if err := table.Add(norm, off); err != nil {
			return err
		}
	}

	if err := rawOut.SyncAndClose(); err != nil {
		return err
	}
	return docsOut.SyncAndClose()
}

func writePostings(seg Segment, src Source, terms *dict.Writer, skip0, skipN, maxLevels int) error {
	postOut, err := store.CreateFile(seg.Post)
	if err != nil {
		return err
	}
	defer postOut.Close()

	plist := postings.NewWriter(skip0, skipN, maxLevels)
	err = src.Walk(func(term []byte, list []Posting) error {
		off := postOut.FilePointer()

		plist.Begin(len(list))
		for _, p := range list {
			if err := plist.Add(p.Doc, p.Freq); err != nil {
				return err
			}
		}
		if err := plist.Flush(postOut); err != nil {
			return err
		}

		return terms.Add(term, len(list), off)
	})
	if err != nil {
		return err
	}

	return postOut.SyncAndClose()
}

package terndb

import (
	"context"
	"errors"

	"github.com/tern-dev/terndb/docs"
	"github.com/tern-dev/terndb/segment"
)

// Document pairs a doc id with its original text.
type Document struct {
	ID   docs.ID
	Text string
}

// Hit is a single search result.
type Hit struct {
	Doc   docs.ID
	Score float64
}

var ErrNotFound = docs.ErrNotFound
var ErrInvalidDoc = docs.ErrInvalidDoc
var ErrReadonly = errors.New("index opened in readonly mode")

type Stats = segment.Stats

type Options struct {
	CreateDirs     bool
	Readonly       bool
	AutoSync       bool
	Check          bool
	Rollover       int64
	SkipInterval   int
	SkipMultiplier int
	MaxSkipLevels  int
}

type Index interface {
	// Add analyzes and indexes documents, assigning consecutive ids.
	// It returns the id of the next document to be added.
	// The id of the document is ignored, set to the actual id.
	Add(ds []Document) (nextDoc docs.ID, err error)

	// NextDoc returns the id of the next document to be added.
	NextDoc() (nextDoc docs.ID, err error)

	// Get retrieves a single document, by its id
	// If the doc was deleted, it returns ErrNotFound
	// If the id was never assigned, it returns ErrInvalidDoc
	Get(doc docs.ID) (d Document, err error)

	// Search retrieves docs matching all query terms, best first.
	// A query with no indexable terms matches nothing.
	Search(query string) (hits []Hit, err error)

	// SearchAny retrieves docs matching any query term, best first.
	SearchAny(query string) (hits []Hit, err error)

	// Walk calls fn for every live document, in ascending id order.
	// If fn returns an error, the walk stops and returns it.
	Walk(fn func(d Document) error) error

	// Delete tries to delete a set of documents by their id
	//   and returns how many of them were still live.
	// Deleted docs stop matching searches right away,
	//   their storage is reclaimed later by Compact.
	// If an id was never assigned, it returns ErrInvalidDoc.
	Delete(ids []docs.ID) (deleted int, err error)

	// Compact folds accumulated deletes into the segment files
	//   and removes segments left without any live docs.
	Compact() (stats CompactStats, err error)

	// Stat returns index stats like disk space, number of docs
	Stat() (Stats, error)

	// Backup takes a backup snapshot of this index to another location
	Backup(dir string) error

	// Sync forces persisting data to the disk
	Sync() error

	// Close closes the index
	Close() error
}

func Stat(dir string) (Stats, error) {
	return segment.StatDir(dir)
}

func Backup(src, dst string) error {
	return segment.BackupDir(src, dst)
}

func Check(dir string) error {
	return segment.CheckDir(context.Background(), dir)
}

func Recover(dir string) error {
	return segment.Recover(dir)
}

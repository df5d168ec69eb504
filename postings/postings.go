// Package postings serializes and iterates per-term postings lists.
// A list is delta-encoded (doc, freq) pairs followed by a multi-level
// skip structure; Advance uses the structure to jump over entries that
// cannot match, which is what makes conjunction queries cheap on long
// lists.
package postings

import "errors"

// ErrCorrupted marks postings bytes that cannot be decoded into a
// consistent list.
var ErrCorrupted = errors.New("postings corrupted")

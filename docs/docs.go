package docs

import (
	"errors"
	"math"

	"github.com/klev-dev/kleverr"
)

// ID identifies a document. Ids are assigned sequentially starting at 1
// and are never reused. Inside a segment postings store local ids, also
// starting at 1; the segment base maps them to the global space.
type ID uint32

const (
	// Invalid marks an unassigned or unknown document
	Invalid ID = 0
	// EOF marks the end of a postings list. It is larger than any
	// assignable id and compares greater than every real document.
	EOF ID = math.MaxUint32
)

var ErrInvalidDoc = errors.New("invalid doc")
var ErrNotFound = errors.New("doc not found")

func Validate(doc ID) error {
	if doc == Invalid || doc == EOF {
		return kleverr.Newf("%w: %d", ErrInvalidDoc, doc)
	}
	return nil
}

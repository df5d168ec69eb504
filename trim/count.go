package trim

import (
	"context"

	"github.com/tern-dev/terndb"
	"github.com/tern-dev/terndb/docs"
)

// FindByCount returns the ids of the oldest live docs that when
// deleted will keep the number of live docs in the index under max
func FindByCount(ctx context.Context, ix terndb.Index, max int) ([]docs.ID, error) {
	var live []docs.ID
	err := ix.Walk(func(d terndb.Document) error {
		live = append(live, d.ID)
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}

	if len(live) <= max {
		return nil, nil
	}
	return live[:len(live)-max], nil
}

// ByCount tries to delete the oldest docs to keep the number of
// live docs in the index under max count.
//
// returns how many docs it deleted
func ByCount(ctx context.Context, ix terndb.Index, max int) (int, error) {
	ids, err := FindByCount(ctx, ix, max)
	switch {
	case err != nil:
		return 0, err
	case len(ids) == 0:
		return 0, nil
	}
	return ix.Delete(ids)
}

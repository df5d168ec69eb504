package trim

import (
	"context"
	"errors"

	"github.com/tern-dev/terndb"
	"github.com/tern-dev/terndb/docs"
)

var errStop = errors.New("stop walk")

// FindBefore returns the ids of live docs before the given id
func FindBefore(ctx context.Context, ix terndb.Index, before docs.ID) ([]docs.ID, error) {
	var ids []docs.ID
	err := ix.Walk(func(d terndb.Document) error {
		if d.ID >= before {
			return errStop
		}
		ids = append(ids, d.ID)
		return ctx.Err()
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return ids, nil
}

// Before tries to delete the docs at the start of the index, up to
// but not including the given id.
//
// returns how many docs it deleted
func Before(ctx context.Context, ix terndb.Index, before docs.ID) (int, error) {
	ids, err := FindBefore(ctx, ix, before)
	switch {
	case err != nil:
		return 0, err
	case len(ids) == 0:
		return 0, nil
	}
	return ix.Delete(ids)
}

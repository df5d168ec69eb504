package trim

import (
	"context"

	"github.com/tern-dev/terndb"
	"github.com/tern-dev/terndb/docs"
)

// FindByQuery returns the ids of live docs matching all query terms
func FindByQuery(ctx context.Context, ix terndb.Index, query string) ([]docs.ID, error) {
	hits, err := ix.Search(query)
	switch {
	case err != nil:
		return nil, err
	case len(hits) == 0:
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]docs.ID, len(hits))
	for i, hit := range hits {
		ids[i] = hit.Doc
	}
	return ids, nil
}

// ByQuery tries to delete all docs matching the query.
//
// returns how many docs it deleted
func ByQuery(ctx context.Context, ix terndb.Index, query string) (int, error) {
	ids, err := FindByQuery(ctx, ix, query)
	switch {
	case err != nil:
		return 0, err
	case len(ids) == 0:
		return 0, nil
	}
	return ix.Delete(ids)
}

package terndb

import (
	"golang.org/x/exp/slices"

	"github.com/klev-dev/kleverr"

	"github.com/tern-dev/terndb/docs"
)

func (ix *index) Delete(ids []docs.ID) (int, error) {
	if ix.opts.Readonly {
		return 0, ErrReadonly
	}
	if len(ids) == 0 {
		return 0, nil
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	for _, id := range sorted {
		if err := docs.Validate(id); err != nil {
			return 0, err
		}
	}

	// deleteMu keeps compaction from swapping segments mid sweep,
	// writerMu pins the buffer base so ids cannot move to disk under us
	ix.deleteMu.Lock()
	defer ix.deleteMu.Unlock()

	ix.writerMu.Lock()
	defer ix.writerMu.Unlock()

	if last := sorted[len(sorted)-1]; last >= ix.writer.next() {
		return 0, kleverr.Newf("%w: doc %d", docs.ErrInvalidDoc, last)
	}

	// split at the buffer base, the tail is still in memory
	cut, _ := slices.BinarySearch(sorted, ix.writer.base)
	diskIDs, memIDs := sorted[:cut], sorted[cut:]

	var deleted int

	ix.readersMu.RLock()
	for len(diskIDs) > 0 {
		rdr, ok := findReader(ix.readers, diskIDs[0])
		if !ok {
			// segment already compacted away, deleting again is a noop
			diskIDs = diskIDs[1:]
			continue
		}

		end := rdr.Base() + docs.ID(rdr.Docs())
		stop, _ := slices.BinarySearch(diskIDs, end)

		locals := make([]docs.ID, 0, stop)
		for _, id := range diskIDs[:stop] {
			locals = append(locals, id-rdr.Base()+1)
		}

		added, err := rdr.AddMask(locals)
		if err != nil {
			ix.readersMu.RUnlock()
			return deleted, err
		}
		deleted += added

		diskIDs = diskIDs[stop:]
	}
	ix.readersMu.RUnlock()

	if len(memIDs) > 0 {
		deleted += ix.writer.delete(memIDs)
	}

	return deleted, nil
}

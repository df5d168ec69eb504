package segment

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/RoaringBitmap/roaring"
	"github.com/natefinch/atomic"
)

// loadMask reads a segment's deletion mask. A missing file is an empty
// mask, so freshly written segments carry no mask file at all.
func loadMask(path string) (*roaring.Bitmap, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return roaring.New(), nil
	case err != nil:
		return nil, fmt.Errorf("mask read: %w", err)
	}

	mask := roaring.New()
	if err := mask.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("mask parse: %w", ErrCorrupted)
	}
	return mask, nil
}

// saveMask replaces the mask file in one atomic rename, keeping the
// old mask readable until the new one is fully on disk.
func saveMask(path string, mask *roaring.Bitmap) error {
	data, err := mask.MarshalBinary()
	if err != nil {
		return fmt.Errorf("mask marshal: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("mask write: %w", err)
	}
	return nil
}

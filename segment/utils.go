package segment

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"github.com/mr-tron/base58"
)

func randStr(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	return base58.Encode(b), nil
}

// copyFile copies src to dst, skipping files dst already holds with
// matching size and modtime. Backups re-run over the same target dir
// and segment files never change in place, so a match is a hit.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy src open: %w", err)
	}
	defer in.Close()

	srcStat, err := in.Stat()
	if err != nil {
		return fmt.Errorf("copy src stat: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		switch dstStat, serr := os.Stat(dst); {
		case serr != nil:
			return fmt.Errorf("copy dst stat: %w", serr)
		case dstStat.Size() == srcStat.Size() && dstStat.ModTime().Equal(srcStat.ModTime()):
			return nil
		}
		out, err = os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	}
	if err != nil {
		return fmt.Errorf("copy dst open: %w", err)
	}
	defer out.Close()

	switch n, err := io.Copy(out, in); {
	case err != nil:
		return fmt.Errorf("copy: %w", err)
	case n < srcStat.Size():
		return fmt.Errorf("short copy (%d/%d)", n, srcStat.Size())
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("copy dst sync: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("copy dst close: %w", err)
	}
	return os.Chtimes(dst, srcStat.ModTime(), srcStat.ModTime())
}

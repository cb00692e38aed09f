package store

import (
	"fmt"
	"os"

	"github.com/nvandessel/gkmerge/internal/pathutil"
)

// EnsureDir creates dir if it doesn't exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", pathutil.RedactPath(dir), err)
	}
	return nil
}

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const backupPrefix = "backup_"

// PruneLocal deletes backup files in dir last modified before olderThan.
// Files not written by the archive store are left alone. It returns the
// number of files removed and the first error seen.
func PruneLocal(dir string, olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list backups: %w", err)
	}

	removed := 0
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), backupPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(olderThan) {
			continue
		}

		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
			}
			continue
		}
		removed++
	}

	return removed, firstErr
}

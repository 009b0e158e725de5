package uploads

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SweepOrphans removes regular files in dir last modified before now-maxAge.
// Staged files normally live for one request, so anything older is left over from a crash.
func (m *Manager) SweepOrphans(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list upload dir: %w", err)
	}

	remove := m.Remove
	if remove == nil {
		remove = os.Remove
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		if err := remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			if m.OnCleanupFailure != nil {
				m.OnCleanupFailure(path, err)
			}
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListHistory returns the workout files directly under dir, sorted by name.
// Files are conventionally named with a date prefix, so this is date order.
func ListHistory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := DetectFormat(e.Name()); err != nil {
			continue
		}
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// LoadHistory decodes every workout in dir. Files that fail to parse or are
// not rides are logged and skipped.
func LoadHistory(ctx context.Context, dir string, opts Options, logger *slog.Logger) ([]*Parsed, error) {
	if logger == nil {
		logger = slog.Default()
	}
	files, err := ListHistory(dir)
	if err != nil {
		return nil, err
	}

	out := make([]*Parsed, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := LoadFile(path, opts)
		if errors.Is(err, ErrNotRide) {
			logger.Debug("skip non-ride activity", "file", path)
			continue
		}
		if err != nil {
			logger.Warn("skip unreadable workout", "file", path, "err", err)
			continue
		}
		out = append(out, p)
	}
	logger.Info("loaded workout history", "dir", dir, "files", len(files), "workouts", len(out))
	return out, nil
}

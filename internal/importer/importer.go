// Package importer moves workout files from the history directory into the
// sample cache and the workout index.
package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/lucasjlepore/cycling-analyzer/ingest"
	"github.com/lucasjlepore/cycling-analyzer/internal/cfg"
	"github.com/lucasjlepore/cycling-analyzer/internal/store"
	"github.com/lucasjlepore/cycling-analyzer/samplecache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ErrDuplicate = errors.New("duplicate workout")

var importedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cycling_import_files_total",
	Help: "Workout files seen by the importer, by result",
}, []string{"result"})

type Importer struct {
	c       cfg.Config
	db      *store.DB
	samples *samplecache.Cache
	log     *slog.Logger
}

func New(c cfg.Config, db *store.DB, samples *samplecache.Cache, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{c: c, db: db, samples: samples, log: logger.With("component", "importer")}
}

// IngestFile decodes path and records it unless a file with the same bytes
// was imported before. Re-importing a changed file under the same name
// replaces the previous version.
func (im *Importer) IngestFile(path string) (store.WorkoutRow, error) {
	p, err := ingest.LoadFile(path, im.c.IngestOptions())
	if err != nil {
		return store.WorkoutRow{}, err
	}
	row := store.RowFor(p.Workout, path, p.Fingerprint)

	err = im.db.WithTx(func(tx *sql.Tx) error {
		if id, err := im.db.LookupByFingerprint(tx, p.Fingerprint); err == nil {
			im.log.Debug("skip duplicate", "file", path, "workout", id)
			return ErrDuplicate
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := im.samples.Save(p.Workout); err != nil {
			return fmt.Errorf("cache samples: %w", err)
		}
		return im.db.UpsertWorkout(tx, row)
	})
	if err != nil {
		return row, err
	}
	im.log.Info("imported workout", "file", filepath.Base(path), "workout", row.ID, "day", row.Day, "samples", row.Samples)
	return row, nil
}

// ScanSummary reports the outcome of one pass over the history directory.
type ScanSummary struct {
	Dir        string   `json:"dir"`
	FoundFiles int      `json:"found_files"`
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors"`
}

func (s *ScanSummary) add(path string, err error) {
	switch {
	case err == nil:
		s.Imported++
		importedFiles.WithLabelValues("imported").Inc()
	case errors.Is(err, ErrDuplicate):
		s.Duplicates++
		importedFiles.WithLabelValues("duplicate").Inc()
	case errors.Is(err, ingest.ErrNotRide):
		s.Skipped++
		importedFiles.WithLabelValues("skipped").Inc()
	default:
		s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
		importedFiles.WithLabelValues("error").Inc()
	}
}

// ScanOnce ingests every supported file in the history directory.
func (im *Importer) ScanOnce(ctx context.Context) (ScanSummary, error) {
	sum := ScanSummary{Dir: im.c.HistoryDir}
	files, err := ingest.ListHistory(im.c.HistoryDir)
	if err != nil {
		return sum, err
	}
	sum.FoundFiles = len(files)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		_, err := im.IngestFile(f)
		if err != nil && !errors.Is(err, ErrDuplicate) {
			im.log.Warn("ingest failed", "file", f, "err", err)
		}
		sum.add(f, err)
	}
	im.log.Info("scan finished", "dir", sum.Dir, "found", sum.FoundFiles, "imported", sum.Imported,
		"duplicates", sum.Duplicates, "skipped", sum.Skipped, "errors", len(sum.Errors))
	return sum, nil
}

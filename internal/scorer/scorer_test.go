package scorer

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/internal/cache"
	"github.com/lucasjlepore/cycling-analyzer/internal/store"
	"github.com/lucasjlepore/cycling-analyzer/samplecache"
)

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "cycling.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	samples, err := samplecache.New(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	return &Scorer{
		DB:      db,
		Samples: samples,
		Cache:   cache.NewMemory(),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Workers: 2,
	}
}

// addSteadyRide imports an hour at watts, starting at 07:00 on day.
func addSteadyRide(t *testing.T, s *Scorer, id string, day time.Time, watts float64) store.WorkoutRow {
	t.Helper()
	start := day.Add(7 * time.Hour)
	w := &cycling.Workout{ID: id, Source: "tcx", Sport: "Biking", Start: start, DurationS: 3600}
	for i := 0; i < 3600; i++ {
		w.Samples = append(w.Samples, cycling.Sample{
			Time:  start.Add(time.Duration(i) * time.Second),
			Power: cycling.Float(watts),
			Speed: cycling.Float(8),
		})
	}
	if err := s.Samples.Save(w); err != nil {
		t.Fatalf("Save: %v", err)
	}
	row := store.RowFor(w, "", "fp-"+id)
	if err := s.DB.WithTx(func(tx *sql.Tx) error { return s.DB.UpsertWorkout(tx, row) }); err != nil {
		t.Fatalf("UpsertWorkout: %v", err)
	}
	return row
}

func TestSnapshotIsStoredAndReused(t *testing.T) {
	s := newScorer(t)
	ctx := context.Background()
	row := addSteadyRide(t, s, "ride", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), 200)

	snap, err := s.Snapshot(ctx, row, 250, cycling.Options{})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if math.Abs(snap.LoadTSS()-64) > 1e-6 {
		t.Fatalf("tss = %v, want 64", snap.LoadTSS())
	}
	if _, err := s.DB.GetSnapshot(ctx, store.KeyFor(row, 250, cycling.Options{})); err != nil {
		t.Fatalf("snapshot not persisted: %v", err)
	}

	if err := s.Samples.Remove(row.ID); err != nil {
		t.Fatal(err)
	}
	s.Cache = cache.NewMemory()
	again, err := s.Snapshot(ctx, row, 250, cycling.Options{})
	if err != nil {
		t.Fatalf("stored snapshot should not need samples: %v", err)
	}
	if again.LoadTSS() != snap.LoadTSS() {
		t.Fatalf("tss changed: %v vs %v", again.LoadTSS(), snap.LoadTSS())
	}
	if _, err := s.Snapshot(ctx, row, 300, cycling.Options{}); !errors.Is(err, samplecache.ErrMiss) {
		t.Fatalf("new FTP without samples should miss, got %v", err)
	}
}

func TestWeeklyAndSeries(t *testing.T) {
	s := newScorer(t)
	ctx := context.Background()
	today := time.Date(2024, 6, 12, 18, 0, 0, 0, time.UTC)
	addSteadyRide(t, s, "mon", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), 250)
	addSteadyRide(t, s, "prev", time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), 250)
	addSteadyRide(t, s, "old", time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), 250)

	weeks, err := s.Weekly(ctx, 250, 2, today, cycling.Options{})
	if err != nil {
		t.Fatalf("Weekly: %v", err)
	}
	if len(weeks) != 2 {
		t.Fatalf("weeks = %d", len(weeks))
	}
	if !weeks[0].WeekStart.Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first week = %s", weeks[0].WeekStart)
	}
	for i, w := range weeks {
		if math.Abs(w.TSS-100) > 1e-6 || w.Workouts != 1 {
			t.Fatalf("week %d = %+v", i, w)
		}
	}

	series, err := s.Series(ctx, 250, 10, today, cycling.Options{})
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(series) != 11 {
		t.Fatalf("series length = %d", len(series))
	}
	last := series[len(series)-1]
	if !last.Date.Equal(time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("last date = %s", last.Date)
	}
	if last.TSS != 0 || last.CTL <= 0 || last.TSB != last.CTL-last.ATL {
		t.Fatalf("unexpected last point: %+v", last)
	}

	if _, err := s.Weekly(ctx, 0, 2, today, cycling.Options{}); !errors.Is(err, cycling.ErrInvalidFTP) {
		t.Fatalf("expected ErrInvalidFTP, got %v", err)
	}
}

func TestSeriesSurvivesMissingSamples(t *testing.T) {
	s := newScorer(t)
	ctx := context.Background()
	today := time.Date(2024, 6, 12, 18, 0, 0, 0, time.UTC)
	addSteadyRide(t, s, "kept", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), 250)
	lost := addSteadyRide(t, s, "lost", time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), 250)
	if err := s.Samples.Remove(lost.ID); err != nil {
		t.Fatal(err)
	}

	series, err := s.Series(ctx, 250, 3, today, cycling.Options{})
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(series) != 4 {
		t.Fatalf("series length = %d", len(series))
	}
	if series[1].TSS != 100 || series[2].TSS != 0 {
		t.Fatalf("daily tss = %v, %v; want 100, 0", series[1].TSS, series[2].TSS)
	}

	weeks, err := s.Weekly(ctx, 250, 1, today, cycling.Options{})
	if err != nil {
		t.Fatalf("Weekly: %v", err)
	}
	if len(weeks) != 1 || weeks[0].TSS != 100 {
		t.Fatalf("weeks = %+v", weeks)
	}
}

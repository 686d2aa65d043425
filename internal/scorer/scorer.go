// Package scorer computes metric snapshots and training load for imported
// workouts, reusing stored snapshots where the inputs have not changed.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/internal/cache"
	"github.com/lucasjlepore/cycling-analyzer/internal/store"
	"github.com/lucasjlepore/cycling-analyzer/samplecache"
	"golang.org/x/sync/errgroup"
)

// Scorer turns stored workouts into snapshots and load aggregates. Cache is
// optional; DB and Samples are required.
type Scorer struct {
	DB      *store.DB
	Samples *samplecache.Cache
	Cache   cache.Snapshots
	Logger  *slog.Logger
	Workers int
}

func (s *Scorer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Snapshot returns the metrics of row at ftp. Lookups go through the cache,
// then the store, and finally recompute from cached samples.
func (s *Scorer) Snapshot(ctx context.Context, row store.WorkoutRow, ftp float64, opts cycling.Options) (*cycling.MetricSnapshot, error) {
	key := store.KeyFor(row, ftp, opts)
	if s.Cache != nil {
		snap, err := s.Cache.Get(ctx, key)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger().Warn("snapshot cache get failed", "key", key.String(), "err", err)
		}
	}

	snap, err := s.DB.GetSnapshot(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		w, lerr := s.Samples.Load(row.ID)
		if lerr != nil {
			return nil, fmt.Errorf("load samples of %s: %w", row.ID, lerr)
		}
		snap, err = cycling.Analyze(w, ftp, opts)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", row.ID, err)
		}
		if err := s.DB.PutSnapshot(ctx, key, snap); err != nil {
			s.logger().Warn("store snapshot failed", "workout", row.ID, "err", err)
		}
	} else if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Put(ctx, key, snap); err != nil {
			s.logger().Warn("snapshot cache put failed", "key", key.String(), "err", err)
		}
	}
	return snap, nil
}

// Loads scores rows concurrently, keeping their order. Workouts whose samples
// are empty or missing from the sample cache contribute zero stress to their
// day instead of failing the aggregate.
func (s *Scorer) Loads(ctx context.Context, rows []store.WorkoutRow, ftp float64, opts cycling.Options) ([]cycling.WorkoutLoad, error) {
	if err := cycling.CheckFTP(ftp); err != nil {
		return nil, err
	}
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	loads := make([]cycling.WorkoutLoad, len(rows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, row := range rows {
		g.Go(func() error {
			day, err := time.Parse(time.DateOnly, row.Day)
			if err != nil {
				return fmt.Errorf("workout %s: bad day %q: %w", row.ID, row.Day, err)
			}
			snap, err := s.Snapshot(ctx, row, ftp, opts)
			if errors.Is(err, cycling.ErrEmptyWorkout) || errors.Is(err, samplecache.ErrMiss) {
				s.logger().Warn("workout scored as zero load", "workout", row.ID, "err", err)
				loads[i] = cycling.WorkoutLoad{WorkoutID: row.ID, Day: day}
				return nil
			}
			if err != nil {
				return err
			}
			loads[i] = cycling.WorkoutLoad{WorkoutID: row.ID, Day: day, TSS: snap.LoadTSS(), Snapshot: snap}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return loads, nil
}

// Weekly buckets the stress of the numWeeks Monday-aligned weeks ending at
// the week of today.
func (s *Scorer) Weekly(ctx context.Context, ftp float64, numWeeks int, today time.Time, opts cycling.Options) ([]cycling.WeekBucket, error) {
	if err := cycling.CheckFTP(ftp); err != nil {
		return nil, err
	}
	if numWeeks <= 0 {
		return nil, nil
	}
	since := cycling.MondayOf(today).AddDate(0, 0, -7*(numWeeks-1))
	loads, err := s.loadsSince(ctx, since, ftp, opts)
	if err != nil {
		return nil, err
	}
	return cycling.BucketLoads(loads, numWeeks, today), nil
}

// Series returns the daily CTL/ATL/TSB series of the windowDays days before
// today.
func (s *Scorer) Series(ctx context.Context, ftp float64, windowDays int, today time.Time, opts cycling.Options) ([]cycling.LoadPoint, error) {
	if err := cycling.CheckFTP(ftp); err != nil {
		return nil, err
	}
	since := cycling.CivilDay(today).AddDate(0, 0, -windowDays)
	loads, err := s.loadsSince(ctx, since, ftp, opts)
	if err != nil {
		return nil, err
	}
	return cycling.SeriesFromLoads(loads, windowDays, today), nil
}

func (s *Scorer) loadsSince(ctx context.Context, since time.Time, ftp float64, opts cycling.Options) ([]cycling.WorkoutLoad, error) {
	rows, err := s.DB.ListWorkoutsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	return s.Loads(ctx, rows, ftp, opts)
}

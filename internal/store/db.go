// Package store keeps the imported workout index and computed metric
// snapshots in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// ErrNotFound is returned when a workout or snapshot row does not exist.
var ErrNotFound = errors.New("not found")

type DB struct{ *sql.DB }

// WorkoutRow is the indexed metadata of an imported workout. Samples live in
// the sample cache.
type WorkoutRow struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Sport       string    `json:"sport"`
	Start       time.Time `json:"start"`
	Day         string    `json:"day"`
	DistanceM   float64   `json:"distance_m"`
	DurationS   float64   `json:"duration_s"`
	Samples     int       `json:"samples"`
	RawPath     string    `json:"raw_path,omitempty"`
	Fingerprint string    `json:"fingerprint"`
}

// RowFor builds the index row of w.
func RowFor(w *cycling.Workout, rawPath, fingerprint string) WorkoutRow {
	return WorkoutRow{
		ID:          w.ID,
		Source:      w.Source,
		Sport:       w.Sport,
		Start:       w.StartTime(),
		Day:         w.Day().Format(time.DateOnly),
		DistanceM:   w.DistanceM,
		DurationS:   w.DurationS,
		Samples:     len(w.Samples),
		RawPath:     rawPath,
		Fingerprint: fingerprint,
	}
}

// SnapshotKey identifies one metric computation. A snapshot is stale as soon
// as the source bytes, FTP or options change.
type SnapshotKey struct {
	WorkoutID   string
	Fingerprint string
	FTPWatts    float64
	WindowMode  string
	TimeBasis   string
	MaxGapS     int
}

// KeyFor builds the snapshot key of a workout row.
func KeyFor(row WorkoutRow, ftp float64, opts cycling.Options) SnapshotKey {
	return SnapshotKey{
		WorkoutID:   row.ID,
		Fingerprint: row.Fingerprint,
		FTPWatts:    ftp,
		WindowMode:  opts.WindowMode.String(),
		TimeBasis:   opts.TimeBasis.String(),
		MaxGapS:     opts.MaxGapSeconds(),
	}
}

func (k SnapshotKey) String() string {
	return k.WorkoutID + ":" + k.Fingerprint + ":" + strconv.FormatFloat(k.FTPWatts, 'f', -1, 64) + ":" + k.WindowMode + ":" + k.TimeBasis + ":" + strconv.Itoa(k.MaxGapS)
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_fk=1&_busy_timeout=8000&mode=rwc", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; shared-cache table locks are not retried by busy_timeout.
	db.SetMaxOpenConns(1)
	return &DB{db}, nil
}

func Migrate(db *DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db.DB, "migrations")
}

func (db *DB) WithTx(fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// LookupByFingerprint returns the id of the workout imported from the same
// bytes, or ErrNotFound.
func (db *DB) LookupByFingerprint(tx *sql.Tx, fingerprint string) (string, error) {
	var id string
	err := tx.QueryRow(`SELECT id FROM workouts WHERE fingerprint = ?`, fingerprint).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// UpsertWorkout inserts or replaces the row of r.ID. Replacing a workout drops
// its snapshots.
func (db *DB) UpsertWorkout(tx *sql.Tx, r WorkoutRow) error {
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE workout_id = ? AND fingerprint <> ?`, r.ID, r.Fingerprint); err != nil {
		return err
	}
	_, err := tx.Exec(`INSERT INTO workouts(id,source,sport,start_time,day,distance_m,duration_s,samples,raw_path,fingerprint,imported_at)
	VALUES(?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET
		source = excluded.source,
		sport = excluded.sport,
		start_time = excluded.start_time,
		day = excluded.day,
		distance_m = excluded.distance_m,
		duration_s = excluded.duration_s,
		samples = excluded.samples,
		raw_path = excluded.raw_path,
		fingerprint = excluded.fingerprint,
		imported_at = excluded.imported_at`,
		r.ID, r.Source, r.Sport, r.Start.Format(time.RFC3339Nano), r.Day, r.DistanceM, r.DurationS, r.Samples, r.RawPath, r.Fingerprint,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

const workoutColumns = `id,source,sport,start_time,day,distance_m,duration_s,samples,raw_path,fingerprint`

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkout(s scanner) (WorkoutRow, error) {
	var (
		r     WorkoutRow
		start string
	)
	if err := s.Scan(&r.ID, &r.Source, &r.Sport, &start, &r.Day, &r.DistanceM, &r.DurationS, &r.Samples, &r.RawPath, &r.Fingerprint); err != nil {
		return r, err
	}
	t, err := time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return r, fmt.Errorf("workout %s: bad start_time %q: %w", r.ID, start, err)
	}
	r.Start = t
	return r, nil
}

// ListWorkouts returns every workout ordered by start time.
func (db *DB) ListWorkouts(ctx context.Context) ([]WorkoutRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+workoutColumns+` FROM workouts ORDER BY day, start_time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkoutRow
	for rows.Next() {
		r, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListWorkoutsSince returns workouts whose local day is on or after since.
func (db *DB) ListWorkoutsSince(ctx context.Context, since time.Time) ([]WorkoutRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+workoutColumns+` FROM workouts WHERE day >= ? ORDER BY day, start_time, id`,
		since.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkoutRow
	for rows.Next() {
		r, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) GetWorkout(ctx context.Context, id string) (WorkoutRow, error) {
	r, err := scanWorkout(db.QueryRowContext(ctx, `SELECT `+workoutColumns+` FROM workouts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (db *DB) DeleteWorkout(id string) error {
	return db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM snapshots WHERE workout_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.Exec(`DELETE FROM workouts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetSnapshot returns the stored snapshot for k, or ErrNotFound.
func (db *DB) GetSnapshot(ctx context.Context, k SnapshotKey) (*cycling.MetricSnapshot, error) {
	var body string
	err := db.QueryRowContext(ctx, `SELECT body FROM snapshots
	WHERE workout_id = ? AND fingerprint = ? AND ftp_w = ? AND window_mode = ? AND time_basis = ? AND max_gap_s = ?`,
		k.WorkoutID, k.Fingerprint, k.FTPWatts, k.WindowMode, k.TimeBasis, k.MaxGapS).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap cycling.MetricSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", k, err)
	}
	return &snap, nil
}

func (db *DB) PutSnapshot(ctx context.Context, k SnapshotKey, snap *cycling.MetricSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	var tss any
	if snap.TrainingStress != nil {
		tss = *snap.TrainingStress
	}
	_, err = db.ExecContext(ctx, `INSERT INTO snapshots(workout_id,fingerprint,ftp_w,window_mode,time_basis,max_gap_s,tss,body,created_at)
	VALUES(?,?,?,?,?,?,?,?,?)
	ON CONFLICT(workout_id,fingerprint,ftp_w,window_mode,time_basis,max_gap_s) DO UPDATE SET
		tss = excluded.tss,
		body = excluded.body,
		created_at = excluded.created_at`,
		k.WorkoutID, k.Fingerprint, k.FTPWatts, k.WindowMode, k.TimeBasis, k.MaxGapS, tss, string(body), time.Now().UTC().Format(time.RFC3339))
	return err
}

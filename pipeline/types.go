package pipeline

import (
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/ingest"
)

// Artifact file names.
const (
	ManifestFile         = "manifest.json"
	SnapshotFile         = "metric_snapshot.json"
	NotesFile            = "training_notes.md"
	canonicalSamplesStem = "canonical_samples"
)

// Options configures the workout_analyze pipeline.
type Options struct {
	InputPath  string
	OutDir     string
	FTPWatts   float64
	Format     string // parquet|csv
	Overwrite  bool
	CopySource bool
	Metrics    cycling.Options
	Ingest     ingest.Options
}

// BytesOptions configures RunBytes for callers without a filesystem.
type BytesOptions struct {
	SourceFileName string
	Data           []byte
	FTPWatts       float64
	Format         string
	CopySource     bool
	Metrics        cycling.Options
}

// Result returns generated output paths.
type Result struct {
	OutputDir            string                  `json:"output_dir"`
	ManifestPath         string                  `json:"manifest_path"`
	SourceCopyPath       string                  `json:"source_copy_path,omitempty"`
	CanonicalSamplesPath string                  `json:"canonical_samples_path"`
	SnapshotPath         string                  `json:"snapshot_path"`
	NotesPath            string                  `json:"notes_path"`
	Snapshot             *cycling.MetricSnapshot `json:"-"`
	Warnings             []string                `json:"warnings,omitempty"`
}

// BytesResult holds every artifact by file name.
type BytesResult struct {
	Files    map[string][]byte
	Snapshot *cycling.MetricSnapshot
	Warnings []string
}

// Manifest describes one pipeline run.
type Manifest struct {
	GeneratedAt  string   `json:"generated_at"`
	SourceFile   string   `json:"source_file"`
	SourceFormat string   `json:"source_format"`
	SourceSHA1   string   `json:"source_sha1"`
	WorkoutID    string   `json:"workout_id"`
	Start        string   `json:"start,omitempty"`
	SampleCount  int      `json:"sample_count"`
	FTPWatts     float64  `json:"ftp_w"`
	WindowMode   string   `json:"window_mode"`
	TimeBasis    string   `json:"time_basis"`
	Files        []string `json:"files"`
}

// CanonicalSample is one exported sample row.
type CanonicalSample struct {
	TSUTCISO   string    `json:"ts_utc_iso"`
	TSLocalISO string    `json:"ts_local_iso"`
	Timestamp  time.Time `json:"-"`
	ElapsedS   float64   `json:"elapsed_s"`
	PowerW     *float64  `json:"power_w,omitempty"`
	HRBPM      *float64  `json:"hr_bpm,omitempty"`
	CadenceRPM *float64  `json:"cadence_rpm,omitempty"`
	SpeedMPS   *float64  `json:"speed_mps,omitempty"`
	DistanceM  *float64  `json:"distance_m,omitempty"`
	AltitudeM  *float64  `json:"altitude_m,omitempty"`
	LatDeg     *float64  `json:"lat_deg,omitempty"`
	LonDeg     *float64  `json:"lon_deg,omitempty"`
	ValidPower bool      `json:"valid_power"`
	Moving     bool      `json:"moving"`
	// Zone is the 1-based power zone, 0 when power is missing.
	Zone int `json:"zone"`
}

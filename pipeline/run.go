package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/ingest"
)

// Run decodes one workout file, scores it and writes all artifacts into
// opts.OutDir.
func Run(opts Options) (*Result, error) {
	if strings.TrimSpace(opts.InputPath) == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	source, err := ingest.DetectFormat(opts.InputPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	w, err := ingest.Decode(source, data, ingest.WorkoutID(opts.InputPath), opts.Ingest)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(opts.InputPath), err)
	}

	art, err := buildArtifacts(w, source, data, filepath.Base(opts.InputPath), opts.FTPWatts, format, opts.CopySource, opts.Metrics)
	if err != nil {
		return nil, err
	}

	if err := ensureOutputDir(opts.OutDir, opts.Overwrite); err != nil {
		return nil, err
	}
	for _, name := range art.names() {
		if err := os.WriteFile(filepath.Join(opts.OutDir, name), art.files[name], 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	res := &Result{
		OutputDir:            opts.OutDir,
		ManifestPath:         filepath.Join(opts.OutDir, ManifestFile),
		CanonicalSamplesPath: filepath.Join(opts.OutDir, canonicalSamplesStem+"."+format),
		SnapshotPath:         filepath.Join(opts.OutDir, SnapshotFile),
		NotesPath:            filepath.Join(opts.OutDir, NotesFile),
		Snapshot:             art.snapshot,
		Warnings:             art.snapshot.Warnings,
	}
	if art.sourceName != "" {
		res.SourceCopyPath = filepath.Join(opts.OutDir, art.sourceName)
	}
	return res, nil
}

// RunBytes is Run without a filesystem: the workout comes from opts.Data and
// artifacts are returned by file name.
func RunBytes(opts BytesOptions) (*BytesResult, error) {
	if len(opts.Data) == 0 {
		return nil, fmt.Errorf("workout file bytes are required")
	}
	name := opts.SourceFileName
	if name == "" {
		name = "input.fit"
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	source, err := ingest.DetectFormat(name)
	if err != nil {
		return nil, err
	}
	w, err := ingest.Decode(source, opts.Data, ingest.WorkoutID(name), ingest.Options{})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	art, err := buildArtifacts(w, source, opts.Data, name, opts.FTPWatts, format, opts.CopySource, opts.Metrics)
	if err != nil {
		return nil, err
	}
	return &BytesResult{Files: art.files, Snapshot: art.snapshot, Warnings: art.snapshot.Warnings}, nil
}

func normalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "parquet"
	}
	if format != "parquet" && format != "csv" {
		return "", fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}
	return format, nil
}

type artifacts struct {
	files      map[string][]byte
	snapshot   *cycling.MetricSnapshot
	sourceName string
}

func (a *artifacts) names() []string {
	names := make([]string, 0, len(a.files))
	for name := range a.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildArtifacts(w *cycling.Workout, source ingest.Format, data []byte, sourceFile string, ftp float64, format string, copySource bool, metrics cycling.Options) (*artifacts, error) {
	snap, err := cycling.Analyze(w, ftp, metrics)
	if err != nil {
		return nil, fmt.Errorf("analyze workout: %w", err)
	}
	samples := BuildCanonicalSamples(w.Samples, ftp)

	art := &artifacts{files: make(map[string][]byte), snapshot: snap}
	samplesName := canonicalSamplesStem + "." + format
	switch format {
	case "csv":
		art.files[samplesName], err = marshalCanonicalCSV(samples)
	default:
		art.files[samplesName], err = marshalCanonicalParquet(samples)
	}
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", samplesName, err)
	}

	if art.files[SnapshotFile], err = marshalJSON(snap); err != nil {
		return nil, fmt.Errorf("write %s: %w", SnapshotFile, err)
	}
	art.files[NotesFile] = []byte(cycling.BuildTrainingNotes(snap) + "\n")
	if copySource {
		art.sourceName = "source" + filepath.Ext(sourceFile)
		art.files[art.sourceName] = data
	}

	manifest := Manifest{
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		SourceFile:   sourceFile,
		SourceFormat: string(source),
		SourceSHA1:   ingest.Fingerprint(data),
		WorkoutID:    w.ID,
		SampleCount:  len(w.Samples),
		FTPWatts:     ftp,
		WindowMode:   snap.WindowMode,
		TimeBasis:    snap.TimeBasis,
		Files:        append(art.names(), ManifestFile),
	}
	if start := w.StartTime(); !start.IsZero() {
		manifest.Start = start.Format(time.RFC3339)
	}
	sort.Strings(manifest.Files)
	if art.files[ManifestFile], err = marshalJSON(manifest); err != nil {
		return nil, fmt.Errorf("write %s: %w", ManifestFile, err)
	}
	return art, nil
}

// BuildCanonicalSamples flattens workout samples into export rows. Zones are
// left at 0 when ftp is not usable.
func BuildCanonicalSamples(samples []cycling.Sample, ftp float64) []CanonicalSample {
	out := make([]CanonicalSample, 0, len(samples))
	if len(samples) == 0 {
		return out
	}
	first := samples[0].Time
	for _, s := range samples {
		row := CanonicalSample{
			TSUTCISO:   s.Time.UTC().Format(time.RFC3339),
			TSLocalISO: s.Time.Format(time.RFC3339),
			Timestamp:  s.Time,
			ElapsedS:   s.Time.Sub(first).Seconds(),
			PowerW:     s.Power,
			HRBPM:      s.HeartRate,
			CadenceRPM: s.Cadence,
			SpeedMPS:   s.Speed,
			DistanceM:  s.Distance,
			AltitudeM:  s.Elevation,
			LatDeg:     s.Latitude,
			LonDeg:     s.Longitude,
			ValidPower: s.HasPower(),
			Moving:     s.Moving(),
		}
		if row.ValidPower {
			if z, err := cycling.ClassifyZone(*s.Power, ftp); err == nil {
				row.Zone = z + 1
			}
		}
		out = append(out, row)
	}
	return out
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set overwrite=true to allow)", path)
	}
	return nil
}

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var canonicalHeader = []string{
	"ts_utc_iso", "ts_local_iso", "elapsed_s", "power_w", "hr_bpm", "cadence_rpm", "speed_mps", "distance_m", "altitude_m",
	"lat_deg", "lon_deg", "valid_power", "moving", "zone",
}

func marshalCanonicalCSV(samples []CanonicalSample) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(canonicalHeader); err != nil {
		return nil, err
	}
	for _, s := range samples {
		row := []string{
			s.TSUTCISO,
			s.TSLocalISO,
			formatFloat(s.ElapsedS),
			formatFloatPtr(s.PowerW),
			formatFloatPtr(s.HRBPM),
			formatFloatPtr(s.CadenceRPM),
			formatFloatPtr(s.SpeedMPS),
			formatFloatPtr(s.DistanceM),
			formatFloatPtr(s.AltitudeM),
			formatFloatPtr(s.LatDeg),
			formatFloatPtr(s.LonDeg),
			strconv.FormatBool(s.ValidPower),
			strconv.FormatBool(s.Moving),
			strconv.Itoa(s.Zone),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

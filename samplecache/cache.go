// Package samplecache persists decoded workouts as parquet files so history
// scans do not have to reparse source files.
package samplecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// ErrMiss is returned when a workout is not cached.
var ErrMiss = errors.New("sample cache miss")

type sampleRow struct {
	TimeUnixMs   int64   `parquet:"name=time_unix_ms, type=INT64"`
	UTCOffsetS   int32   `parquet:"name=utc_offset_s, type=INT32"`
	PowerW       float64 `parquet:"name=power_w, type=DOUBLE"`
	SpeedMPS     float64 `parquet:"name=speed_mps, type=DOUBLE"`
	CadenceRPM   float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	ElevationM   float64 `parquet:"name=elevation_m, type=DOUBLE"`
	Latitude     float64 `parquet:"name=latitude, type=DOUBLE"`
	Longitude    float64 `parquet:"name=longitude, type=DOUBLE"`
	HeartRateBPM float64 `parquet:"name=heart_rate_bpm, type=DOUBLE"`
	DistanceM    float64 `parquet:"name=distance_m, type=DOUBLE"`
}

// Cache stores one parquet file and one metadata file per workout id.
type Cache struct {
	Dir string
}

// New creates dir if needed.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sample cache: %w", err)
	}
	return &Cache{Dir: dir}, nil
}

func (c *Cache) samplesPath(id string) string {
	return filepath.Join(c.Dir, id+".parquet")
}

func (c *Cache) metaPath(id string) string {
	return filepath.Join(c.Dir, id+".meta.json")
}

// Has reports whether both files of id exist.
func (c *Cache) Has(id string) bool {
	if _, err := os.Stat(c.samplesPath(id)); err != nil {
		return false
	}
	_, err := os.Stat(c.metaPath(id))
	return err == nil
}

// Save writes w to the cache, replacing any previous entry.
func (c *Cache) Save(w *cycling.Workout) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if err := writeSamplesFile(c.samplesPath(w.ID), w.Samples); err != nil {
		return fmt.Errorf("write samples parquet: %w", err)
	}
	meta, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.metaPath(w.ID), meta, 0o644); err != nil {
		return fmt.Errorf("write workout metadata: %w", err)
	}
	return nil
}

// Load reads a cached workout. It returns ErrMiss when id is not cached.
func (c *Cache) Load(id string) (*cycling.Workout, error) {
	meta, err := os.ReadFile(c.metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var w cycling.Workout
	if err := json.Unmarshal(meta, &w); err != nil {
		return nil, fmt.Errorf("decode workout metadata: %w", err)
	}

	fr, err := local.NewLocalFileReader(c.samplesPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, err
	}
	defer fr.Close()
	samples, err := readSamples(fr)
	if err != nil {
		return nil, fmt.Errorf("read samples parquet: %w", err)
	}
	w.Samples = samples
	return &w, nil
}

// Remove deletes the cache entry of id.
func (c *Cache) Remove(id string) error {
	for _, p := range []string{c.samplesPath(id), c.metaPath(id)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// MarshalSamples encodes samples as an in-memory parquet file.
func MarshalSamples(samples []cycling.Sample) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := writeSamples(fw, samples); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// UnmarshalSamples decodes a parquet file produced by MarshalSamples.
func UnmarshalSamples(data []byte) ([]cycling.Sample, error) {
	return readSamples(parquetbuffer.NewBufferFileFromBytes(data))
}

func writeSamplesFile(path string, samples []cycling.Sample) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	if err := writeSamples(fw, samples); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

func writeSamples(fw source.ParquetFile, samples []cycling.Sample) error {
	pw, err := writer.NewParquetWriter(fw, new(sampleRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range samples {
		_, offset := s.Time.Zone()
		row := sampleRow{
			TimeUnixMs:   s.Time.UnixMilli(),
			UTCOffsetS:   int32(offset),
			PowerW:       valueOrNaN(s.Power),
			SpeedMPS:     valueOrNaN(s.Speed),
			CadenceRPM:   valueOrNaN(s.Cadence),
			ElevationM:   valueOrNaN(s.Elevation),
			Latitude:     valueOrNaN(s.Latitude),
			Longitude:    valueOrNaN(s.Longitude),
			HeartRateBPM: valueOrNaN(s.HeartRate),
			DistanceM:    valueOrNaN(s.Distance),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

func readSamples(fr source.ParquetFile) ([]cycling.Sample, error) {
	pr, err := reader.NewParquetReader(fr, new(sampleRow), 4)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()

	rows := make([]sampleRow, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, err
	}

	zones := make(map[int32]*time.Location)
	samples := make([]cycling.Sample, len(rows))
	for i, r := range rows {
		loc, ok := zones[r.UTCOffsetS]
		if !ok {
			loc = time.UTC
			if r.UTCOffsetS != 0 {
				loc = time.FixedZone("", int(r.UTCOffsetS))
			}
			zones[r.UTCOffsetS] = loc
		}
		samples[i] = cycling.Sample{
			Time:      time.UnixMilli(r.TimeUnixMs).In(loc),
			Power:     nanToNil(r.PowerW),
			Speed:     nanToNil(r.SpeedMPS),
			Cadence:   nanToNil(r.CadenceRPM),
			Elevation: nanToNil(r.ElevationM),
			Latitude:  nanToNil(r.Latitude),
			Longitude: nanToNil(r.Longitude),
			HeartRate: nanToNil(r.HeartRateBPM),
			Distance:  nanToNil(r.DistanceM),
		}
	}
	return samples, nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func nanToNil(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return cycling.Float(v)
}

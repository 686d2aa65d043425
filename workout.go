package cycling

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidFTP is returned when a metric needs an FTP that is not strictly positive.
	ErrInvalidFTP = errors.New("ftp must be greater than zero")
	// ErrEmptyWorkout is returned for workouts without a single sample.
	ErrEmptyWorkout = errors.New("workout has no samples")
)

// Sample is one trackpoint of a workout. Optional channels are nil when the
// recording device did not report them.
type Sample struct {
	Time      time.Time `json:"time"`
	Power     *float64  `json:"power_w,omitempty"`
	Speed     *float64  `json:"speed_mps,omitempty"`
	Cadence   *float64  `json:"cadence_rpm,omitempty"`
	Elevation *float64  `json:"elevation_m,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	HeartRate *float64  `json:"heart_rate_bpm,omitempty"`
	Distance  *float64  `json:"distance_m,omitempty"`
}

// Moving reports whether the sample was recorded with positive speed.
func (s Sample) Moving() bool {
	return s.Speed != nil && *s.Speed > 0
}

// HasPower reports whether the sample carries a usable power reading.
func (s Sample) HasPower() bool {
	return s.Power != nil && isFinite(*s.Power) && *s.Power >= 0
}

// Workout is an ingested ride. It is treated as immutable once built.
type Workout struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Sport     string    `json:"sport"`
	Start     time.Time `json:"start"`
	DistanceM float64   `json:"distance_m"`
	DurationS float64   `json:"duration_s"`
	Samples   []Sample  `json:"-"`
}

// Validate checks the structural requirements shared by every source.
func (w *Workout) Validate() error {
	if w == nil || len(w.Samples) == 0 {
		return ErrEmptyWorkout
	}
	for i := 1; i < len(w.Samples); i++ {
		if w.Samples[i].Time.Before(w.Samples[i-1].Time) {
			return fmt.Errorf("sample %d out of order", i)
		}
	}
	return nil
}

// StartTime returns the declared start or the first sample timestamp.
func (w *Workout) StartTime() time.Time {
	if !w.Start.IsZero() {
		return w.Start
	}
	if len(w.Samples) > 0 {
		return w.Samples[0].Time
	}
	return time.Time{}
}

// Day returns the calendar day the workout started on, in the workout's own
// timezone, as a UTC midnight value.
func (w *Workout) Day() time.Time {
	return CivilDay(w.StartTime())
}

// CivilDay truncates t to its calendar date in t's location.
func CivilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Float returns a pointer to v. Ingestion code uses it for optional channels.
func Float(v float64) *float64 {
	return &v
}

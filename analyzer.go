package cycling

import (
	"fmt"
	"math"
	"time"
)

// MinPowerCoverage is the fraction of samples that must carry power before
// zone and best-effort metrics are reported.
const MinPowerCoverage = 0.5

// WorkoutSummary holds the channel statistics of a single ride.
type WorkoutSummary struct {
	DistanceM       float64       `json:"distance_m"`
	Duration        time.Duration `json:"duration_ns"`
	MovingTime      time.Duration `json:"moving_time_ns"`
	AvgSpeedMps     float64       `json:"avg_speed_mps"`
	MaxSpeedMps     float64       `json:"max_speed_mps"`
	AvgPowerWatts   float64       `json:"avg_power_watts"`
	MaxPowerWatts   float64       `json:"max_power_watts"`
	CaloriesKcal    float64       `json:"calories_kcal"`
	MaxElevationM   float64       `json:"max_elevation_m"`
	MinElevationM   float64       `json:"min_elevation_m"`
	ElevationGainM  float64       `json:"elevation_gain_m"`
	CadenceReported bool          `json:"cadence_reported"`
	AvgCadence      float64       `json:"avg_cadence_rpm"`
	MaxCadence      float64       `json:"max_cadence_rpm"`
	AvgHeartRate    float64       `json:"avg_heart_rate_bpm"`
	MaxHeartRate    float64       `json:"max_heart_rate_bpm"`
}

// BestEffort is the highest rolling average power for one duration.
type BestEffort struct {
	Duration time.Duration `json:"duration_ns"`
	Label    string        `json:"label"`
	Watts    float64       `json:"watts"`
}

// MetricSnapshot is everything derived from one workout at one FTP.
// NP, IF and TSS are nil when they cannot be computed or when fewer than
// half of the samples carry power.
type MetricSnapshot struct {
	WorkoutID         string         `json:"workout_id"`
	Start             time.Time      `json:"start"`
	FTPWatts          float64        `json:"ftp_watts"`
	WindowMode        string         `json:"window_mode"`
	TimeBasis         string         `json:"time_basis"`
	Summary           WorkoutSummary `json:"summary"`
	Samples           int            `json:"samples"`
	ValidPowerSamples int            `json:"valid_power_samples"`
	PowerAvailable    bool           `json:"power_available"`
	NormalizedPower   *float64       `json:"normalized_power_watts,omitempty"`
	IntensityFactor   *float64       `json:"intensity_factor,omitempty"`
	TrainingStress    *float64       `json:"training_stress_score,omitempty"`
	Zones             []ZoneBin      `json:"zones,omitempty"`
	MaxPower          []BestEffort   `json:"max_power,omitempty"`
	Warnings          []string       `json:"warnings,omitempty"`
}

// LoadTSS is the TSS the workout contributes to its day. Workouts without a
// computable TSS contribute zero.
func (m *MetricSnapshot) LoadTSS() float64 {
	if m == nil || m.TrainingStress == nil {
		return 0
	}
	return *m.TrainingStress
}

// String names a window mode for reports and cache keys.
func (m WindowMode) String() string {
	if m == WindowSamples {
		return "samples"
	}
	return "elapsed"
}

// String names a time basis for reports and cache keys.
func (b TimeBasis) String() string {
	if b == TimeBasisSamples {
		return "samples"
	}
	return "moving"
}

// Analyze computes the metric snapshot of w at the given FTP.
func Analyze(w *Workout, ftp float64, opts Options) (*MetricSnapshot, error) {
	if err := CheckFTP(ftp); err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrEmptyWorkout
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("analyze workout %q: %w", w.ID, err)
	}

	snap := &MetricSnapshot{
		WorkoutID:         w.ID,
		Start:             w.StartTime(),
		FTPWatts:          ftp,
		WindowMode:        opts.WindowMode.String(),
		TimeBasis:         opts.TimeBasis.String(),
		Summary:           Summarize(w),
		Samples:           len(w.Samples),
		ValidPowerSamples: ValidPowerCount(w.Samples),
	}

	coverage := float64(snap.ValidPowerSamples) / float64(snap.Samples)
	snap.PowerAvailable = snap.ValidPowerSamples > 0 && coverage >= MinPowerCoverage
	if snap.ValidPowerSamples == 0 {
		snap.Warnings = append(snap.Warnings, "no power samples recorded; power metrics unavailable")
	} else if !snap.PowerAvailable {
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("power recorded on %.0f%% of samples; power metrics unavailable", coverage*100))
	}
	if !snap.PowerAvailable {
		return snap, nil
	}

	zones, err := ZoneHistogram(w.Samples, ftp)
	if err != nil {
		return nil, err
	}
	snap.Zones = zones

	best := RollingMaxPower(w.Samples, MaxPowerDurations, opts)
	for _, d := range MaxPowerDurations {
		watts, ok := best[d]
		if !ok {
			continue
		}
		snap.MaxPower = append(snap.MaxPower, BestEffort{Duration: d, Label: DurationLabel(d), Watts: watts})
	}

	np, ok := NormalizedPower(w.Samples, opts)
	if !ok {
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("fewer than %d seconds of continuous power; NP, IF and TSS unavailable", NPWindow))
		return snap, nil
	}
	intensity, tss, err := ComputeTSS(np, ftp, MovingSeconds(w.Samples, opts.TimeBasis))
	if err != nil {
		return nil, err
	}
	snap.NormalizedPower = &np
	snap.IntensityFactor = &intensity
	snap.TrainingStress = &tss
	return snap, nil
}

// Summarize computes distance, time, speed, power, elevation, cadence and
// heart rate statistics for w.
func Summarize(w *Workout) WorkoutSummary {
	var (
		speeds, powers, cadences, hrs []float64
		elevations                    []float64
		gain                          float64
		lastElevation                 float64
		haveElevation                 bool
		moving                        int
		cadenceSamples                int
		lastDistance                  float64
	)

	for _, s := range w.Samples {
		if s.Speed != nil && isFinite(*s.Speed) {
			speeds = append(speeds, *s.Speed)
		}
		if s.Moving() {
			moving++
		}
		if s.HasPower() {
			powers = append(powers, *s.Power)
		}
		if s.Cadence != nil && isFinite(*s.Cadence) {
			cadenceSamples++
			if *s.Cadence > 0 {
				cadences = append(cadences, *s.Cadence)
			}
		}
		if s.HeartRate != nil && *s.HeartRate > 0 {
			hrs = append(hrs, *s.HeartRate)
		}
		if s.Distance != nil && *s.Distance > lastDistance {
			lastDistance = *s.Distance
		}

		if s.Elevation == nil || !isFinite(*s.Elevation) {
			haveElevation = false
			continue
		}
		elevations = append(elevations, *s.Elevation)
		if haveElevation {
			diff := *s.Elevation - lastElevation
			if diff > 0 && diff < 10 {
				gain += diff
			}
		}
		lastElevation = *s.Elevation
		haveElevation = true
	}

	summary := WorkoutSummary{
		DistanceM:      safePositive(w.DistanceM),
		Duration:       time.Duration(safePositive(w.DurationS) * float64(time.Second)),
		MovingTime:     time.Duration(moving) * time.Second,
		AvgSpeedMps:    average(speeds),
		MaxSpeedMps:    maxValue(speeds),
		AvgPowerWatts:  average(powers),
		MaxPowerWatts:  maxValue(powers),
		MaxElevationM:  maxValue(elevations),
		MinElevationM:  minValue(elevations),
		ElevationGainM: gain,
		AvgHeartRate:   average(hrs),
		MaxHeartRate:   maxValue(hrs),
	}
	if summary.DistanceM == 0 {
		summary.DistanceM = lastDistance
	}
	if summary.Duration == 0 && len(w.Samples) > 1 {
		summary.Duration = w.Samples[len(w.Samples)-1].Time.Sub(w.Samples[0].Time)
	}
	summary.CaloriesKcal = summary.AvgPowerWatts * float64(moving) / 1000.0
	if cadenceSamples*2 > len(w.Samples) {
		summary.CadenceReported = true
		summary.AvgCadence = average(cadences)
		summary.MaxCadence = maxValue(cadences)
	}
	return summary
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	count := 0
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		total += v
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func maxValue(values []float64) float64 {
	max, found := 0.0, false
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	return max
}

func minValue(values []float64) float64 {
	min, found := 0.0, false
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		if !found || v < min {
			min = v
			found = true
		}
	}
	return min
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func safePositive(v float64) float64 {
	if !isFinite(v) || v <= 0 {
		return 0
	}
	return v
}

package cycling

import (
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	secondsPerHour = 3600.0

	// NPWindow is the rolling window, in samples, used by normalized power.
	NPWindow = 30
	// DefaultMaxGapFill is the longest recording gap that is forward-filled
	// when windows are measured in elapsed time.
	DefaultMaxGapFill = 30 * time.Second
)

// MaxPowerDurations is the fixed set of rolling durations reported in a snapshot.
var MaxPowerDurations = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	20 * time.Minute,
	30 * time.Minute,
	time.Hour,
}

// WindowMode selects how rolling windows are measured.
type WindowMode int

const (
	// WindowElapsed rebuilds a one-second series from timestamps. Short
	// recording gaps are filled with the previous value; longer gaps break
	// the series so no window spans them. Samples are not downsampled: two
	// samples within the same second still count as two seconds, so files
	// recorded faster than 1 Hz behave as in WindowSamples.
	WindowElapsed WindowMode = iota
	// WindowSamples treats every sample as one second regardless of timestamps.
	WindowSamples
)

// TimeBasis selects the time term used by TSS.
type TimeBasis int

const (
	// TimeBasisMoving counts samples recorded with positive speed.
	TimeBasisMoving TimeBasis = iota
	// TimeBasisSamples counts every sample.
	TimeBasisSamples
)

// Options tune the single-workout metrics.
type Options struct {
	WindowMode WindowMode
	TimeBasis  TimeBasis
	MaxGapFill time.Duration
}

// MaxGapSeconds is the effective forward-fill limit of elapsed windows.
// Sample-count windows never fill, so it is zero for WindowSamples.
func (o Options) MaxGapSeconds() int {
	if o.WindowMode == WindowSamples {
		return 0
	}
	if o.MaxGapFill <= 0 {
		return int(DefaultMaxGapFill / time.Second)
	}
	return int(o.MaxGapFill / time.Second)
}

// ParseWindowMode accepts "elapsed" or "samples".
func ParseWindowMode(s string) (WindowMode, bool) {
	switch s {
	case "", "elapsed":
		return WindowElapsed, true
	case "samples":
		return WindowSamples, true
	}
	return WindowElapsed, false
}

// ParseTimeBasis accepts "moving" or "samples".
func ParseTimeBasis(s string) (TimeBasis, bool) {
	switch s {
	case "", "moving":
		return TimeBasisMoving, true
	case "samples":
		return TimeBasisSamples, true
	}
	return TimeBasisMoving, false
}

// ValidPowerCount returns the number of samples carrying usable power.
func ValidPowerCount(samples []Sample) int {
	n := 0
	for _, s := range samples {
		if s.HasPower() {
			n++
		}
	}
	return n
}

// powerSegments converts samples into contiguous per-second power series.
// Missing power is NaN so windows touching it can be dropped.
func powerSegments(samples []Sample, opts Options) [][]float64 {
	if len(samples) == 0 {
		return nil
	}

	value := func(s Sample) float64 {
		if s.HasPower() {
			return *s.Power
		}
		return math.NaN()
	}

	if opts.WindowMode == WindowSamples {
		seg := make([]float64, len(samples))
		for i, s := range samples {
			seg[i] = value(s)
		}
		return [][]float64{seg}
	}

	maxGap := opts.MaxGapSeconds()
	var (
		segments [][]float64
		current  = make([]float64, 0, len(samples))
		lastTS   time.Time
		haveTS   bool
	)
	for _, s := range samples {
		p := value(s)
		if haveTS && !s.Time.IsZero() && s.Time.After(lastTS) {
			missing := int(math.Round(s.Time.Sub(lastTS).Seconds())) - 1
			switch {
			case missing > maxGap:
				segments = append(segments, current)
				current = make([]float64, 0, len(samples))
			case missing > 0 && len(current) > 0:
				prev := current[len(current)-1]
				for i := 0; i < missing; i++ {
					current = append(current, prev)
				}
			}
		}
		current = append(current, p)
		if !s.Time.IsZero() {
			lastTS = s.Time
			haveTS = true
		}
	}
	if len(current) > 0 {
		segments = append(segments, current)
	}
	return segments
}

// eachRollingMean calls fn with the mean of every full window of length n in
// seg that contains no NaN.
func eachRollingMean(seg []float64, n int, fn func(float64)) {
	if n <= 0 || len(seg) < n {
		return
	}
	clean := make([]float64, len(seg)+1)
	holes := make([]float64, len(seg)+1)
	for i, v := range seg {
		if math.IsNaN(v) {
			holes[i+1] = 1
			continue
		}
		clean[i+1] = v
	}
	floats.CumSum(clean, clean)
	floats.CumSum(holes, holes)

	for end := n; end <= len(seg); end++ {
		if holes[end]-holes[end-n] > 0 {
			continue
		}
		fn((clean[end] - clean[end-n]) / float64(n))
	}
}

// RollingMaxPower returns the best average power for each duration. A
// duration without a single complete window is absent from the result.
func RollingMaxPower(samples []Sample, durations []time.Duration, opts Options) map[time.Duration]float64 {
	out := make(map[time.Duration]float64, len(durations))
	segments := powerSegments(samples, opts)
	for _, d := range durations {
		n := int(d / time.Second)
		best, found := 0.0, false
		for _, seg := range segments {
			eachRollingMean(seg, n, func(mean float64) {
				if !found || mean > best {
					best = mean
					found = true
				}
			})
		}
		if found {
			out[d] = best
		}
	}
	return out
}

// NormalizedPower returns the fourth root of the mean fourth power of the
// 30-second rolling average. The second result is false when fewer than 30
// valid power samples exist or no complete window could be formed.
func NormalizedPower(samples []Sample, opts Options) (float64, bool) {
	if ValidPowerCount(samples) < NPWindow {
		return 0, false
	}

	fourth := make([]float64, 0, len(samples))
	for _, seg := range powerSegments(samples, opts) {
		eachRollingMean(seg, NPWindow, func(mean float64) {
			sq := mean * mean
			fourth = append(fourth, sq*sq)
		})
	}
	if len(fourth) == 0 {
		return 0, false
	}
	return math.Sqrt(math.Sqrt(floats.Sum(fourth) / float64(len(fourth)))), true
}

// MovingSeconds returns the TSS time term for samples. With the moving basis
// a workout that never reports speed falls back to its full length.
func MovingSeconds(samples []Sample, basis TimeBasis) float64 {
	if basis == TimeBasisSamples {
		return float64(len(samples))
	}
	moving, withSpeed := 0, 0
	for _, s := range samples {
		if s.Speed != nil {
			withSpeed++
		}
		if s.Moving() {
			moving++
		}
	}
	if withSpeed == 0 {
		return float64(len(samples))
	}
	return float64(moving)
}

// ComputeTSS returns the intensity factor and training stress score.
func ComputeTSS(np, ftp, movingSeconds float64) (float64, float64, error) {
	if err := CheckFTP(ftp); err != nil {
		return 0, 0, err
	}
	intensity := np / ftp
	if movingSeconds < 0 {
		movingSeconds = 0
	}
	return intensity, intensity * intensity * movingSeconds / secondsPerHour * 100.0, nil
}

// DurationLabel renders a rolling duration the way it is reported, e.g. "5s",
// "1m" or "1h".
func DurationLabel(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return strconv.Itoa(int(d/time.Hour)) + "h"
	case d >= time.Minute && d%time.Minute == 0:
		return strconv.Itoa(int(d/time.Minute)) + "m"
	default:
		return strconv.Itoa(int(d/time.Second)) + "s"
	}
}

package cycling

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

var testStart = time.Date(2024, 6, 12, 7, 30, 0, 0, time.UTC)

func steadyWorkout(id string, start time.Time, n int, power, speed float64) *Workout {
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{
			Time:  start.Add(time.Duration(i) * time.Second),
			Power: Float(power),
			Speed: Float(speed),
		}
	}
	return &Workout{ID: id, Start: start, Samples: samples, DurationS: float64(n)}
}

func TestClassifyZoneBoundaries(t *testing.T) {
	cases := []struct {
		power float64
		want  int
	}{
		{0, 0},
		{549, 0},
		{550, 1},
		{749, 1},
		{750, 2},
		{900, 3},
		{1050, 4},
		{1200, 5},
		{1499, 5},
		{1500, 6},
		{4000, 6},
	}
	for _, tc := range cases {
		got, err := ClassifyZone(tc.power, 1000)
		if err != nil {
			t.Fatalf("ClassifyZone(%v): %v", tc.power, err)
		}
		if got != tc.want {
			t.Fatalf("ClassifyZone(%v) = %d, want %d", tc.power, got, tc.want)
		}
	}
}

func TestClassifyZoneBoundariesAtOddFTP(t *testing.T) {
	const ftp = 237.0
	for i := 1; i < NumZones; i++ {
		edge := ZoneBoundaries[i] * ftp
		below, err := ClassifyZone(edge-0.001*ftp, ftp)
		if err != nil {
			t.Fatal(err)
		}
		at, _ := ClassifyZone(edge, ftp)
		if below != i-1 || at != i {
			t.Fatalf("boundary %v: below=%d at=%d, want %d/%d", ZoneBoundaries[i], below, at, i-1, i)
		}
	}
	if got, _ := ClassifyZone(0.549*ftp, ftp); got != 0 {
		t.Fatalf("0.549*ftp -> %d, want 0", got)
	}
	if got, _ := ClassifyZone(0.55*ftp, ftp); got != 1 {
		t.Fatalf("0.55*ftp -> %d, want 1", got)
	}
}

func TestClassifyZoneIsMonotonic(t *testing.T) {
	for _, ftp := range []float64{150, 237, 312.5} {
		prev := 0
		for p := 0.0; p <= 2*ftp; p += 0.25 {
			z, err := ClassifyZone(p, ftp)
			if err != nil {
				t.Fatal(err)
			}
			if z < prev {
				t.Fatalf("ftp %v: zone dropped from %d to %d at %v W", ftp, prev, z, p)
			}
			prev = z
		}
		if prev != NumZones-1 {
			t.Fatalf("ftp %v: sweep ended in zone %d", ftp, prev)
		}
	}
}

func TestClassifyZoneRejectsInvalidFTP(t *testing.T) {
	for _, ftp := range []float64{0, -200, math.NaN()} {
		if _, err := ClassifyZone(150, ftp); !errors.Is(err, ErrInvalidFTP) {
			t.Fatalf("ftp %v: expected ErrInvalidFTP, got %v", ftp, err)
		}
	}
	if _, _, err := ComputeTSS(200, 0, 3600); !errors.Is(err, ErrInvalidFTP) {
		t.Fatalf("ComputeTSS: expected ErrInvalidFTP, got %v", err)
	}
}

func TestZoneRange(t *testing.T) {
	if got := ZoneRange(0, 200); got != "0 - 110 W" {
		t.Fatalf("zone 1 range = %q", got)
	}
	if got := ZoneRange(3, 200); got != "180 - 210 W" {
		t.Fatalf("zone 4 range = %q", got)
	}
	if got := ZoneRange(6, 200); got != "300+ W" {
		t.Fatalf("zone 7 range = %q", got)
	}
}

func TestComputeTSSOneHourAtThreshold(t *testing.T) {
	intensity, tss, err := ComputeTSS(250, 250, 3600)
	if err != nil {
		t.Fatalf("ComputeTSS: %v", err)
	}
	if intensity != 1 || math.Abs(tss-100) > 1e-9 {
		t.Fatalf("IF=%v TSS=%v, want 1 and 100", intensity, tss)
	}
}

func TestNormalizedPowerRequiresFullWindow(t *testing.T) {
	w := steadyWorkout("short", testStart, NPWindow-1, 300, 8)
	if _, ok := NormalizedPower(w.Samples, Options{}); ok {
		t.Fatal("expected NP to be unavailable below one window")
	}

	w = steadyWorkout("sparse", testStart, 60, 300, 8)
	for i := range w.Samples {
		if i%2 == 0 {
			w.Samples[i].Power = nil
		}
	}
	if _, ok := NormalizedPower(w.Samples, Options{WindowMode: WindowSamples}); ok {
		t.Fatal("expected NP to be unavailable with 30 valid samples split by nulls")
	}
}

func TestNormalizedPowerConstantEqualsPower(t *testing.T) {
	w := steadyWorkout("steady", testStart, 1800, 215, 9)
	np, ok := NormalizedPower(w.Samples, Options{})
	if !ok {
		t.Fatal("expected NP")
	}
	if math.Abs(np-215) > 1e-9 {
		t.Fatalf("NP = %v, want 215", np)
	}
}

func TestNormalizedPowerExceedsAverageForVariableEffort(t *testing.T) {
	w := steadyWorkout("intervals", testStart, 600, 100, 9)
	for i := 120; i < 240; i++ {
		w.Samples[i].Power = Float(400)
	}
	np, ok := NormalizedPower(w.Samples, Options{})
	if !ok {
		t.Fatal("expected NP")
	}
	if np <= Summarize(w).AvgPowerWatts {
		t.Fatalf("NP %v should exceed average power %v", np, Summarize(w).AvgPowerWatts)
	}
}

func TestRollingMaxPowerSkipsDurationsLongerThanRide(t *testing.T) {
	w := steadyWorkout("spike", testStart, 120, 100, 9)
	for i := 40; i < 45; i++ {
		w.Samples[i].Power = Float(600)
	}
	best := RollingMaxPower(w.Samples, MaxPowerDurations, Options{})
	if got := best[5*time.Second]; math.Abs(got-600) > 1e-9 {
		t.Fatalf("5s best = %v, want 600", got)
	}
	if _, ok := best[time.Minute]; !ok {
		t.Fatal("expected a 1m value for a 2 minute ride")
	}
	if _, ok := best[5*time.Minute]; ok {
		t.Fatal("5m value reported for a 2 minute ride")
	}
	if _, ok := best[time.Hour]; ok {
		t.Fatal("1h value reported for a 2 minute ride")
	}
}

func TestElapsedWindowsDoNotSpanLongGaps(t *testing.T) {
	first := steadyWorkout("a", testStart, 20, 250, 9).Samples
	second := steadyWorkout("b", testStart.Add(20*time.Second+2*time.Minute), 20, 250, 9).Samples
	samples := append(append([]Sample{}, first...), second...)

	if _, ok := RollingMaxPower(samples, []time.Duration{30 * time.Second}, Options{})[30*time.Second]; ok {
		t.Fatal("elapsed window spanned a two minute gap")
	}
	if _, ok := NormalizedPower(samples, Options{}); ok {
		t.Fatal("elapsed NP formed from split segments")
	}
	if _, ok := RollingMaxPower(samples, []time.Duration{30 * time.Second}, Options{WindowMode: WindowSamples})[30*time.Second]; !ok {
		t.Fatal("sample-count window should ignore timestamps")
	}
}

func TestElapsedWindowsFillShortGaps(t *testing.T) {
	first := steadyWorkout("a", testStart, 20, 250, 9).Samples
	second := steadyWorkout("b", testStart.Add(30*time.Second), 20, 250, 9).Samples
	samples := append(append([]Sample{}, first...), second...)

	best := RollingMaxPower(samples, []time.Duration{45 * time.Second}, Options{})
	if got, ok := best[45*time.Second]; !ok || math.Abs(got-250) > 1e-9 {
		t.Fatalf("45s best over a filled gap = %v (%v), want 250", got, ok)
	}
}

func TestAnalyzeSteadyHourScenario(t *testing.T) {
	w := steadyWorkout("steady-hour", testStart, 3600, 200, 8)
	snap, err := Analyze(w, 250, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if snap.NormalizedPower == nil || math.Abs(*snap.NormalizedPower-200) > 1e-9 {
		t.Fatalf("NP = %v, want 200", snap.NormalizedPower)
	}
	if math.Abs(*snap.IntensityFactor-0.8) > 1e-9 {
		t.Fatalf("IF = %v, want 0.8", *snap.IntensityFactor)
	}
	if math.Abs(*snap.TrainingStress-64) > 1e-9 {
		t.Fatalf("TSS = %v, want 64", *snap.TrainingStress)
	}
	if len(snap.Zones) != NumZones {
		t.Fatalf("expected %d zone bins, got %d", NumZones, len(snap.Zones))
	}
	tempo := snap.Zones[2]
	if tempo.Zone != 3 || tempo.Percent != 100 || tempo.Duration != time.Hour {
		t.Fatalf("unexpected tempo bin: %+v", tempo)
	}
	if len(snap.MaxPower) != len(MaxPowerDurations) {
		t.Fatalf("expected every duration for a full hour, got %d", len(snap.MaxPower))
	}
	if snap.Summary.MovingTime != time.Hour {
		t.Fatalf("moving time = %v", snap.Summary.MovingTime)
	}
	if math.Abs(snap.Summary.CaloriesKcal-720) > 1e-9 {
		t.Fatalf("calories = %v, want 720", snap.Summary.CaloriesKcal)
	}
}

func TestAnalyzeMovingTimeExcludesStops(t *testing.T) {
	w := steadyWorkout("stops", testStart, 3600, 250, 8)
	for i := 0; i < 1800; i++ {
		w.Samples[i].Speed = Float(0)
	}
	snap, err := Analyze(w, 250, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if math.Abs(*snap.TrainingStress-50) > 1e-9 {
		t.Fatalf("TSS = %v, want 50", *snap.TrainingStress)
	}

	snap, err = Analyze(w, 250, Options{TimeBasis: TimeBasisSamples})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if math.Abs(*snap.TrainingStress-100) > 1e-9 {
		t.Fatalf("sample-count TSS = %v, want 100", *snap.TrainingStress)
	}
}

func TestAnalyzeLowPowerCoverage(t *testing.T) {
	w := steadyWorkout("dropout", testStart, 100, 180, 7)
	for i := 40; i < len(w.Samples); i++ {
		w.Samples[i].Power = nil
	}
	snap, err := Analyze(w, 200, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if snap.PowerAvailable {
		t.Fatal("power should be unavailable at 40% coverage")
	}
	if len(snap.Zones) != 0 || len(snap.MaxPower) != 0 {
		t.Fatal("zones and best efforts must be omitted when power is unavailable")
	}
	if len(snap.Warnings) == 0 || !strings.Contains(snap.Warnings[0], "power metrics unavailable") {
		t.Fatalf("expected a coverage warning, got %v", snap.Warnings)
	}
	if snap.NormalizedPower != nil || snap.IntensityFactor != nil || snap.TrainingStress != nil {
		t.Fatal("NP, IF and TSS must be omitted below half power coverage")
	}
	if snap.LoadTSS() != 0 {
		t.Fatalf("load TSS = %v, want 0", snap.LoadTSS())
	}
}

func TestAnalyzeSparsePowerContributesNoLoad(t *testing.T) {
	w := steadyWorkout("sparse", testStart, 1000, 300, 8)
	for i := 100; i < len(w.Samples); i++ {
		w.Samples[i].Power = nil
	}
	snap, err := Analyze(w, 250, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if snap.PowerAvailable || snap.TrainingStress != nil {
		t.Fatalf("10%% coverage reported power metrics: available=%v tss=%v", snap.PowerAvailable, snap.TrainingStress)
	}
}

func TestAnalyzeHourAtThresholdIsExact(t *testing.T) {
	w := steadyWorkout("threshold-hour", testStart, 3600, 200, 0)
	for i := range w.Samples {
		w.Samples[i].Speed = nil
	}
	snap, err := Analyze(w, 200, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if *snap.NormalizedPower != 200 || *snap.IntensityFactor != 1 || *snap.TrainingStress != 100 {
		t.Fatalf("NP/IF/TSS = %v/%v/%v, want 200/1/100", *snap.NormalizedPower, *snap.IntensityFactor, *snap.TrainingStress)
	}
	threshold := snap.Zones[3]
	if threshold.Zone != 4 || threshold.Percent != 100 || threshold.Duration != time.Hour {
		t.Fatalf("unexpected threshold bin: %+v", threshold)
	}
	for _, mode := range []WindowMode{WindowElapsed, WindowSamples} {
		np, ok := NormalizedPower(w.Samples, Options{WindowMode: mode})
		if !ok || np != 200 {
			t.Fatalf("mode %v: NP = %v (%v), want exactly 200", mode, np, ok)
		}
	}
}

func TestAnalyzeRejectsInvalidInput(t *testing.T) {
	if _, err := Analyze(steadyWorkout("x", testStart, 10, 100, 5), 0, Options{}); !errors.Is(err, ErrInvalidFTP) {
		t.Fatalf("expected ErrInvalidFTP, got %v", err)
	}
	if _, err := Analyze(&Workout{ID: "empty"}, 200, Options{}); !errors.Is(err, ErrEmptyWorkout) {
		t.Fatalf("expected ErrEmptyWorkout, got %v", err)
	}
}

func TestSummarizeElevationGainIgnoresJumps(t *testing.T) {
	w := steadyWorkout("climb", testStart, 5, 150, 5)
	for i, e := range []float64{100, 102, 101, 125, 127} {
		w.Samples[i].Elevation = Float(e)
	}
	s := Summarize(w)
	if s.ElevationGainM != 4 {
		t.Fatalf("elevation gain = %v, want 4", s.ElevationGainM)
	}
	if s.MaxElevationM != 127 || s.MinElevationM != 100 {
		t.Fatalf("elevation range = %v..%v", s.MinElevationM, s.MaxElevationM)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(3725 * time.Second); got != "1:02:05" {
		t.Fatalf("FormatDuration = %q", got)
	}
	if got := DurationLabel(20 * time.Minute); got != "20m" {
		t.Fatalf("DurationLabel = %q", got)
	}
}

package cycling

import (
	"fmt"
	"math"
	"strings"
)

// VolumeGuideline is one row of the TrainingPeaks season volume table.
type VolumeGuideline struct {
	Category    string
	AnnualHours [2]float64
	WeeklyHours [2]float64
	AnnualTSS   [2]float64
	WeeklyTSS   [2]float64
	TargetCTL   [2]float64
}

// VolumeGuidelines lists reference training volume by racing category.
var VolumeGuidelines = []VolumeGuideline{
	{Category: "1/2", AnnualHours: [2]float64{700, 1000}, WeeklyHours: [2]float64{14, 20}, AnnualTSS: [2]float64{40000, 50000}, WeeklyTSS: [2]float64{770, 960}, TargetCTL: [2]float64{105, 120}},
	{Category: "3", AnnualHours: [2]float64{500, 700}, WeeklyHours: [2]float64{9, 14}, AnnualTSS: [2]float64{25000, 35000}, WeeklyTSS: [2]float64{480, 673}, TargetCTL: [2]float64{85, 95}},
	{Category: "4", AnnualHours: [2]float64{350, 500}, WeeklyHours: [2]float64{6, 10}, AnnualTSS: [2]float64{20000, 30000}, WeeklyTSS: [2]float64{385, 577}, TargetCTL: [2]float64{70, 85}},
	{Category: "5", AnnualHours: [2]float64{220, 350}, WeeklyHours: [2]float64{3, 8}, AnnualTSS: [2]float64{10000, 20000}, WeeklyTSS: [2]float64{192, 385}, TargetCTL: [2]float64{50, 70}},
	{Category: "Masters", AnnualHours: [2]float64{350, 650}, WeeklyHours: [2]float64{8, 12}, AnnualTSS: [2]float64{15000, 25000}, WeeklyTSS: [2]float64{288, 480}, TargetCTL: [2]float64{60, 100}},
}

// GuidelinesForCTL returns the categories whose target CTL range contains ctl.
func GuidelinesForCTL(ctl float64) []VolumeGuideline {
	var out []VolumeGuideline
	for _, g := range VolumeGuidelines {
		if ctl >= g.TargetCTL[0] && ctl <= g.TargetCTL[1] {
			out = append(out, g)
		}
	}
	return out
}

// BuildTrainingNotes renders a plain-text summary of one workout snapshot.
func BuildTrainingNotes(m *MetricSnapshot) string {
	if m == nil {
		return ""
	}
	s := m.Summary

	var b strings.Builder
	if !m.Start.IsZero() {
		fmt.Fprintf(&b, "Start: %s\n", m.Start.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(
		&b,
		"Distance %.2f km | Duration %s | Moving %s\n",
		s.DistanceM/1000.0,
		FormatDuration(s.Duration),
		FormatDuration(s.MovingTime),
	)
	fmt.Fprintf(
		&b,
		"Speed %.2f avg / %.2f max km/h | Calories %.0f kcal | Power %.0f avg W\n",
		mpsToKmh(s.AvgSpeedMps),
		mpsToKmh(s.MaxSpeedMps),
		s.CaloriesKcal,
		s.AvgPowerWatts,
	)
	fmt.Fprintf(
		&b,
		"Elevation %.0f max / %.0f min m | Gain %.0f m\n",
		s.MaxElevationM,
		s.MinElevationM,
		s.ElevationGainM,
	)
	if s.CadenceReported {
		fmt.Fprintf(&b, "Cadence %.0f avg / %.0f max rpm\n", s.AvgCadence, s.MaxCadence)
	}
	if s.AvgHeartRate > 0 {
		fmt.Fprintf(&b, "HR %.0f avg / %.0f max bpm\n", s.AvgHeartRate, s.MaxHeartRate)
	}

	if m.TrainingStress != nil {
		fmt.Fprintf(
			&b,
			"Load NP %.0f W | IF %.2f | TSS %.0f | FTP %.0f W\n",
			*m.NormalizedPower,
			*m.IntensityFactor,
			*m.TrainingStress,
			m.FTPWatts,
		)
	} else {
		b.WriteString("Load NP/IF/TSS unavailable\n")
	}

	if len(m.MaxPower) > 0 {
		b.WriteString("\nMax Power\n")
		for _, e := range m.MaxPower {
			fmt.Fprintf(&b, "- %s: %.0f W\n", e.Label, e.Watts)
		}
	}

	if len(m.Zones) > 0 {
		b.WriteString("\nZone Distribution\n")
		for _, z := range m.Zones {
			fmt.Fprintf(
				&b,
				"- Z%d %s (%s): %s (%.1f%%)\n",
				z.Zone,
				z.Description,
				z.Range,
				FormatDuration(z.Duration),
				z.Percent,
			)
		}
	}

	if len(m.Warnings) > 0 {
		b.WriteString("\nWarnings\n")
		for _, w := range m.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	b.WriteString("\nCoaching Notes\n- ")
	b.WriteString(sessionAssessment(m))
	b.WriteByte('\n')

	return strings.TrimSpace(b.String())
}

// BuildLoadNotes renders the current fitness, fatigue and form.
func BuildLoadNotes(status LoadStatus, weeks []WeekBucket) string {
	var b strings.Builder
	fmt.Fprintf(
		&b,
		"Date %s | CTL %.1f (%+.1f) | ATL %.1f (%+.1f) | TSB %.1f (%+.1f)\n",
		status.Date.Format("2006-01-02"),
		status.CTL, status.DeltaCTL,
		status.ATL, status.DeltaATL,
		status.TSB, status.DeltaTSB,
	)
	fmt.Fprintf(&b, "Form: %s\n", FormDescription(status.TSB))

	if len(weeks) > 0 {
		total := 0.0
		active := 0
		for _, w := range weeks {
			total += w.TSS
			if w.Workouts > 0 {
				active++
			}
		}
		fmt.Fprintf(&b, "Weekly TSS %.0f avg over %d weeks (%d with rides) | last week %.0f\n",
			total/float64(len(weeks)), len(weeks), active, weeks[len(weeks)-1].TSS)
	}

	if matches := GuidelinesForCTL(status.CTL); len(matches) > 0 {
		names := make([]string, 0, len(matches))
		for _, g := range matches {
			names = append(names, g.Category)
		}
		fmt.Fprintf(&b, "CTL is within the target range of category %s\n", strings.Join(names, ", "))
	}
	return strings.TrimSpace(b.String())
}

func sessionAssessment(m *MetricSnapshot) string {
	if m.IntensityFactor == nil {
		return "Not enough power data to assess intensity."
	}
	intensity := *m.IntensityFactor
	switch {
	case intensity >= 1.05:
		return "Race-level intensity; follow with an easy endurance day."
	case intensity >= 0.9:
		return "High-intensity load for this duration; prioritize sleep and fueling to absorb the session."
	case intensity >= 0.75:
		return "Solid tempo stimulus that builds aerobic capacity."
	default:
		return "Aerobic load appears manageable and supports base development."
	}
}

func mpsToKmh(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return v * 3.6
}

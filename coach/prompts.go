package coach

import (
	"fmt"
	"strings"

	cycling "github.com/lucasjlepore/cycling-analyzer"
)

// DebriefPrompt asks for a 50 word debrief from the zone table and load.
func DebriefPrompt(snap *cycling.MetricSnapshot) string {
	var b strings.Builder
	b.WriteString("Debrief the user's workout in 50 words.\n")
	if snap == nil {
		return b.String()
	}
	if len(snap.Zones) > 0 {
		b.WriteString("Zone | Description | Range | Time | Percent\n")
		for _, z := range snap.Zones {
			fmt.Fprintf(&b, "%d | %s | %s | %s | %.1f%%\n",
				z.Zone, z.Description, z.Range, cycling.FormatDuration(z.Duration), z.Percent)
		}
	}
	if snap.IntensityFactor != nil && snap.TrainingStress != nil {
		fmt.Fprintf(&b, "Intensity Factor = %.2f\nTraining Stress Score = %.0f.", *snap.IntensityFactor, *snap.TrainingStress)
	} else {
		b.WriteString("Intensity Factor and Training Stress Score are unavailable.")
	}
	return b.String()
}

// LoadPrompt asks for advice on the current fitness, fatigue and form.
func LoadPrompt(status cycling.LoadStatus, weeks []cycling.WeekBucket) string {
	return "Advise the user on their next week of training in 80 words.\n" + cycling.BuildLoadNotes(status, weeks)
}

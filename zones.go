package cycling

import (
	"fmt"
	"math"
	"time"
)

// ZoneBoundaries are the lower bounds of the seven power zones as fractions of FTP.
var ZoneBoundaries = [...]float64{0, 0.55, 0.75, 0.90, 1.05, 1.20, 1.50}

// ZoneNames describe each zone, indexed like ZoneBoundaries.
var ZoneNames = [...]string{
	"Active Recovery",
	"Endurance",
	"Tempo",
	"Threshold",
	"VO2",
	"Anaerobic Capacity",
	"Neuromuscular Power",
}

// NumZones is the size of the zone table.
const NumZones = len(ZoneBoundaries)

// ZoneBin is one row of a zone histogram.
type ZoneBin struct {
	Zone        int           `json:"zone"`
	Description string        `json:"description"`
	Range       string        `json:"range"`
	Percent     float64       `json:"percent"`
	Samples     int           `json:"samples"`
	Duration    time.Duration `json:"duration_ns"`
}

// CheckFTP returns ErrInvalidFTP unless ftp is positive and finite.
func CheckFTP(ftp float64) error {
	if !(ftp > 0) || math.IsInf(ftp, 0) {
		return ErrInvalidFTP
	}
	return nil
}

// ClassifyZone maps a power value to a zone index 0..6. A value exactly on a
// boundary belongs to the upper zone.
func ClassifyZone(power, ftp float64) (int, error) {
	if err := CheckFTP(ftp); err != nil {
		return 0, err
	}
	for i := 1; i < NumZones; i++ {
		if power < ZoneBoundaries[i]*ftp {
			return i - 1, nil
		}
	}
	return NumZones - 1, nil
}

// ZoneRange renders the watt range of zone for display, e.g. "150 - 180 W".
// The top zone is open ended.
func ZoneRange(zone int, ftp float64) string {
	if zone < 0 || zone >= NumZones {
		return ""
	}
	lo := ftp * ZoneBoundaries[zone]
	if zone == NumZones-1 {
		return fmt.Sprintf("%.0f+ W", lo)
	}
	return fmt.Sprintf("%.0f - %.0f W", lo, ftp*ZoneBoundaries[zone+1])
}

// ZoneHistogram counts valid power samples per zone. Each sample is assumed to
// span one second.
func ZoneHistogram(samples []Sample, ftp float64) ([]ZoneBin, error) {
	if !(ftp > 0) {
		return nil, ErrInvalidFTP
	}

	counts := make([]int, NumZones)
	total := 0
	for _, s := range samples {
		if !s.HasPower() {
			continue
		}
		zone, err := ClassifyZone(*s.Power, ftp)
		if err != nil {
			return nil, err
		}
		counts[zone]++
		total++
	}

	out := make([]ZoneBin, 0, NumZones)
	for i := 0; i < NumZones; i++ {
		bin := ZoneBin{
			Zone:        i + 1,
			Description: ZoneNames[i],
			Range:       ZoneRange(i, ftp),
			Samples:     counts[i],
			Duration:    time.Duration(counts[i]) * time.Second,
		}
		if total > 0 {
			bin.Percent = math.Round(float64(counts[i])/float64(total)*1000) / 10
		}
		out = append(out, bin)
	}
	return out, nil
}

// FormatDuration renders d as H:MM:SS.
func FormatDuration(d time.Duration) string {
	total := int64(d.Round(time.Second) / time.Second)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

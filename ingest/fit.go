package ingest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/tormoder/fit"
)

const semicirclesToDeg = 180.0 / 2147483648.0

// ParseFIT decodes the record messages of an activity FIT file.
func ParseFIT(r io.Reader, id string, opts Options) (*cycling.Workout, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}

	records := make([]*fit.RecordMsg, 0, len(activity.Records))
	for _, rec := range activity.Records {
		if rec == nil || validTimeOrZero(rec.Timestamp).IsZero() {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("FIT has no timed records: %w", cycling.ErrEmptyWorkout)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	w := &cycling.Workout{ID: id, Source: string(FormatFIT)}
	var lastDistance float64
	for _, rec := range records {
		s := cycling.Sample{Time: opts.localize(rec.Timestamp)}
		if v, ok := extractPower(rec); ok {
			s.Power = cycling.Float(v)
		}
		if v, ok := extractSpeed(rec); ok {
			s.Speed = cycling.Float(v)
		}
		if v, ok := extractCadence(rec); ok {
			s.Cadence = cycling.Float(v)
		}
		if v, ok := extractHeartRate(rec); ok {
			s.HeartRate = cycling.Float(v)
		}
		if v, ok := extractAltitude(rec); ok {
			s.Elevation = cycling.Float(v)
		}
		if lat, lon, ok := extractPosition(rec); ok {
			s.Latitude, s.Longitude = cycling.Float(lat), cycling.Float(lon)
		}
		if d := safePositive(rec.GetDistanceScaled()); d > 0 {
			s.Distance = cycling.Float(d)
			if d > lastDistance {
				lastDistance = d
			}
		}
		w.Samples = append(w.Samples, s)
	}

	w.Start = w.Samples[0].Time
	w.DistanceM = lastDistance
	w.DurationS = w.Samples[len(w.Samples)-1].Time.Sub(w.Samples[0].Time).Seconds()
	if len(activity.Sessions) > 0 && activity.Sessions[0] != nil {
		session := activity.Sessions[0]
		w.Sport = fmt.Sprint(session.Sport)
		if start := validTimeOrZero(session.StartTime); !start.IsZero() {
			w.Start = opts.localize(start)
		}
		if d := safePositive(session.GetTotalDistanceScaled()); d > 0 {
			w.DistanceM = d
		}
		if d := safePositive(session.GetTotalTimerTimeScaled()); d > 0 {
			w.DurationS = d
		}
	}
	return w, nil
}

func extractPower(rec *fit.RecordMsg) (float64, bool) {
	if rec.Power == math.MaxUint16 {
		return 0, false
	}
	return float64(rec.Power), true
}

func extractHeartRate(rec *fit.RecordMsg) (float64, bool) {
	if rec.HeartRate == math.MaxUint8 {
		return 0, false
	}
	return float64(rec.HeartRate), true
}

func extractCadence(rec *fit.RecordMsg) (float64, bool) {
	cad256 := safePositive(rec.GetCadence256Scaled())
	if cad256 > 0 {
		return cad256, true
	}
	if rec.Cadence == math.MaxUint8 {
		return 0, false
	}
	return float64(rec.Cadence), true
}

func extractSpeed(rec *fit.RecordMsg) (float64, bool) {
	speed := rec.GetEnhancedSpeedScaled()
	if isFinite(speed) && speed >= 0 {
		return speed, true
	}
	speed = rec.GetSpeedScaled()
	if isFinite(speed) && speed >= 0 {
		return speed, true
	}
	return 0, false
}

// Altitude is stored with scale 5 and offset 500.
func extractAltitude(rec *fit.RecordMsg) (float64, bool) {
	if rec.Altitude == math.MaxUint16 {
		return 0, false
	}
	return float64(rec.Altitude)/5.0 - 500.0, true
}

func extractPosition(rec *fit.RecordMsg) (float64, float64, bool) {
	if rec.PositionLat.Semicircles() == 0 || rec.PositionLong.Semicircles() == 0 {
		return 0, 0, false
	}
	lat := float64(rec.PositionLat.Semicircles()) * semicirclesToDeg
	lon := float64(rec.PositionLong.Semicircles()) * semicirclesToDeg
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

func validTimeOrZero(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
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

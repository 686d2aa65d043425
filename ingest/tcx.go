package ingest

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
)

type tcxDatabase struct {
	Activities []tcxActivity `xml:"Activities>Activity"`
}

type tcxActivity struct {
	Sport string   `xml:"Sport,attr"`
	ID    string   `xml:"Id"`
	Laps  []tcxLap `xml:"Lap"`
}

type tcxLap struct {
	StartTime        string          `xml:"StartTime,attr"`
	TotalTimeSeconds float64         `xml:"TotalTimeSeconds"`
	DistanceMeters   float64         `xml:"DistanceMeters"`
	Trackpoints      []tcxTrackpoint `xml:"Track>Trackpoint"`
}

type tcxTrackpoint struct {
	Time      string   `xml:"Time"`
	Latitude  *float64 `xml:"Position>LatitudeDegrees"`
	Longitude *float64 `xml:"Position>LongitudeDegrees"`
	Altitude  *float64 `xml:"AltitudeMeters"`
	Distance  *float64 `xml:"DistanceMeters"`
	HeartRate *float64 `xml:"HeartRateBpm>Value"`
	Cadence   *float64 `xml:"Cadence"`
	Speed     *float64 `xml:"Extensions>TPX>Speed"`
	Watts     *float64 `xml:"Extensions>TPX>Watts"`
}

// ParseTCX decodes the first activity of a Training Center XML document.
func ParseTCX(r io.Reader, id string, opts Options) (*cycling.Workout, error) {
	var doc tcxDatabase
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode TCX: %w", err)
	}
	if len(doc.Activities) == 0 {
		return nil, fmt.Errorf("TCX has no activity: %w", cycling.ErrEmptyWorkout)
	}
	act := doc.Activities[0]

	w := &cycling.Workout{ID: id, Source: string(FormatTCX), Sport: act.Sport}
	var lastDistance float64
	for _, lap := range act.Laps {
		w.DurationS += lap.TotalTimeSeconds
		w.DistanceM += lap.DistanceMeters
		for i, tp := range lap.Trackpoints {
			ts, err := parseTCXTime(tp.Time)
			if err != nil {
				return nil, fmt.Errorf("trackpoint %d: %w", i, err)
			}
			if tp.Distance != nil && *tp.Distance > lastDistance {
				lastDistance = *tp.Distance
			}
			w.Samples = append(w.Samples, cycling.Sample{
				Time:      opts.localize(ts),
				Power:     tp.Watts,
				Speed:     tp.Speed,
				Cadence:   tp.Cadence,
				Elevation: tp.Altitude,
				Latitude:  tp.Latitude,
				Longitude: tp.Longitude,
				HeartRate: tp.HeartRate,
				Distance:  tp.Distance,
			})
		}
	}
	if len(w.Samples) == 0 {
		return nil, fmt.Errorf("TCX has no trackpoints: %w", cycling.ErrEmptyWorkout)
	}

	sort.SliceStable(w.Samples, func(i, j int) bool {
		return w.Samples[i].Time.Before(w.Samples[j].Time)
	})
	w.Start = w.Samples[0].Time
	if start, err := parseTCXTime(act.ID); err == nil {
		w.Start = opts.localize(start)
	}
	if w.DistanceM <= 0 {
		w.DistanceM = lastDistance
	}
	if w.DurationS <= 0 {
		w.DurationS = w.Samples[len(w.Samples)-1].Time.Sub(w.Samples[0].Time).Seconds()
	}
	return w, nil
}

func parseTCXTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

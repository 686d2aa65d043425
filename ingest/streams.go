package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
)

// Stream is one channel of a cloud activity stream set, keyed by type.
type Stream struct {
	OriginalSize int        `json:"original_size"`
	Resolution   string     `json:"resolution"`
	SeriesType   string     `json:"series_type"`
	Data         []*float64 `json:"data"`
}

// LatLngStream holds [lat, lng] pairs.
type LatLngStream struct {
	OriginalSize int         `json:"original_size"`
	Resolution   string      `json:"resolution"`
	SeriesType   string      `json:"series_type"`
	Data         [][]float64 `json:"data"`
}

// StreamSet is the key_by_type stream response of an activity.
type StreamSet struct {
	Time           *Stream       `json:"time"`
	Distance       *Stream       `json:"distance"`
	VelocitySmooth *Stream       `json:"velocity_smooth"`
	Watts          *Stream       `json:"watts"`
	Cadence        *Stream       `json:"cadence"`
	HeartRate      *Stream       `json:"heartrate"`
	Altitude       *Stream       `json:"altitude"`
	LatLng         *LatLngStream `json:"latlng"`
}

// StreamActivity is the summary of the activity a stream set belongs to.
type StreamActivity struct {
	ID             int64  `json:"id"`
	Type           string `json:"type"`
	StartDateLocal string `json:"start_date_local"`
}

// StreamFile is the on-disk form of a downloaded activity.
type StreamFile struct {
	Activity StreamActivity `json:"activity"`
	Streams  StreamSet      `json:"streams"`
}

// IsRide reports whether an activity type counts toward cycling load.
func IsRide(activityType string) bool {
	switch activityType {
	case "Ride", "VirtualRide":
		return true
	}
	return false
}

// ParseStreamSet decodes a StreamFile. Sample times are offsets from the
// activity's local start, so calendar days follow the rider's local date.
func ParseStreamSet(r io.Reader, id string) (*cycling.Workout, error) {
	var file StreamFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode stream set: %w", err)
	}
	if file.Activity.Type != "" && !IsRide(file.Activity.Type) {
		return nil, fmt.Errorf("%s: %w", file.Activity.Type, ErrNotRide)
	}

	var start time.Time
	if file.Activity.StartDateLocal != "" {
		t, err := time.Parse(time.RFC3339, file.Activity.StartDateLocal)
		if err != nil {
			return nil, fmt.Errorf("parse start_date_local: %w", err)
		}
		start = t
	}
	if id == "" && file.Activity.ID != 0 {
		id = strconv.FormatInt(file.Activity.ID, 10)
	}

	set := file.Streams
	n := streamLen(set.Time)
	for _, s := range []*Stream{set.Distance, set.VelocitySmooth, set.Watts, set.Cadence, set.HeartRate, set.Altitude} {
		if l := streamLen(s); l > n {
			n = l
		}
	}
	if set.LatLng != nil && len(set.LatLng.Data) > n {
		n = len(set.LatLng.Data)
	}
	if n == 0 {
		return nil, fmt.Errorf("stream set has no data: %w", cycling.ErrEmptyWorkout)
	}

	w := &cycling.Workout{ID: id, Source: string(FormatStreams), Sport: file.Activity.Type, Start: start}
	w.Samples = make([]cycling.Sample, n)
	for i := range w.Samples {
		offset := float64(i)
		if v := streamAt(set.Time, i); v != nil {
			offset = *v
		}
		s := cycling.Sample{
			Time:      start.Add(time.Duration(offset * float64(time.Second))),
			Power:     streamAt(set.Watts, i),
			Speed:     streamAt(set.VelocitySmooth, i),
			Cadence:   streamAt(set.Cadence, i),
			HeartRate: streamAt(set.HeartRate, i),
			Elevation: streamAt(set.Altitude, i),
			Distance:  streamAt(set.Distance, i),
		}
		if set.LatLng != nil && i < len(set.LatLng.Data) && len(set.LatLng.Data[i]) == 2 {
			s.Latitude = cycling.Float(set.LatLng.Data[i][0])
			s.Longitude = cycling.Float(set.LatLng.Data[i][1])
		}
		w.Samples[i] = s
	}

	last := w.Samples[n-1]
	w.DurationS = last.Time.Sub(w.Samples[0].Time).Seconds()
	if last.Distance != nil {
		w.DistanceM = *last.Distance
	}
	return w, nil
}

func streamLen(s *Stream) int {
	if s == nil {
		return 0
	}
	return len(s.Data)
}

func streamAt(s *Stream, i int) *float64 {
	if s == nil || i >= len(s.Data) || s.Data[i] == nil {
		return nil
	}
	return cycling.Float(*s.Data[i])
}

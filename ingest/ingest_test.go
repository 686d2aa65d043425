package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/tormoder/fit"
)

const sampleTCX = `<?xml version="1.0" encoding="UTF-8"?>
<TrainingCenterDatabase xmlns="http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2" xmlns:ns3="http://www.garmin.com/xmlschemas/ActivityExtension/v2">
  <Activities>
    <Activity Sport="Biking">
      <Id>2024-06-09T22:30:00Z</Id>
      <Lap StartTime="2024-06-09T22:30:00Z">
        <TotalTimeSeconds>3</TotalTimeSeconds>
        <DistanceMeters>21.5</DistanceMeters>
        <Track>
          <Trackpoint>
            <Time>2024-06-09T22:30:00Z</Time>
            <Position><LatitudeDegrees>22.28</LatitudeDegrees><LongitudeDegrees>114.15</LongitudeDegrees></Position>
            <AltitudeMeters>12.4</AltitudeMeters>
            <DistanceMeters>0</DistanceMeters>
            <HeartRateBpm><Value>120</Value></HeartRateBpm>
            <Cadence>85</Cadence>
            <Extensions><ns3:TPX><ns3:Speed>7.1</ns3:Speed><ns3:Watts>210</ns3:Watts></ns3:TPX></Extensions>
          </Trackpoint>
          <Trackpoint>
            <Time>2024-06-09T22:30:01Z</Time>
            <AltitudeMeters>12.6</AltitudeMeters>
            <DistanceMeters>7.1</DistanceMeters>
            <Extensions><ns3:TPX><ns3:Speed>7.2</ns3:Speed></ns3:TPX></Extensions>
          </Trackpoint>
          <Trackpoint>
            <Time>2024-06-09T22:30:02Z</Time>
            <DistanceMeters>14.3</DistanceMeters>
            <Extensions><ns3:TPX><ns3:Speed>0</ns3:Speed><ns3:Watts>0</ns3:Watts></ns3:TPX></Extensions>
          </Trackpoint>
        </Track>
      </Lap>
    </Activity>
  </Activities>
</TrainingCenterDatabase>`

func TestParseTCXReadsTrackpointExtensions(t *testing.T) {
	w, err := ParseTCX(strings.NewReader(sampleTCX), "ride", Options{})
	if err != nil {
		t.Fatalf("ParseTCX: %v", err)
	}
	if len(w.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(w.Samples))
	}
	first := w.Samples[0]
	if first.Power == nil || *first.Power != 210 || first.Speed == nil || *first.Speed != 7.1 {
		t.Fatalf("unexpected first sample: %+v", first)
	}
	if first.HeartRate == nil || *first.HeartRate != 120 || first.Cadence == nil || *first.Cadence != 85 {
		t.Fatalf("missing heart rate or cadence: %+v", first)
	}
	if first.Latitude == nil || *first.Latitude != 22.28 {
		t.Fatalf("missing position: %+v", first)
	}
	if w.Samples[1].Power != nil {
		t.Fatal("trackpoint without Watts must have nil power")
	}
	if w.Samples[2].Moving() {
		t.Fatal("zero speed sample reported as moving")
	}
	if w.DistanceM != 21.5 || w.DurationS != 3 || w.Sport != "Biking" {
		t.Fatalf("unexpected metadata: distance=%v duration=%v sport=%q", w.DistanceM, w.DurationS, w.Sport)
	}
}

func TestParseTCXLocalizesCalendarDay(t *testing.T) {
	hkt := time.FixedZone("HKT", 8*3600)
	w, err := ParseTCX(strings.NewReader(sampleTCX), "ride", Options{Location: hkt})
	if err != nil {
		t.Fatalf("ParseTCX: %v", err)
	}
	if got := w.Day(); !got.Equal(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("local day = %s, want 2024-06-10", got)
	}
	if got := cycling.MondayOf(w.StartTime()); got.Weekday() != time.Monday || got.Day() != 10 {
		t.Fatalf("week start = %s", got)
	}
}

func TestParseTCXRejectsEmptyActivity(t *testing.T) {
	doc := `<TrainingCenterDatabase><Activities><Activity Sport="Biking"><Id>2024-06-09T22:30:00Z</Id></Activity></Activities></TrainingCenterDatabase>`
	if _, err := ParseTCX(strings.NewReader(doc), "empty", Options{}); !errors.Is(err, cycling.ErrEmptyWorkout) {
		t.Fatalf("expected ErrEmptyWorkout, got %v", err)
	}
}

func TestParseFITExtractsRecords(t *testing.T) {
	start := time.Date(2024, 6, 12, 6, 0, 0, 0, time.UTC)
	data := buildTestFIT(t, start, 40)

	w, err := ParseFIT(bytes.NewReader(data), "fit-ride", Options{})
	if err != nil {
		t.Fatalf("ParseFIT: %v", err)
	}
	if len(w.Samples) != 40 {
		t.Fatalf("expected 40 samples, got %d", len(w.Samples))
	}
	s := w.Samples[0]
	if s.Power == nil || *s.Power != 245 {
		t.Fatalf("power = %v", s.Power)
	}
	if s.HeartRate == nil || *s.HeartRate != 135 || s.Cadence == nil || *s.Cadence != 92 {
		t.Fatalf("unexpected heart rate or cadence: %+v", s)
	}
	if s.Speed == nil || *s.Speed != 8 {
		t.Fatalf("speed = %v", s.Speed)
	}
	if s.Elevation != nil {
		t.Fatalf("invalid altitude decoded as %v", *s.Elevation)
	}
	if !w.StartTime().Equal(start) {
		t.Fatalf("start = %s", w.StartTime())
	}

	snap, err := cycling.Analyze(w, 245, cycling.Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if snap.NormalizedPower == nil || math.Abs(*snap.NormalizedPower-245) > 1e-9 {
		t.Fatalf("NP = %v", snap.NormalizedPower)
	}
}

func TestParseStreamSet(t *testing.T) {
	doc := `{
	  "activity": {"id": 9876, "type": "Ride", "start_date_local": "2024-06-09T23:30:00Z"},
	  "streams": {
	    "time": {"data": [0, 1, 2, 4]},
	    "watts": {"data": [200, null, 220, 230]},
	    "velocity_smooth": {"data": [6.5, 6.6, 0, 6.8]},
	    "distance": {"data": [0, 6.6, 6.6, 20.2]},
	    "latlng": {"data": [[22.1, 114.1], [22.2, 114.2]]}
	  }
	}`
	w, err := ParseStreamSet(strings.NewReader(doc), "")
	if err != nil {
		t.Fatalf("ParseStreamSet: %v", err)
	}
	if w.ID != "9876" || len(w.Samples) != 4 {
		t.Fatalf("unexpected workout: id=%q samples=%d", w.ID, len(w.Samples))
	}
	if w.Samples[1].Power != nil {
		t.Fatal("null watts must stay nil")
	}
	if got := w.Samples[3].Time.Sub(w.Samples[0].Time); got != 4*time.Second {
		t.Fatalf("time offsets not applied: %v", got)
	}
	if w.Samples[2].Latitude != nil || w.Samples[1].Longitude == nil {
		t.Fatal("latlng mapped to the wrong samples")
	}
	if w.DistanceM != 20.2 {
		t.Fatalf("distance = %v", w.DistanceM)
	}
	if !w.Day().Equal(time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("day = %s", w.Day())
	}

	run := `{"activity": {"id": 1, "type": "Run"}, "streams": {"time": {"data": [0]}}}`
	if _, err := ParseStreamSet(strings.NewReader(run), ""); !errors.Is(err, ErrNotRide) {
		t.Fatalf("expected ErrNotRide, got %v", err)
	}
}

func TestLoadHistorySkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("2024-06-09-ride.tcx", sampleTCX)
	write("2024-06-10-broken.tcx", "<TrainingCenterDatabase>")
	write("2024-06-11-run.json", `{"activity": {"id": 1, "type": "Run"}, "streams": {"time": {"data": [0]}}}`)
	write("notes.txt", "ignore me")

	files, err := ListHistory(dir)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(files) != 3 || filepath.Base(files[0]) != "2024-06-09-ride.tcx" {
		t.Fatalf("unexpected file list: %v", files)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	parsed, err := LoadHistory(context.Background(), dir, Options{}, logger)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Workout.ID != "2024-06-09-ride" {
		t.Fatalf("unexpected workouts: %+v", parsed)
	}
	if parsed[0].Fingerprint != Fingerprint([]byte(sampleTCX)) {
		t.Fatal("fingerprint does not match file contents")
	}
}

func buildTestFIT(t *testing.T, start time.Time, n int) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}
	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	event := fit.NewEventMsg()
	event.Timestamp = start
	event.Event = fit.EventTimer
	event.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, event)

	for i := 0; i < n; i++ {
		record := fit.NewRecordMsg()
		record.Timestamp = start.Add(time.Duration(i) * time.Second)
		record.HeartRate = 135
		record.Power = 245
		record.Cadence = 92
		record.Speed = 8000
		activity.Records = append(activity.Records, record)
	}

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}

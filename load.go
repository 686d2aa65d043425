package cycling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// CTLDays and ATLDays are the time constants of the chronic and acute
	// training load averages.
	CTLDays = 42
	ATLDays = 7

	// DefaultWeeks is the number of weekly buckets reported by default.
	DefaultWeeks = 52
	// DefaultWindowDays is the default length of the training load series.
	DefaultWindowDays = 120
)

var (
	alphaCTL = 2.0 / (CTLDays + 1)
	alphaATL = 2.0 / (ATLDays + 1)
)

// WorkoutLoad is the stress one workout contributes to its calendar day.
type WorkoutLoad struct {
	WorkoutID string          `json:"workout_id"`
	Day       time.Time       `json:"day"`
	TSS       float64         `json:"tss"`
	Snapshot  *MetricSnapshot `json:"-"`
}

// WeekBucket is the TSS total of the week starting on Monday WeekStart.
type WeekBucket struct {
	WeekStart time.Time `json:"week_start"`
	TSS       float64   `json:"tss"`
	Workouts  int       `json:"workouts"`
}

// LoadPoint is one day of the CTL/ATL/TSB series.
type LoadPoint struct {
	Date time.Time `json:"date"`
	TSS  float64   `json:"tss"`
	CTL  float64   `json:"ctl"`
	ATL  float64   `json:"atl"`
	TSB  float64   `json:"tsb"`
}

// LoadStatus is the most recent load point and its change from the day before.
type LoadStatus struct {
	Date     time.Time `json:"date"`
	CTL      float64   `json:"ctl"`
	ATL      float64   `json:"atl"`
	TSB      float64   `json:"tsb"`
	DeltaCTL float64   `json:"delta_ctl"`
	DeltaATL float64   `json:"delta_atl"`
	DeltaTSB float64   `json:"delta_tsb"`
	Form     string    `json:"form"`
}

// ScoreWorkouts analyzes every workout concurrently. Results keep the input
// order. workers <= 0 uses GOMAXPROCS.
func ScoreWorkouts(ctx context.Context, workouts []*Workout, ftp float64, opts Options, workers int) ([]WorkoutLoad, error) {
	if err := CheckFTP(ftp); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	loads := make([]WorkoutLoad, len(workouts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, w := range workouts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			snap, err := Analyze(w, ftp, opts)
			if errors.Is(err, ErrEmptyWorkout) {
				loads[i] = WorkoutLoad{WorkoutID: workoutID(w), Day: dayOf(w)}
				return nil
			}
			if err != nil {
				return fmt.Errorf("score workout %q: %w", workoutID(w), err)
			}
			loads[i] = WorkoutLoad{
				WorkoutID: w.ID,
				Day:       w.Day(),
				TSS:       snap.LoadTSS(),
				Snapshot:  snap,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return loads, nil
}

func workoutID(w *Workout) string {
	if w == nil {
		return ""
	}
	return w.ID
}

func dayOf(w *Workout) time.Time {
	if w == nil {
		return time.Time{}
	}
	return w.Day()
}

// MondayOf returns the Monday on or before the calendar day of t.
func MondayOf(t time.Time) time.Time {
	day := CivilDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// DailyTSS sums workout stress per calendar day.
func DailyTSS(loads []WorkoutLoad) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(loads))
	for _, l := range loads {
		if l.Day.IsZero() {
			continue
		}
		out[CivilDay(l.Day)] += l.TSS
	}
	return out
}

// BucketLoads sums stress into numWeeks Monday-aligned weeks. The last bucket
// starts on the Monday on or before today; older and newer workouts are dropped.
func BucketLoads(loads []WorkoutLoad, numWeeks int, today time.Time) []WeekBucket {
	if numWeeks <= 0 {
		return nil
	}
	last := MondayOf(today)
	first := last.AddDate(0, 0, -7*(numWeeks-1))

	buckets := make([]WeekBucket, numWeeks)
	index := make(map[time.Time]int, numWeeks)
	for i := range buckets {
		buckets[i].WeekStart = first.AddDate(0, 0, 7*i)
		index[buckets[i].WeekStart] = i
	}
	for _, l := range loads {
		if l.Day.IsZero() {
			continue
		}
		i, ok := index[MondayOf(l.Day)]
		if !ok {
			continue
		}
		buckets[i].TSS += l.TSS
		buckets[i].Workouts++
	}
	return buckets
}

// BucketWeeklyTSS scores workouts at ftp and buckets them into weeks.
func BucketWeeklyTSS(ctx context.Context, workouts []*Workout, ftp float64, numWeeks int, today time.Time, opts Options) ([]WeekBucket, error) {
	loads, err := ScoreWorkouts(ctx, workouts, ftp, opts, 0)
	if err != nil {
		return nil, err
	}
	return BucketLoads(loads, numWeeks, today), nil
}

// SeriesFromLoads runs the CTL/ATL recurrence over windowDays+1 consecutive
// days ending today. Both averages start at zero and days without workouts
// decay toward zero.
func SeriesFromLoads(loads []WorkoutLoad, windowDays int, today time.Time) []LoadPoint {
	if windowDays < 0 {
		return nil
	}
	daily := DailyTSS(loads)
	start := CivilDay(today).AddDate(0, 0, -windowDays)

	series := make([]LoadPoint, 0, windowDays+1)
	ctl, atl := 0.0, 0.0
	for i := 0; i <= windowDays; i++ {
		date := start.AddDate(0, 0, i)
		tss := daily[date]
		ctl = ctl*(1-alphaCTL) + tss*alphaCTL
		atl = atl*(1-alphaATL) + tss*alphaATL
		series = append(series, LoadPoint{Date: date, TSS: tss, CTL: ctl, ATL: atl, TSB: ctl - atl})
	}
	return series
}

// TrainingLoadSeries scores workouts at ftp and builds the daily load series.
func TrainingLoadSeries(ctx context.Context, workouts []*Workout, ftp float64, windowDays int, today time.Time, opts Options) ([]LoadPoint, error) {
	loads, err := ScoreWorkouts(ctx, workouts, ftp, opts, 0)
	if err != nil {
		return nil, err
	}
	return SeriesFromLoads(loads, windowDays, today), nil
}

// Latest returns the last point of series with day-over-day deltas, rounded
// to one decimal. A one-point series is compared against the zero seed.
func Latest(series []LoadPoint) (LoadStatus, bool) {
	if len(series) == 0 {
		return LoadStatus{}, false
	}
	cur := series[len(series)-1]
	var prev LoadPoint
	if len(series) > 1 {
		prev = series[len(series)-2]
	}
	return LoadStatus{
		Date:     cur.Date,
		CTL:      Round1(cur.CTL),
		ATL:      Round1(cur.ATL),
		TSB:      Round1(cur.TSB),
		DeltaCTL: Round1(cur.CTL - prev.CTL),
		DeltaATL: Round1(cur.ATL - prev.ATL),
		DeltaTSB: Round1(cur.TSB - prev.TSB),
		Form:     FormDescription(cur.TSB),
	}, true
}

// FormDescription describes training stress balance in words.
func FormDescription(tsb float64) string {
	switch {
	case tsb > 25:
		return "Very fresh (possibly detrained)"
	case tsb > 10:
		return "Fresh and ready to race"
	case tsb > 0:
		return "Neutral - good for training"
	case tsb > -10:
		return "Slightly fatigued"
	case tsb > -25:
		return "Tired but building fitness"
	default:
		return "Very fatigued - rest needed"
	}
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SortWorkouts orders workouts by start time, oldest first.
func SortWorkouts(workouts []*Workout) {
	sort.SliceStable(workouts, func(i, j int) bool {
		return workouts[i].StartTime().Before(workouts[j].StartTime())
	})
}

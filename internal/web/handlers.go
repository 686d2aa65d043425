package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/internal/store"
	"github.com/lucasjlepore/cycling-analyzer/samplecache"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cycling.ErrInvalidFTP), errors.Is(err, errBadQuery):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, samplecache.ErrMiss):
		return http.StatusNotFound
	case errors.Is(err, cycling.ErrEmptyWorkout):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeError(w, status, err)
}

var errBadQuery = errors.New("bad query parameter")

// Upper bounds for the history length a single request may ask for.
const (
	maxWindowDays = 3650
	maxWeeks      = 520
)

func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", errBadQuery, name, v)
	}
	return f, nil
}

func queryInt(r *http.Request, name string, def, min, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%w: %s=%q", errBadQuery, name, v)
	}
	return n, nil
}

// metricOptions starts from the configured options and applies the
// window_mode and time_basis query parameters.
func (s *Server) metricOptions(r *http.Request) (cycling.Options, error) {
	opts := s.cfg.MetricOptions()
	q := r.URL.Query()
	if v := q.Get("window_mode"); v != "" {
		mode, ok := cycling.ParseWindowMode(v)
		if !ok {
			return opts, fmt.Errorf("%w: window_mode=%q", errBadQuery, v)
		}
		opts.WindowMode = mode
	}
	if v := q.Get("time_basis"); v != "" {
		basis, ok := cycling.ParseTimeBasis(v)
		if !ok {
			return opts, fmt.Errorf("%w: time_basis=%q", errBadQuery, v)
		}
		opts.TimeBasis = basis
	}
	return opts, nil
}

// scoring reads ftp and metric options from the query.
func (s *Server) scoring(r *http.Request) (float64, cycling.Options, error) {
	ftp, err := queryFloat(r, "ftp", s.cfg.FTPWatts)
	if err != nil {
		return 0, cycling.Options{}, err
	}
	if err := cycling.CheckFTP(ftp); err != nil {
		return 0, cycling.Options{}, err
	}
	opts, err := s.metricOptions(r)
	return ftp, opts, err
}

func (s *Server) today() time.Time {
	now := s.Now()
	if loc := s.cfg.IngestOptions().Location; loc != nil {
		now = now.In(loc)
	}
	return now
}

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "db unavailable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "time": time.Now().UTC()})
}

// GET /api/workouts
func (s *Server) handleWorkouts(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ListWorkouts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []store.WorkoutRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// GET /api/workouts/{id}
func (s *Server) handleWorkout(w http.ResponseWriter, r *http.Request) {
	row, err := s.db.GetWorkout(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// DELETE /api/workouts/{id}
// The source file is left in the history dir, so the next scan imports it again.
func (s *Server) handleDeleteWorkout(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.db.DeleteWorkout(id); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.scorer != nil && s.scorer.Samples != nil {
		if err := s.scorer.Samples.Remove(id); err != nil {
			s.log.Warn("remove cached samples", "id", id, "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) snapshot(r *http.Request) (*cycling.MetricSnapshot, error) {
	ftp, opts, err := s.scoring(r)
	if err != nil {
		return nil, err
	}
	row, err := s.db.GetWorkout(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	return s.scorer.Snapshot(r.Context(), row, ftp, opts)
}

// GET /api/workouts/{id}/metrics?ftp=250&window_mode=elapsed&time_basis=moving
func (s *Server) handleWorkoutMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/workouts/{id}/notes?ftp=250
func (s *Server) handleWorkoutNotes(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(cycling.BuildTrainingNotes(snap)))
}

type loadResponse struct {
	FTPWatts   float64                   `json:"ftp_watts"`
	WindowDays int                       `json:"window_days"`
	Latest     *cycling.LoadStatus       `json:"latest,omitempty"`
	Guidelines []cycling.VolumeGuideline `json:"guidelines,omitempty"`
	Series     []cycling.LoadPoint       `json:"series"`
}

// GET /api/load?ftp=250&days=120
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	ftp, opts, err := s.scoring(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	days, err := queryInt(r, "days", s.cfg.WindowDays, 0, maxWindowDays)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	series, err := s.scorer.Series(r.Context(), ftp, days, s.today(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := loadResponse{FTPWatts: ftp, WindowDays: days, Series: series}
	if latest, ok := cycling.Latest(series); ok {
		resp.Latest = &latest
		resp.Guidelines = cycling.GuidelinesForCTL(latest.CTL)
	}
	writeJSON(w, http.StatusOK, resp)
}

type weeklyResponse struct {
	FTPWatts float64              `json:"ftp_watts"`
	Weeks    []cycling.WeekBucket `json:"weeks"`
}

// GET /api/weekly?ftp=250&weeks=52
func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	ftp, opts, err := s.scoring(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	weeks, err := queryInt(r, "weeks", s.cfg.NumWeeks, 1, maxWeeks)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	buckets, err := s.scorer.Weekly(r.Context(), ftp, weeks, s.today(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, weeklyResponse{FTPWatts: ftp, Weeks: buckets})
}

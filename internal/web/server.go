// Package web serves workout metrics and training load as JSON.
package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/lucasjlepore/cycling-analyzer/internal/cfg"
	"github.com/lucasjlepore/cycling-analyzer/internal/importer"
	"github.com/lucasjlepore/cycling-analyzer/internal/scorer"
	"github.com/lucasjlepore/cycling-analyzer/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cycling_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cycling_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

type Server struct {
	cfg    cfg.Config
	db     *store.DB
	scorer *scorer.Scorer
	im     *importer.Importer
	router *mux.Router
	log    *slog.Logger

	// Now is the clock used to pick "today" for load queries.
	Now func() time.Time
}

func New(c cfg.Config, db *store.DB, sc *scorer.Scorer, im *importer.Importer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    c,
		db:     db,
		scorer: sc,
		im:     im,
		router: mux.NewRouter(),
		log:    logger.With("component", "web"),
		Now:    time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.instrument)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/workouts", s.handleWorkouts).Methods(http.MethodGet)
	api.HandleFunc("/workouts/{id}", s.handleWorkout).Methods(http.MethodGet)
	api.HandleFunc("/workouts/{id}", s.handleDeleteWorkout).Methods(http.MethodDelete)
	api.HandleFunc("/workouts/{id}/metrics", s.handleWorkoutMetrics).Methods(http.MethodGet)
	api.HandleFunc("/workouts/{id}/notes", s.handleWorkoutNotes).Methods(http.MethodGet)
	api.HandleFunc("/load", s.handleLoad).Methods(http.MethodGet)
	api.HandleFunc("/weekly", s.handleWeekly).Methods(http.MethodGet)
	api.HandleFunc("/import", s.handleImportNow).Methods(http.MethodPost)
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
}

func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer wraps the router for ListenAndServe on the configured address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

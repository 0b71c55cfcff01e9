/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/logbuffer"
	"github.com/friendsincode/cadence/internal/profile"
	"github.com/friendsincode/cadence/internal/queue"
	"github.com/friendsincode/cadence/internal/telemetry"
)

// LeaderFunc reports whether this instance currently holds the driver lease.
type LeaderFunc func() bool

// Server serves driver status, the planned schedule and metrics over HTTP.
type Server struct {
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	tracker    *Tracker
	queue      *queue.Store
	leader     LeaderFunc
	logs       *logbuffer.Buffer
	closers    []func() error
}

// Option configures optional endpoints.
type Option func(*Server)

// WithQueue exposes the work item queue under /api/v1/queue.
func WithQueue(q *queue.Store) Option { return func(s *Server) { s.queue = q } }

// WithLeader adds leadership to /healthz.
func WithLeader(f LeaderFunc) Option { return func(s *Server) { s.leader = f } }

// WithLogBuffer exposes recent log lines under /debug/logs.
func WithLogBuffer(b *logbuffer.Buffer) Option { return func(s *Server) { s.logs = b } }

// New builds the router and the underlying http.Server listening on addr.
func New(addr string, tracker *Tracker, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		logger:  logger.With().Str("component", "http").Logger(),
		router:  chi.NewRouter(),
		tracker: tracker,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeadersMiddleware)
	s.router.Use(telemetry.TracingMiddleware("cadence-api"))
	s.router.Use(telemetry.MetricsMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.configureRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// ListenAndServe serves until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and then runs the registered closers in reverse order.
func (s *Server) Shutdown(ctx context.Context) error {
	firstErr := s.httpServer.Shutdown(ctx)
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/schedule", s.handleSchedule)
	s.router.Handle("/metrics", telemetry.Handler())

	if s.logs != nil {
		s.router.Get("/debug/logs", s.handleLogs)
	}
	if s.queue != nil {
		s.router.Route("/api/v1/queue", func(r chi.Router) {
			r.Get("/", s.handleQueuePending)
			r.Post("/", s.handleQueueEnqueue)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.leader != nil {
		resp["leader"] = s.leader()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, _, _, ok := s.tracker.get()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "driver_not_running")
		return
	}
	writeJSON(w, http.StatusOK, snap.Status())
}

// HourPlan compares the drawn schedule with the profile's expectation for one hour.
type HourPlan struct {
	Hour     int     `json:"hour" yaml:"hour"`
	Planned  int     `json:"planned" yaml:"planned"`
	Expected float64 `json:"expected" yaml:"expected"`
}

// PlanResponse is the /schedule body.
type PlanResponse struct {
	Profile       string     `json:"profile" yaml:"profile"`
	Target        float64    `json:"target" yaml:"target"`
	TotalPlanned  int        `json:"total_planned" yaml:"total_planned"`
	ExpectedTotal float64    `json:"expected_total" yaml:"expected_total"`
	Hours         []HourPlan `json:"hours" yaml:"hours"`
	Offsets       []int64    `json:"offsets,omitempty" yaml:"offsets,omitempty"`
}

// BuildPlan summarises a schedule hour by hour against rates.
func BuildPlan(name string, target float64, counts [profile.HoursPerDay]int, rates profile.Rates) PlanResponse {
	resp := PlanResponse{
		Profile:       name,
		Target:        target,
		ExpectedTotal: rates.ExpectedTotal(),
		Hours:         make([]HourPlan, profile.HoursPerDay),
	}
	for h := range profile.HoursPerDay {
		resp.Hours[h] = HourPlan{Hour: h, Planned: counts[h], Expected: rates.Expected(h)}
		resp.TotalPlanned += counts[h]
	}
	return resp
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	snap, rates, target, ok := s.tracker.get()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "driver_not_running")
		return
	}
	writeJSON(w, http.StatusOK, BuildPlan(snap.Status().Profile, target, snap.Schedule().HourCounts(), rates))
}

func (s *Server) handleQueuePending(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.Pending(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("count pending items")
		writeError(w, http.StatusInternalServerError, "queue_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"pending": n})
}

type enqueueRequest struct {
	Source   string   `json:"source"`
	Payloads []string `json:"payloads"`
}

func (s *Server) handleQueueEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.Payloads) == 0 {
		writeError(w, http.StatusBadRequest, "payloads_required")
		return
	}

	items, err := s.queue.Enqueue(r.Context(), req.Source, req.Payloads...)
	if err != nil {
		s.logger.Error().Err(err).Msg("enqueue items")
		writeError(w, http.StatusInternalServerError, "queue_unavailable")
		return
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = strconv.FormatUint(uint64(it.ID), 10)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"enqueued": len(items), "ids": ids})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:     q.Get("level"),
		Component: q.Get("component"),
		RunID:     q.Get("run_id"),
		Search:    q.Get("q"),
		Limit:     200,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   s.logs.Stats(),
		"entries": s.logs.Query(params),
	})
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

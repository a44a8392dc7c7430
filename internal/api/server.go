// Package api provides the HTTP API for observing a running simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/segsim/internal/engine"
	"github.com/talgya/segsim/internal/mobility"
	"github.com/talgya/segsim/internal/persistence"
)

// Admin requests allowed per client per minute.
const adminRequestsPerMinute = 60

// Server serves the simulation state over HTTP and WebSocket.
type Server struct {
	Sim         *engine.Simulation
	Eng         *engine.Engine  // Optional; speed control needs it.
	DB          *persistence.DB // Optional; run history needs it.
	Port        int
	AdminKey    string              // Bearer token for POST endpoints. Empty = POST disabled.
	BeforeReset func()              // Called before the model is rebuilt.
	OnReset     func(engine.Params) // Called after a successful reset.
	Origins     []string            // Extra CORS origins besides localhost dev servers.

	hub     *Hub
	hubOnce sync.Once

	runMu sync.Mutex
	runID string
}

// Frame is one WebSocket stream message.
type Frame struct {
	Tick     uint64           `json:"tick"`
	Rate     float64          `json:"rate"`
	Stats    engine.TickStats `json:"stats"`
	Snapshot engine.Snapshot  `json:"snapshot"`
}

// SetRunID records the persisted run the simulation is writing to.
func (s *Server) SetRunID(id string) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.runID = id
}

// RunID returns the persisted run id, if any.
func (s *Server) RunID() string {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runID
}

func (s *Server) streamHub() *Hub {
	s.hubOnce.Do(func() { s.hub = NewHub() })
	return s.hub
}

// Handler builds the routes and starts the stream hub, which runs until ctx
// is done.
func (s *Server) Handler(ctx context.Context) http.Handler {
	hub := s.streamHub()
	go hub.Run(ctx)

	adminLimiter := NewRateLimiter(adminRequestsPerMinute, time.Minute)
	context.AfterFunc(ctx, adminLimiter.Close)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/grid", s.handleGrid)
	mux.HandleFunc("/api/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/api/v1/curve", s.handleCurve)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/run/", s.handleRunRoutes)

	// WebSocket stream of per-tick frames.
	mux.HandleFunc("/api/v1/stream", hub.serve)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleSpeed)))
	mux.HandleFunc("/api/v1/reset", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleReset)))

	return corsMiddleware(s.Origins, mux)
}

// Start serves the API until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "persistence", s.DB != nil)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// Publish sends the current tick to stream clients. Cheap when none are
// connected.
func (s *Server) Publish() {
	hub := s.streamHub()
	if hub.Len() == 0 {
		return
	}
	v := s.Sim.View()
	frame := Frame{
		Tick:     v.Tick,
		Rate:     v.Rate,
		Stats:    v.Stats,
		Snapshot: v.Snapshot,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("encode stream frame", "error", err)
		return
	}
	if !hub.Broadcast(data) {
		slog.Debug("stream backlog full, frame dropped", "tick", frame.Tick)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(extra []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range extra {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no SEGSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := s.Sim.Params()
	status := map[string]any{
		"tick":     s.Sim.Tick(),
		"running":  s.Sim.Running(),
		"agents":   p.AgentCount,
		"width":    p.Width,
		"height":   p.Height,
		"contract": p.ContractMode,
		"seed":     s.Sim.Seed(),
		"rate":     s.Sim.SegregationRate(),
		"stats":    s.Sim.Stats(),
		"clients":  s.streamHub().Len(),
	}
	if series := s.Sim.Series(); len(series) > 0 {
		status["last_recorded"] = series[len(series)-1]
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["engine_running"] = s.Eng.Running()
	}
	if id := s.RunID(); id != "" {
		status["run_id"] = id
	}
	writeJSON(w, status)
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot())
}

// handleMetrics returns the recorded series, optionally from an offset.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	series := s.Sim.Series()
	from := 0
	if f := r.URL.Query().Get("from"); f != "" {
		if v, err := strconv.Atoi(f); err == nil && v > 0 {
			from = min(v, len(series))
		}
	}
	writeJSON(w, map[string]any{
		"from":   from,
		"series": series[from:],
	})
}

// handleCurve samples the mobility curve of the current model.
func (s *Server) handleCurve(w http.ResponseWriter, r *http.Request) {
	from, to, n := 0.0, 10.0, 257
	q := r.URL.Query()
	if v, err := strconv.ParseFloat(q.Get("from"), 64); err == nil {
		from = v
	}
	if v, err := strconv.ParseFloat(q.Get("to"), 64); err == nil {
		to = v
	}
	if v, err := strconv.Atoi(q.Get("n")); err == nil && v > 0 && v <= 10000 {
		n = v
	}
	if to < from {
		http.Error(w, "to must not be less than from", http.StatusBadRequest)
		return
	}

	curve := s.Sim.Params().Mobility
	points := curve.Sample(from, to, n)
	if points == nil {
		points = []mobility.Point{}
	}
	writeJSON(w, map[string]any{
		"curve":  curve,
		"points": points,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	runs, err := s.DB.ListRuns(limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "list runs failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

// handleRunRoutes dispatches between run detail (GET /api/v1/run/:id) and a
// stored snapshot (GET /api/v1/run/:id/snapshot/:tick).
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/run/"), "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleRunDetail(w, parts[0])
	case len(parts) == 3 && parts[1] == "snapshot":
		tick, err := strconv.ParseUint(parts[2], 10, 63)
		if err != nil {
			http.Error(w, "invalid tick", http.StatusBadRequest)
			return
		}
		s.handleRunSnapshot(w, parts[0], tick)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleRunDetail(w http.ResponseWriter, id string) {
	run, err := s.DB.GetRun(id)
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("load run failed", "run", id, "error", err)
		http.Error(w, "load run failed", http.StatusInternalServerError)
		return
	}

	series, err := s.DB.LoadSeries(id)
	if err != nil {
		slog.Error("load series failed", "run", id, "error", err)
		series = nil
	}
	ticks, err := s.DB.SnapshotTicks(id)
	if err != nil {
		slog.Error("load snapshot ticks failed", "run", id, "error", err)
	}
	if series == nil {
		series = []float64{}
	}
	if ticks == nil {
		ticks = []uint64{}
	}

	writeJSON(w, map[string]any{
		"run":            run,
		"series":         series,
		"snapshot_ticks": ticks,
	})
}

func (s *Server) handleRunSnapshot(w http.ResponseWriter, id string, tick uint64) {
	snap, err := s.DB.LoadSnapshot(id, tick)
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "snapshot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("load snapshot failed", "run", id, "tick", tick, "error", err)
		http.Error(w, "load snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not running", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// handleReset rebuilds the model. The optional JSON body overrides fields of
// the current parameters.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p := s.Sim.Params()
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if s.BeforeReset != nil {
		s.BeforeReset()
	}
	if err := s.Sim.Reset(p); err != nil {
		var cfgErr *engine.ConfigError
		if errors.As(err, &cfgErr) {
			slog.Warn("reset rejected", "field", cfgErr.Field, "reason", cfgErr.Reason)
			writeJSONStatus(w, http.StatusBadRequest, map[string]any{
				"error":   cfgErr.Error(),
				"field":   cfgErr.Field,
				"running": false,
			})
			return
		}
		slog.Error("reset failed", "error", err)
		http.Error(w, "reset failed", http.StatusInternalServerError)
		return
	}

	if s.Eng != nil {
		s.Eng.SetTick(0)
	}
	if s.OnReset != nil {
		s.OnReset(s.Sim.Params())
	}
	slog.Info("simulation reset", "agents", p.AgentCount, "seed", s.Sim.Seed())

	writeJSON(w, map[string]any{
		"tick":    s.Sim.Tick(),
		"running": s.Sim.Running(),
		"seed":    s.Sim.Seed(),
		"params":  s.Sim.Params(),
	})
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// Package api provides the HTTP API for running simulations and browsing
// stored runs.
// GET endpoints are public (read-only).
// POST and DELETE endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/talgya/agrisim/internal/entity"
	"github.com/talgya/agrisim/internal/persistence"
	"github.com/talgya/agrisim/internal/report"
	"github.com/talgya/agrisim/internal/runner"
	"github.com/talgya/agrisim/internal/scenario"
	"github.com/talgya/agrisim/internal/supply"
)

const (
	maxStreamConns = 2
	maxFarmers     = 100000
	maxSteps       = 3660
)

// Store is the read side of run persistence.
type Store interface {
	GetRun(ctx context.Context, id uuid.UUID) (persistence.Run, error)
	ListRuns(ctx context.Context, limit int) ([]persistence.Run, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
	LoadRunResults(ctx context.Context, id uuid.UUID) ([]entity.StepResult, error)
	ListEntities(ctx context.Context, runID uuid.UUID, kind string) ([]json.RawMessage, error)
}

// Server serves simulations over HTTP.
type Server struct {
	Runner   *runner.Runner
	Store    Store          // Nil disables the /simulations endpoints
	Base     runner.Request // Defaults for requests that omit fields
	Port     int
	AdminKey string // Bearer token for POST/DELETE endpoints. Empty = disabled.
	Version  string

	// Active stream connection count (atomic).
	streamConns int32
	started     time.Time
	upgrader    websocket.Upgrader
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	simulateLimiter := NewRateLimiter(30, time.Hour)
	streamLimiter := NewRateLimiter(60, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/scenarios", s.handleScenarios)
	mux.HandleFunc("/api/v1/regions", s.handleRegions)
	mux.HandleFunc("/api/v1/crops", s.handleCrops)
	mux.HandleFunc("/api/v1/policies", s.handlePolicies)
	mux.HandleFunc("/api/v1/simulations", s.handleSimulations)
	mux.HandleFunc("/api/v1/simulations/", s.adminOnly(s.handleSimulationRoutes))

	// Live step stream over websocket. Public, so it never persists.
	mux.HandleFunc("/api/v1/stream", RateLimitMiddleware(streamLimiter, s.handleStream))

	// Admin endpoints.
	mux.HandleFunc("/api/v1/simulate", s.adminOnly(RateLimitMiddleware(simulateLimiter, s.handleSimulate)))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "storage", s.Store != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set AGRISIM_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("AGRISIM_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
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
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST and DELETE.
// GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodDelete {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no AGRISIM_ADMIN_KEY set)", http.StatusForbidden)
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
	writeJSON(w, map[string]any{
		"name":           "agrisim",
		"version":        s.Version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"storage":        s.Store != nil,
		"admin_enabled":  s.AdminKey != "",
		"streams":        atomic.LoadInt32(&s.streamConns),
		"defaults": map[string]any{
			"start_date": s.Base.Engine.Start.Format(time.DateOnly),
			"end_date":   s.Base.Engine.End.Format(time.DateOnly),
			"farmers":    s.Base.Counts.Farmers,
			"districts":  len(s.districts()),
		},
	})
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	type scenarioInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var result []scenarioInfo
	for _, k := range scenario.Kinds() {
		result = append(result, scenarioInfo{Name: string(k), Description: scenario.Describe(k)})
	}
	writeJSON(w, result)
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"districts":             s.districts(),
		"agro_ecological_zones": entity.AgroEcologicalZones,
	})
}

func (s *Server) handleCrops(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"crops":            supply.Crops,
		"base_yields":      supply.CropBaseYields,
		"irrigation_types": supply.IrrigationTypes,
	})
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"policy_types":            entity.TargetSectors,
		"implementation_statuses": entity.ImplementationStatuses,
	})
}

func (s *Server) districts() []string {
	if len(s.Base.Districts) > 0 {
		return s.Base.Districts
	}
	return supply.Districts
}

// simulateParams are the optional overrides accepted by /simulate and /stream.
type simulateParams struct {
	Scenario  string   `json:"scenario"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Seed      int64    `json:"seed"`
	Farmers   *int     `json:"farmers"`
	Districts []string `json:"districts"`
}

func paramsFromQuery(r *http.Request) (simulateParams, error) {
	q := r.URL.Query()
	p := simulateParams{
		Scenario:  q.Get("scenario"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}
	if v := q.Get("seed"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return p, fmt.Errorf("invalid seed %q", v)
		}
		p.Seed = seed
	}
	if v := q.Get("farmers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("invalid farmers %q", v)
		}
		p.Farmers = &n
	}
	if v := q.Get("districts"); v != "" {
		p.Districts = strings.Split(v, ",")
	}
	return p, nil
}

// buildRequest overlays p onto the server defaults.
func (s *Server) buildRequest(p simulateParams) (runner.Request, error) {
	req := s.Base
	req.Scenario = scenario.Baseline
	if p.Scenario != "" {
		k, err := scenario.Parse(p.Scenario)
		if err != nil {
			return req, err
		}
		req.Scenario = k
	}
	if p.StartDate != "" {
		t, err := time.Parse(time.DateOnly, p.StartDate)
		if err != nil {
			return req, fmt.Errorf("invalid start_date %q", p.StartDate)
		}
		req.Engine.Start = t
	}
	if p.EndDate != "" {
		t, err := time.Parse(time.DateOnly, p.EndDate)
		if err != nil {
			return req, fmt.Errorf("invalid end_date %q", p.EndDate)
		}
		req.Engine.End = t
	}
	if p.Seed != 0 {
		req.Engine.Seed = p.Seed
		req.SupplySeed = 0
	}
	if p.Farmers != nil {
		if *p.Farmers < 0 || *p.Farmers > maxFarmers {
			return req, fmt.Errorf("farmers must be within [0, %d]", maxFarmers)
		}
		req.Counts.Farmers = *p.Farmers
	}
	if len(p.Districts) > 0 {
		if err := supply.CheckDistricts(p.Districts); err != nil {
			return req, err
		}
		req.Districts = p.Districts
	}

	if err := req.Engine.Validate(); err != nil {
		return req, err
	}
	if req.Engine.Steps() > maxSteps {
		return req, fmt.Errorf("run of %d steps exceeds the limit of %d", req.Engine.Steps(), maxSteps)
	}
	return req, nil
}

// handleSimulate runs one scenario to completion.
// POST /api/v1/simulate {"scenario": "...", "start_date": "...", ...}
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	// An empty body runs the defaults.
	var p simulateParams
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	req, err := s.buildRequest(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := s.Runner.Run(r.Context(), req, nil)
	if err != nil {
		slog.Error("simulate failed", "scenario", req.Scenario, "error", err)
		http.Error(w, "simulation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"scenario":       out.Scenario,
		"seed":           out.Config.Seed,
		"steps":          len(out.Results),
		"reference_gaps": out.ReferenceGaps,
		"summary":        report.Summarize(string(out.Scenario), out.Config.Start, out.Config.End, len(out.Entities.Farmers), out.Results),
	}
	if out.RunID != uuid.Nil {
		resp["run_id"] = out.RunID
	}
	if r.URL.Query().Get("include_results") == "true" {
		resp["results"] = out.Results
	}
	slog.Info("simulation served", "scenario", out.Scenario, "steps", len(out.Results), "run", out.RunID)
	writeJSON(w, resp)
}

// handleSimulations lists stored runs, newest first.
func (s *Server) handleSimulations(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "storage disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.Store.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Error("list runs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

// handleSimulationRoutes dispatches /api/v1/simulations/:id[/:resource].
func (s *Server) handleSimulationRoutes(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		http.Error(w, "storage disabled", http.StatusServiceUnavailable)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/simulations/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) > 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		http.Error(w, "invalid simulation id", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleRunDetail(w, r, id)
		case http.MethodDelete:
			s.handleRunDelete(w, r, id)
		default:
			http.Error(w, "GET or DELETE only", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	switch parts[1] {
	case "results":
		s.handleRunResults(w, r, id)
	case "regions":
		s.handleRunEntities(w, r, id, persistence.KindRegion)
	case "farmers":
		s.handleRunEntities(w, r, id, persistence.KindFarmer)
	case "policies":
		s.handleRunEntities(w, r, id, persistence.KindPolicy)
	case "infrastructure":
		s.handleRunEntities(w, r, id, persistence.KindInfrastructure)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	run, err := s.Store.GetRun(r.Context(), id)
	if !s.storeOK(w, err) {
		return
	}
	results, err := s.Store.LoadRunResults(r.Context(), id)
	if !s.storeOK(w, err) {
		return
	}
	writeJSON(w, map[string]any{
		"run":     run,
		"summary": report.Final(results),
	})
}

func (s *Server) handleRunDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if !s.storeOK(w, s.Store.DeleteRun(r.Context(), id)) {
		return
	}
	slog.Info("run deleted", "run", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleRunResults returns a run's steps. ?region=<district> narrows to one region.
func (s *Server) handleRunResults(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	results, err := s.Store.LoadRunResults(r.Context(), id)
	if !s.storeOK(w, err) {
		return
	}
	if region := r.URL.Query().Get("region"); region != "" {
		filtered := make([]entity.StepResult, 0, len(results))
		for _, step := range results {
			rr, ok := step.Regions[region]
			if !ok {
				continue
			}
			filtered = append(filtered, entity.StepResult{
				Date:    step.Date,
				Regions: map[string]entity.RegionResult{region: rr},
			})
		}
		results = filtered
	}
	writeJSON(w, results)
}

func (s *Server) handleRunEntities(w http.ResponseWriter, r *http.Request, id uuid.UUID, kind string) {
	if _, err := s.Store.GetRun(r.Context(), id); !s.storeOK(w, err) {
		return
	}
	bodies, err := s.Store.ListEntities(r.Context(), id, kind)
	if !s.storeOK(w, err) {
		return
	}
	writeJSON(w, bodies)
}

// storeOK maps a store error onto a response. It returns true when err is nil.
func (s *Server) storeOK(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, persistence.ErrNotFound):
		http.Error(w, "simulation not found", http.StatusNotFound)
	default:
		slog.Error("store error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return false
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

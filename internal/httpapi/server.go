// Package httpapi exposes plan generation over HTTP with server-sent events
// for live progress.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ai-fitness-planner/internal/app"
	"ai-fitness-planner/internal/config"
	"ai-fitness-planner/internal/generator"
	"ai-fitness-planner/internal/history"
	"ai-fitness-planner/internal/render"
	"ai-fitness-planner/internal/storage"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
	maxInputBytes       = 8 << 10
	streamDeadline      = 5 * time.Minute
)

type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg, detail string) {
	writeJSON(w, code, apiError{Error: msg, Detail: detail})
}

// Server serves the plan generation API.
type Server struct {
	app       *app.App
	secret    []byte
	perMinute int
	logger    *slog.Logger
}

// NewServer creates a Server for the application.
func NewServer(a *app.App, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		app:       a,
		secret:    []byte(cfg.JWTSecret),
		perMinute: cfg.HTTPRequestsPerMinute,
		logger:    logger,
	}
}

// Handler returns the routed handler with logging, auth and rate limits.
func (s *Server) Handler() http.Handler {
	auth := AuthMiddleware(s.secret, s.logger)
	limited := func(h http.HandlerFunc) http.Handler {
		return ApplyMiddlewares(h, auth, RateLimitMiddleware(s.perMinute, s.logger))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", auth(promhttp.HandlerFor(s.app.Registry(), promhttp.HandlerOpts{})))

	mux.Handle("POST /v1/plans", limited(s.handleGenerate))
	mux.Handle("POST /v1/plans/demo", limited(s.handleDemo))
	mux.Handle("DELETE /v1/plans", auth(http.HandlerFunc(s.handleCancel)))
	mux.Handle("GET /v1/plans/state", auth(http.HandlerFunc(s.handleState)))
	mux.Handle("GET /v1/plans/events", auth(http.HandlerFunc(s.handleEvents)))
	mux.Handle("GET /v1/plans/latest", limited(s.handleLatest))
	mux.Handle("GET /v1/history", limited(s.handleHistory))
	mux.Handle("GET /v1/history/{id}", limited(s.handlePlan))

	return ApplyMiddlewares(mux, LoggingMiddleware(s.logger))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGenerate starts a generation.
// POST /v1/plans {"input": "..."}
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInputBytes)).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	id, err := s.app.Start(UserID(r.Context()), req.Input)
	s.writeStarted(w, id, err)
}

// handleDemo starts the demo generation.
// POST /v1/plans/demo
func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	id, err := s.app.StartDemo(UserID(r.Context()))
	s.writeStarted(w, id, err)
}

func (s *Server) writeStarted(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, generator.ErrBusy):
		writeErr(w, http.StatusConflict, "a generation is already running", "")
	case errors.Is(err, generator.ErrEmptyInput):
		writeErr(w, http.StatusBadRequest, "input is required", "")
	case err != nil:
		s.logger.Error("Failed to start generation", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to start generation", "")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"requestId": requestID})
	}
}

// handleCancel stops the running generation and resets state.
// DELETE /v1/plans
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.app.Cancel(UserID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleState returns the latest state snapshot.
// GET /v1/plans/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.app.State(UserID(r.Context()))
	writeJSON(w, http.StatusOK, newStateResponse(st))
}

// handleLatest returns the newest plan file kept for the user.
// GET /v1/plans/latest
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	plan, err := s.app.LatestPlan(UserID(r.Context()))
	if errors.Is(err, storage.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "no saved plan", "")
		return
	}
	if err != nil {
		s.logger.Error("Failed to load latest plan", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to load plan", "")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handleEvents streams state snapshots until a run ends or the client
// disconnects. Users with no controller get their idle state and done.
// GET /v1/plans/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Now().Add(streamDeadline))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	c, ok := s.app.Lookup(UserID(r.Context()))
	if !ok {
		w.WriteHeader(http.StatusOK)
		data, _ := json.Marshal(newStateResponse(generator.State{Phase: generator.Idle}))
		fmt.Fprintf(w, "event: state\ndata: %s\n\nevent: done\ndata: {}\n\n", data)
		_ = rc.Flush()
		return
	}
	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(newStateResponse(st))
			if err != nil {
				s.logger.Error("Failed to encode state", "error", err)
				return
			}
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
			if st.Phase.Terminal() {
				fmt.Fprint(w, "event: done\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// handleHistory lists the user's saved plans.
// GET /v1/history?limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.app.History(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		s.logger.Error("Failed to list history", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to list plans", "")
		return
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, newHistoryItem(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// handlePlan returns one saved plan, as JSON or rendered.
// GET /v1/history/{id}?format=md|yaml|html|json
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid plan id", r.PathValue("id"))
		return
	}
	e, err := s.app.Plan(r.Context(), UserID(r.Context()), id)
	if errors.Is(err, history.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "plan not found", "")
		return
	}
	if err != nil {
		s.logger.Error("Failed to load plan", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to load plan", "")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		writeJSON(w, http.StatusOK, e.Plan)
		return
	}
	f, err := render.ParseFormat(format)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "unsupported format", format)
		return
	}
	data, err := render.Render(e.Plan, f)
	if err != nil {
		s.logger.Error("Failed to render plan", "error", err)
		writeErr(w, http.StatusInternalServerError, "failed to render plan", "")
		return
	}
	w.Header().Set("Content-Type", contentTypes[f])
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

var contentTypes = map[render.Format]string{
	render.FormatMarkdown: "text/markdown; charset=utf-8",
	render.FormatYAML:     "application/yaml",
	render.FormatHTML:     "text/html; charset=utf-8",
	render.FormatJSON:     "application/json",
}

// Package api provides the HTTP server for the merit settlement engine.
// Every core operation is exposed as a JSON endpoint; domain errors map to
// a structured error body with a stable kind string.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/merit-works/merit/internal/app/commitment"
	"github.com/merit-works/merit/internal/app/funding"
	"github.com/merit-works/merit/internal/app/ledger"
	"github.com/merit-works/merit/internal/app/participation"
	"github.com/merit-works/merit/internal/app/settlement"
	"github.com/merit-works/merit/internal/domain"
	"github.com/merit-works/merit/internal/infra/observability"
)

// Version is the engine version reported by /api/version.
const Version = "0.1.0"

// Server is the merit HTTP API server.
type Server struct {
	ledger         *ledger.Service
	missions       *funding.Manager
	participations *participation.Service
	commitments    *commitment.Workflow
	sweeper        *settlement.Sweeper
	metricsEnabled bool
}

// NewServer creates an API server over the application services.
func NewServer(l *ledger.Service, m *funding.Manager, p *participation.Service, c *commitment.Workflow, s *settlement.Sweeper) *Server {
	return &Server{ledger: l, missions: m, participations: p, commitments: c, sweeper: s}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)
	r.Use(requestMetrics)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		total, err := s.ledger.TotalPoints(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "status query failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "merit is running",
			"total_points": total,
		})
	})
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	r.Route("/api/accounts", func(r chi.Router) {
		r.Put("/{ownerID}", s.handleEnsureAccount)
		r.Get("/{ownerID}", s.handleBalance)
		r.Get("/{ownerID}/transactions", s.handleHistory)
		r.Post("/{ownerID}/convert", s.handleConvert)
	})

	r.Route("/api/missions", func(r chi.Router) {
		r.Post("/", s.handleFundMission)
		r.Get("/{missionID}", s.handleGetMission)
		r.Delete("/{missionID}", s.handleCancelMission)
		r.Post("/{missionID}/participations", s.handleApply)
	})

	r.Route("/api/participations", func(r chi.Router) {
		r.Get("/{id}", s.handleGetParticipation)
		r.Post("/{id}/approve", s.handleApprove)
		r.Post("/{id}/reject", s.handleReject)
	})

	r.Route("/api/commitments", func(r chi.Router) {
		r.Post("/", s.handleCreateCommitment)
		r.Get("/{id}", s.handleGetCommitment)
		r.Post("/{id}/confirm", s.handleConfirmCommitment)
		r.Post("/{id}/complete", s.handleCompleteCommitment)
		r.Post("/{id}/cancel", s.handleCancelCommitment)
		r.Post("/{id}/no-show", s.handleNoShow)
		r.Post("/{id}/join", s.handleJoin)
	})

	r.Post("/api/settlement/sweep", s.handleSweep)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Error Mapping ──────────────────────────────────────────────────────────

// errorKinds maps domain sentinels to a stable wire kind and HTTP status.
var errorKinds = []struct {
	err    error
	kind   string
	status int
}{
	{domain.ErrInvalidAmount, "invalid_amount", http.StatusBadRequest},
	{domain.ErrInvalidSchedule, "invalid_schedule", http.StatusBadRequest},
	{domain.ErrJoinCodeMismatch, "join_code_mismatch", http.StatusBadRequest},
	{domain.ErrAccountNotFound, "account_not_found", http.StatusNotFound},
	{domain.ErrPoolNotFound, "pool_not_found", http.StatusNotFound},
	{domain.ErrParticipationNotFound, "participation_not_found", http.StatusNotFound},
	{domain.ErrCommitmentNotFound, "commitment_not_found", http.StatusNotFound},
	{domain.ErrInsufficientBalance, "insufficient_balance", http.StatusConflict},
	{domain.ErrPoolExists, "pool_exists", http.StatusConflict},
	{domain.ErrPoolNotActive, "pool_not_active", http.StatusConflict},
	{domain.ErrSlotUnavailable, "slot_unavailable", http.StatusConflict},
	{domain.ErrDuplicateParticipation, "duplicate_participation", http.StatusConflict},
	{domain.ErrInvalidTransition, "invalid_transition", http.StatusConflict},
	{domain.ErrAlreadyCompleted, "already_completed", http.StatusConflict},
	{domain.ErrWindowExpired, "window_expired", http.StatusConflict},
	{domain.ErrRateLimited, "rate_limited", http.StatusTooManyRequests},
}

// writeDomainError maps a service error to the structured wire form.
// Unknown errors become a 500 with kind "internal".
func writeDomainError(w http.ResponseWriter, err error) {
	for _, m := range errorKinds {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, map[string]any{
				"error": map[string]any{"kind": m.kind, "message": err.Error()},
			})
			return
		}
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": map[string]any{"kind": "internal", "message": err.Error()},
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response for request-shape problems.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"kind": "bad_request", "message": msg},
	})
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// queryLimit parses a ?limit= parameter with a default.
func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestMetrics records per-route request counters once routing resolved.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		observability.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status/100*100)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

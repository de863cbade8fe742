// Package api exposes analyses, outcomes and the calibration job over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"viralscope/internal/analysis"
	"viralscope/internal/calibration"
	"viralscope/internal/model"
	"viralscope/internal/progress"
)

// Request headers identifying the caller. They are set by the upstream gateway.
const (
	HeaderUserID = "X-User-Id"
	HeaderTier   = "X-Subscription-Tier"
)

// AnalysisService is the analysis use-case surface.
type AnalysisService interface {
	Start(ctx context.Context, req analysis.Request) (*progress.Stream, error)
	GetResult(ctx context.Context, userID, id string) (*model.AnalysisResult, error)
	ReportOutcome(ctx context.Context, userID, analysisID string, actual float64) (*model.Outcome, error)
	DeleteOutcome(ctx context.Context, userID string, id int64) error
}

// TokenVerifier checks a trusted job caller's bearer token.
type TokenVerifier interface {
	Verify(token string) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies of every route.
type Handler struct {
	svc       AnalysisService
	validator calibration.Runner
	verifier  TokenVerifier
	health    Pinger
	log       *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc AnalysisService, validator calibration.Runner, verifier TokenVerifier, health Pinger, log *slog.Logger) *Handler {
	return &Handler{svc: svc, validator: validator, verifier: verifier, health: health, log: log}
}

// NewRouter registers all routes and the middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/analyses", h.startAnalysis)
		r.Get("/analyses/{id}", h.getAnalysis)
		r.Post("/analyses/{id}/outcome", h.reportOutcome)
		r.Delete("/outcomes/{id}", h.deleteOutcome)
	})

	r.Post("/internal/jobs/validate-rules", h.validateRules)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderUserID) == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing "+HeaderUserID+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

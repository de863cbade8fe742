package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"viralscope/internal/analysis"
	"viralscope/internal/progress"
	"viralscope/internal/validate"
)

const maxBodyBytes = 1 << 20

type outcomeRequest struct {
	ActualScore *float64 `json:"actual_score"`
}

type outcomeResponse struct {
	ID             int64     `json:"id"`
	AnalysisID     string    `json:"analysis_id"`
	PredictedScore *float64  `json:"predicted_score"`
	ActualScore    *float64  `json:"actual_score"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "storage unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) startAnalysis(w http.ResponseWriter, r *http.Request) {
	var sub validate.Submission
	if err := decodeJSON(r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}

	stream, err := h.svc.Start(r.Context(), analysis.Request{
		UserID:     r.Header.Get(HeaderUserID),
		Tier:       r.Header.Get(HeaderTier),
		Submission: sub,
	})
	if err != nil {
		h.writeMappedError(w, r, "start analysis", err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range stream.Events() {
		if err := writeEvent(w, ev); err != nil {
			h.log.Warn("write event", "error", err)
			return
		}
		if err := rc.Flush(); err != nil {
			h.log.Warn("flush event", "error", err)
			return
		}
	}
}

// writeEvent writes one server-sent event. A complete event carries the
// full result; phase and error events carry the Event itself.
func writeEvent(w io.Writer, ev progress.Event) error {
	var payload any = ev
	if ev.Kind == progress.KindComplete {
		payload = ev.Result
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

func (h *Handler) getAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetResult(r.Context(), r.Header.Get(HeaderUserID), chi.URLParam(r, "id"))
	if err != nil {
		h.writeMappedError(w, r, "get analysis", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) reportOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if req.ActualScore == nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "actual_score is required")
		return
	}

	o, err := h.svc.ReportOutcome(r.Context(), r.Header.Get(HeaderUserID), chi.URLParam(r, "id"), *req.ActualScore)
	if err != nil {
		h.writeMappedError(w, r, "report outcome", err)
		return
	}
	writeJSON(w, http.StatusCreated, outcomeResponse{
		ID:             o.ID,
		AnalysisID:     o.AnalysisID,
		PredictedScore: o.PredictedScore,
		ActualScore:    o.ActualScore,
		CreatedAt:      o.CreatedAt,
	})
}

func (h *Handler) deleteOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "outcome id must be a positive integer")
		return
	}
	if err := h.svc.DeleteOutcome(r.Context(), r.Header.Get(HeaderUserID), id); err != nil {
		h.writeMappedError(w, r, "delete outcome", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) validateRules(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return
	}
	if err := h.verifier.Verify(token); err != nil {
		h.log.Warn("rejected job token", "error", err)
		h.writeMappedError(w, r, "validate rules", err)
		return
	}

	summary, err := h.validator.Run(r.Context())
	if err != nil {
		h.writeMappedError(w, r, "validate rules", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

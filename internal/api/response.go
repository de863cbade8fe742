package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"viralscope/internal/auth"
	"viralscope/internal/calibration"
	"viralscope/internal/storage"
	"viralscope/internal/usage"
	"viralscope/internal/validate"
)

type apiError struct {
	Status  string         `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{Status: "error", Code: code, Message: message})
}

// writeMappedError translates domain errors into HTTP responses.
func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *validate.Error
	var qerr *usage.QuotaError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, apiError{
			Status: "error", Code: "VALIDATION_ERROR", Message: verr.Error(),
			Details: map[string]any{"field": verr.Field},
		})
		return
	case errors.As(err, &qerr):
		writeJSON(w, http.StatusTooManyRequests, apiError{
			Status: "error", Code: "QUOTA_EXCEEDED", Message: qerr.Error(),
			Details: map[string]any{"tier": qerr.Tier, "limit": qerr.Limit, "current": qerr.Current},
		})
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid job token")
		return
	case errors.Is(err, calibration.ErrRunInProgress):
		writeError(w, http.StatusConflict, "RUN_IN_PROGRESS", err.Error())
		return
	}

	h.log.Error("request failed", "op", op, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
}

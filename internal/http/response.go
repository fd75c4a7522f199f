package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
)

const msgInternalError = "Internal Server Error"

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to write response", log.FieldError, err)
	}
}

// statusFor maps an error from the service layer to its HTTP status and
// client-facing message. DependencyError is checked first so a wrapped
// sentinel never leaks its cause.
func statusFor(err error) (int, string) {
	var (
		dep *core.DependencyError
		ve  *core.ValidationError
	)
	switch {
	case errors.As(err, &dep):
		return http.StatusInternalServerError, dep.PublicMessage()
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrAlreadyUsed), errors.Is(err, core.ErrDrawInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, core.ErrInsufficientPoints):
		return http.StatusBadRequest, core.MsgInsufficientPoints
	default:
		return http.StatusInternalServerError, msgInternalError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	ctx := r.Context()
	logger := log.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.Failure(ctx, "Request failed", err, r.Method+" "+r.Pattern, nil)
	} else {
		logger.DebugContext(ctx, "Request rejected", log.FieldStatusCode, status, log.FieldError, err)
	}
	writeJSON(w, r, status, errorResponse{Error: msg})
}

package handlers

import (
	"errors"
	"net/http"

	"buildhub/internal/logger"
	"buildhub/internal/marketerrors"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// MapErrorToHTTP maps a workflow error kind to a status code and a short
// message safe to show users.
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, marketerrors.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, marketerrors.ErrInvalidState):
		return http.StatusConflict, "operation not allowed in the current state"
	case errors.Is(err, marketerrors.ErrAlreadyResolved):
		return http.StatusConflict, "already resolved"
	case errors.Is(err, marketerrors.ErrDuplicateBid):
		return http.StatusConflict, "you already have an active bid on this project"
	case errors.Is(err, marketerrors.ErrInsufficientStock):
		return http.StatusConflict, "insufficient stock"
	case errors.Is(err, marketerrors.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, marketerrors.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, marketerrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, marketerrors.ErrTimeout):
		return http.StatusGatewayTimeout, "operation timed out, try again"
	case errors.Is(err, marketerrors.ErrStoreFailure):
		return http.StatusServiceUnavailable, "service unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, handler string, err error) {
	status, message := MapErrorToHTTP(err)
	fields := map[string]any{
		"handler": handler,
		"path":    r.URL.Path,
		"status":  status,
		"error":   err.Error(),
	}
	if status >= http.StatusInternalServerError {
		logger.Error(handler+": request failed", fields)
	} else {
		logger.Debug(handler+": request rejected", fields)
	}

	// Internal details stay in the log for server-side failures.
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		detail = message
	}
	writeJSON(w, status, ErrorResponse{Status: status, Message: message, Error: detail})
}

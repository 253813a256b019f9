package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/server/api"
	"github.com/go-chi/chi/v5/middleware"
)

// statusFor maps an error kind onto its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrMalformedRequest),
		errors.Is(err, common.ErrValidationFailed),
		errors.Is(err, common.ErrMissingCredential):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, common.ErrUnknownConfig),
		errors.Is(err, common.ErrConfigDisabled),
		errors.Is(err, common.ErrUnknownDocumentType),
		errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflictPersistence), errors.Is(err, common.ErrConstraintViolation):
		return http.StatusConflict
	case errors.Is(err, common.ErrJobRejected):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, common.ErrDownstream):
		return http.StatusServiceUnavailable
	case errors.Is(err, common.ErrQueryFailed):
		return http.StatusInternalServerError
	default:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	} else {
		s.logger.Info(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	msg := api.Message(err)
	if status == http.StatusRequestEntityTooLarge {
		msg = "request body too large"
	}
	writeJSON(w, status, api.ErrorResponse{Success: false, Message: msg, Errors: api.Violations(err)})
}

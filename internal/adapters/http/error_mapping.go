package httpadapter

import (
	"net/http"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorKindLabel names the domain kind of err for logs.
func errorKindLabel(err error) string {
	for _, k := range []struct {
		kind  error
		label string
	}{
		{domain.ErrValidation, "validation"},
		{domain.ErrUnauthorized, "unauthorized"},
		{domain.ErrForbidden, "forbidden"},
		{domain.ErrNotFound, "not_found"},
		{domain.ErrConflict, "conflict"},
		{domain.ErrTemporary, "temporary"},
		{domain.ErrTransaction, "transaction"},
	} {
		if domain.IsKind(err, k.kind) {
			return k.label
		}
	}
	return "internal"
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
	*domain.ConflictError
}

// writeError renders err with the status of its kind. Internal failures
// are logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	traceFromContext(r.Context()).setError(err)
	resp := errorResponse{
		Error:     err.Error(),
		RequestID: requestIDFromContext(r.Context()),
	}
	if conflict, ok := domain.AsConflict(err); ok {
		resp.ConflictError = conflict
	}
	if status == http.StatusInternalServerError {
		logHandlerError(r, "http_internal_error", err)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

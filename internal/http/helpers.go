package http

import (
	"errors"
	"net/http"
	"strings"

	"cashback/internal/core"
	"cashback/internal/log"
	"cashback/internal/pricing"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case core.IsValidation(err),
		errors.Is(err, core.ErrFutureDate),
		errors.Is(err, core.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, pricing.ErrUpstream),
		errors.Is(err, pricing.ErrNoPrice):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as JSON. Unexpected errors are logged and hidden
// behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var fe *core.FieldError
	if errors.As(err, &fe) {
		FieldErrorResponse(fe.Field, fe.Msg).Write(w)
		return
	}

	status := statusFor(err)
	logger := log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
	switch status {
	case http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, operation,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		InternalServerError().Write(w)
		return
	case http.StatusBadGateway:
		logger.WarnContext(r.Context(), "Upstream price lookup failed",
			log.FieldOperation, operation,
			log.FieldError, err)
		ErrorResponse(status, "price service unavailable").Write(w)
		return
	}

	if status == http.StatusNotFound {
		NotFoundError("not found").Write(w)
		return
	}

	body := ErrorBody{Error: err.Error()}
	if errors.Is(err, core.ErrFutureDate) || errors.Is(err, core.ErrInvalidDate) {
		body.Field = "date"
	}
	NewResponse().Status(status).JSON(body).Write(w)
}

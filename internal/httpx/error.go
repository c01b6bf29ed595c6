package httpx

import (
	"log/slog"
	"net/http"

	"github.com/fleetify/api/internal/middleware"
)

// ErrorEnvelope is re-exported for clients of this package and tests.
type ErrorEnvelope = middleware.ErrorEnvelope

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	WriteJSON(w, status, middleware.NewErrorEnvelope(r, code, message, details))
}

// WriteInternal logs err as event and answers 500 internal_error with
// message. The cause is only logged.
func WriteInternal(w http.ResponseWriter, r *http.Request, logger *slog.Logger, event, message string, err error, attrs ...any) {
	if logger != nil {
		args := append([]any{"error", err, "request_id", middleware.RequestIDFromContext(r.Context())}, attrs...)
		logger.ErrorContext(r.Context(), event, args...)
	}
	WriteError(w, r, http.StatusInternalServerError, "internal_error", message, nil)
}

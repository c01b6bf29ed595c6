package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is the body of every error response, whether it comes from
// middleware, request validation or a handler.
type ErrorEnvelope struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"requestId"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorEnvelope stamps the envelope with the request ID carried by r.
func NewErrorEnvelope(r *http.Request, code, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{
		Error:     ErrorBody{Code: code, Message: message, Details: details},
		RequestID: RequestIDFromContext(r.Context()),
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorEnvelope(r, code, message, details))
}

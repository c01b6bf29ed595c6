package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fleetify/api/internal/auth"
	"github.com/fleetify/api/internal/store"
)

// TokenLookup resolves a hashed API token to its principal.
type TokenLookup interface {
	PrincipalByTokenHash(ctx context.Context, tokenHash string) (store.Principal, error)
}

type AuthMiddleware struct {
	Tokens TokenLookup
	Logger *slog.Logger
}

func (m AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="fleetify"`)
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
			return
		}

		principal, err := m.Tokens.PrincipalByTokenHash(r.Context(), auth.HashToken(token))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Token is invalid", nil)
				return
			}
			if m.Logger != nil {
				m.Logger.Error("token_lookup_failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
			}
			writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load token", nil)
			return
		}

		recordTenant(r.Context(), principal.TenantID)
		ctx := WithActor(r.Context(), Actor{
			TokenID:    principal.TokenID,
			TenantID:   principal.TenantID,
			UserID:     principal.UserID,
			TenantName: principal.TenantName,
			Email:      principal.UserEmail,
			Scopes:     principal.Scopes,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

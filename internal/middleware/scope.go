package middleware

import "net/http"

const (
	ScopeImportsRead   = "imports.read"
	ScopeImportsWrite  = "imports.write"
	ScopePaymentsMatch = "payments.match"
	ScopePaymentsLink  = "payments.link"
)

func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
				return
			}
			if !actor.HasScope(scope) {
				writeError(w, r, http.StatusForbidden, "forbidden", "Token lacks the required scope", map[string]string{"scope": scope})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

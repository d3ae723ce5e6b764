package httpapi

import (
	"net/http"
	"strings"

	"github.com/Sakshee21/SafeHavenWS/internal/auth"
)

// publicPaths need no bearer token: probes, metrics, token issuance and
// the read-only map surfaces the portal loads before sign-in.
var publicPaths = map[string]bool{
	"/healthz":         true,
	"/readyz":          true,
	"/metrics":         true,
	"/v1/info":         true,
	"/v1/auth/token":   true,
	"/v1/cases/nearby": true,
	"/v1/stream/cases": true,
}

// withAuth binds the request to a principal from the bearer token.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if raw == "" || !strings.HasPrefix(raw, "Bearer ") {
			writeError(w, r, http.StatusUnauthorized, "bearer token required")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
		p, _, err := auth.ParseAndValidate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), p)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"queueline/internal/auth"
)

type authContextKey struct{}

// AuthMiddleware verifies bearer tokens. Public endpoints pass through
// without one, but still carry the claims when a valid token is presented.
func AuthMiddleware(issuer *auth.Issuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if isPublicEndpoint(r) {
			if token != "" {
				if claims, err := issuer.Verify(token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), authContextKey{}, claims))
				}
			}
			next.ServeHTTP(w, r)
			return
		}
		if token == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
			return
		}
		claims, err := issuer.Verify(token)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(authContextKey{}).(*auth.Claims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

func requireOperator(w http.ResponseWriter, r *http.Request, businessID string) bool {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
		return false
	}
	if businessID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "business_id is required")
		return false
	}
	if !claims.CanOperate(businessID) {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "business access denied")
		return false
	}
	return true
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/queue/entries", "/api/reservations":
		return r.Method == http.MethodPost
	}
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/queue/entries/") {
		_, rest := splitSubjectPath(r.URL.Path, "/api/queue/entries/")
		return len(rest) == 1 && rest[0] == "live"
	}
	return false
}

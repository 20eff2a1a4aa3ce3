package httpapi

import (
	"context"
	"net/http"
	"strings"

	"roundrobin/onboarding-service/internal/auth"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type authContextKey struct{}

// requireRole authenticates the session cookie and admits only callers of
// the given role. Claims are stored on the request context.
func (h *Handler) requireRole(role auth.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := h.issuer.Authenticate(auth.TokenFromRequest(r))
			if err == nil {
				claims, err = auth.RequireRole(claims, role)
			}
			if err != nil {
				writeUnauthorized(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), authContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(authContextKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

// RequestIDMiddleware makes sure every request carries an X-Request-ID and
// echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFromRequest(r)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

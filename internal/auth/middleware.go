package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"parkpass/internal/models"
)

type ctxKey struct{}

// SessionFrom returns the authenticated session, or nil on public routes.
func SessionFrom(ctx context.Context) *models.Session {
	s, _ := ctx.Value(ctxKey{}).(*models.Session)
	return s
}

// Middleware authenticates the Bearer token and injects the session into the
// request context.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "missing bearer token")
				return
			}
			s, err := ParseToken(secret, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, s)))
		})
	}
}

// RequireRole gates a route group to one role. It assumes Middleware ran
// earlier in the chain.
func RequireRole(role models.DeviceRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := SessionFrom(r.Context())
			if s == nil {
				unauthorized(w, "missing bearer token")
				return
			}
			if s.Role != role {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{"error": "insufficient role"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

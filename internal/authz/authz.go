// Package authz guards HTTP handlers with bearer-token checks.
package authz

import (
	"context"
	"net/http"
	"strings"

	"github.com/Old6Man6/Qtime/libs/auth"
)

type contextKey struct{}

// ClaimsFrom returns the verified token claims placed by RequireAuth.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*auth.Claims)
	return claims, ok
}

// RequireAuth rejects requests without a valid bearer token and stores the
// claims in the request context.
func RequireAuth(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := auth.ParseAndVerifyHS256(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth parses a bearer token when one is present but never rejects.
// Handlers that mix public reads with role-gated writes check the claims
// themselves.
func OptionalAuth(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if claims, err := auth.ParseAndVerifyHS256(token, jwtSecret); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), contextKey{}, claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows only the listed roles through. Must run after RequireAuth.
func RequireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

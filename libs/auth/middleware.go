package auth

import (
	"net/http"
	"strings"
)

// Identity headers set by RequireAuth for downstream handlers.
const (
	HeaderUserID = "X-User-Id"
	HeaderEmail  = "X-User-Email"
	HeaderRole   = "X-Role"
)

// RequireAuth verifies the Bearer token and forwards identity as headers.
// Client-supplied identity headers are always stripped first.
func RequireAuth(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(HeaderUserID)
		r.Header.Del(HeaderEmail)
		r.Header.Del(HeaderRole)

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := ParseAndVerifyHS256(token, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		r.Header.Set(HeaderUserID, claims.Sub)
		r.Header.Set(HeaderEmail, claims.Email)
		r.Header.Set(HeaderRole, claims.Role)
		next.ServeHTTP(w, r)
	})
}

// RequireRole allows the request through only when the identity role set by
// RequireAuth matches one of the given roles.
func RequireRole(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := strings.TrimSpace(r.Header.Get(HeaderRole))
		for _, allowed := range roles {
			if role == allowed {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	})
}

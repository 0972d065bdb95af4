package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/archestra-ai/gateway/pkg/handlers"
)

// Middleware provides HTTP authentication middleware for the admin API.
// It is thin and delegates token verification to a JWKSClientInterface.
type Middleware struct {
	jwks   JWKSClientInterface
	logger *zap.Logger
}

// NewMiddleware creates a new auth middleware backed by the given JWKS client.
func NewMiddleware(jwks JWKSClientInterface, logger *zap.Logger) *Middleware {
	return &Middleware{jwks: jwks, logger: logger}
}

// RequireAuth validates a Bearer JWT and injects its claims into the request
// context. Use for every admin endpoint.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			_ = handlers.WriteError(w, http.StatusUnauthorized, handlers.ErrorTypeAPI, "missing bearer token")
			return
		}

		claims, err := m.jwks.ValidateToken(token)
		if err != nil {
			m.logger.Warn("admin token validation failed", zap.Error(err))
			_ = handlers.WriteError(w, http.StatusUnauthorized, handlers.ErrorTypeAPI, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, TokenKey, token)
		r = r.WithContext(ctx)
		if claims.Email != "" {
			r.Header.Set("X-Admin-Email", claims.Email)
		}
		next(w, r)
	}
}

// RequireRole wraps RequireAuth and additionally requires the given role.
func (m *Middleware) RequireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		if !ok || !claims.HasRole(role) {
			_ = handlers.WriteError(w, http.StatusForbidden, handlers.ErrorTypeAPI, "insufficient role")
			return
		}
		next(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

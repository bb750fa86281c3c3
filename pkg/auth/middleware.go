package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
)

type contextKey struct{}

// Principal is the authenticated caller
type Principal struct {
	UserID string
	Email  string
	Role   string
	// Method is "jwt" or "apikey"
	Method string
}

// WithPrincipal returns a context carrying p
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the caller authenticated for ctx, if any
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}

// UserID returns the caller's user ID, or "" for anonymous requests
func UserID(ctx context.Context) string {
	if p, ok := FromContext(ctx); ok {
		return p.UserID
	}
	return ""
}

// AuthMiddleware rejects requests without a valid bearer token or X-API-Key.
// Either manager may be nil to disable that method.
type AuthMiddleware struct {
	jwt    *JWTManager
	keys   *APIKeyManager
	public []string
}

// NewAuthMiddleware creates the middleware. Requests to the public paths are
// let through unauthenticated.
func NewAuthMiddleware(jwtManager *JWTManager, apiKeyManager *APIKeyManager, public ...string) *AuthMiddleware {
	return &AuthMiddleware{
		jwt:    jwtManager,
		keys:   apiKeyManager,
		public: public,
	}
}

// Handler wraps next
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || slices.Contains(m.public, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		p, msg := m.authenticate(r)
		if p == nil {
			unauthorized(w, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (*Principal, string) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || m.jwt == nil {
			return nil, "unsupported authorization scheme"
		}
		claims, err := m.jwt.Verify(token)
		if err != nil {
			return nil, "invalid or expired token"
		}
		return &Principal{UserID: claims.UserID, Email: claims.Email, Role: claims.Role, Method: "jwt"}, ""
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		if m.keys == nil {
			return nil, "API keys are not accepted"
		}
		rec, err := m.keys.Verify(key)
		if err != nil {
			return nil, err.Error()
		}
		return &Principal{UserID: rec.UserID, Method: "apikey"}, ""
	}

	return nil, "no credentials provided"
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="media-compositor"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}

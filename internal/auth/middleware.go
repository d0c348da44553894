package auth

import (
	"net/http"
	"strings"
)

// Middleware validates JWTs, enforces RBAC and the viewer subscriber scope.
// Bill id routes are scope-checked by the bill owner lookup in the handler.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap applies auth and RBAC to the handler. A nil middleware disables auth.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(extractBearer(r), m.Secret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !RoleAtLeast(role, required) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if requested := m.Policy.ScopedSubscriber(r); requested != "" || r.URL.Path == "/ws" {
			if err := EnsureScope(role, claims.SubscriberID, requested); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		ctx := WithIdentity(r.Context(), claims.SubscriberID, role, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return parts[1]
	}
	// Browsers cannot set headers on EventSource or WebSocket requests.
	return r.URL.Query().Get("access_token")
}

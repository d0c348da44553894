package auth

import (
	"net/http"
	"strings"
)

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves required role for the request.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	method := r.Method

	switch {
	case path == "/ws":
		return RoleViewer, true
	case path == "/api/v1/bills/generate":
		return RoleAdmin, true
	case strings.HasPrefix(path, "/api/v1/bills/"):
		if strings.HasSuffix(path, "/status") {
			return RoleAdmin, true
		}
		return RoleViewer, true
	case strings.HasPrefix(path, "/api/v1/simulations/"):
		if method == http.MethodGet {
			return RoleViewer, true
		}
		return RoleOperator, true
	case strings.HasPrefix(path, "/api/v1/subscribers/"):
		return RoleViewer, true
	}

	if strings.HasPrefix(path, "/api/") {
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return RoleViewer, true
		}
		return RoleOperator, true
	}
	return "", false
}

// ScopedSubscriber returns the subscriber a request addresses, if any.
func (p Policy) ScopedSubscriber(r *http.Request) string {
	if r == nil {
		return ""
	}
	if r.URL.Path == "/ws" {
		return r.URL.Query().Get("subscriber_id")
	}
	for _, prefix := range []string{"/api/v1/subscribers/", "/api/v1/simulations/"} {
		if rest, ok := strings.CutPrefix(r.URL.Path, prefix); ok {
			id, _, _ := strings.Cut(rest, "/")
			return id
		}
	}
	return ""
}

// EnsureScope checks that a viewer only reaches its own subscriber.
// Staff roles are unrestricted.
func EnsureScope(role Role, tokenSubscriberID, requested string) error {
	if role != RoleViewer {
		return nil
	}
	if requested == "" || requested != tokenSubscriberID {
		return ErrScopeMismatch
	}
	return nil
}

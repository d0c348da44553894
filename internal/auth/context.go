package auth

import "context"

type contextKey string

const (
	contextKeySubscriber contextKey = "auth.subscriber_id"
	contextKeyRole       contextKey = "auth.role"
	contextKeySubject    contextKey = "auth.subject"
)

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, subscriberID string, role Role, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeySubscriber, subscriberID)
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// SubscriberIDFromContext extracts the token subscriber scope from context.
func SubscriberIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if subscriberID, ok := ctx.Value(contextKeySubscriber).(string); ok {
		return subscriberID
	}
	return ""
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if subject, ok := ctx.Value(contextKeySubject).(string); ok {
		return subject
	}
	return ""
}

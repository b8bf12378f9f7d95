// Package contextkeys carries the authenticated caller through request contexts.
package contextkeys

import "context"

type contextKey string

const (
	UserID    contextKey = "userID"
	UserEmail contextKey = "userEmail"
	UserRole  contextKey = "userRole"
)

// WithUser stores the caller identity decoded from a bearer token.
func WithUser(ctx context.Context, id, email, role string) context.Context {
	ctx = context.WithValue(ctx, UserID, id)
	ctx = context.WithValue(ctx, UserEmail, email)
	return context.WithValue(ctx, UserRole, role)
}

// UserIDFrom returns the caller's user id, or "" for anonymous requests.
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(UserID).(string)
	return id
}

// RoleFrom returns the caller's role, or "" for anonymous requests.
func RoleFrom(ctx context.Context) string {
	role, _ := ctx.Value(UserRole).(string)
	return role
}

package shared

import "context"

// Principal is the authenticated actor attached to a request.
type Principal struct {
	UserID   int64
	Email    string
	Username string
	Token    string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	p := PrincipalFromContext(ctx)
	if p == nil || p.UserID <= 0 {
		return 0, false
	}
	return p.UserID, true
}

// Package tenantx carries the tenant identity as an explicit value.
// Repositories take it as a parameter and log lines pick it up from the
// context; tenant scoping is never rebuilt from strings inside SQL text.
package tenantx

import "context"

type contextKey struct{}

type Tenant struct {
	ID   string
	Slug string
}

func WithTenant(ctx context.Context, tenant Tenant) context.Context {
	return context.WithValue(ctx, contextKey{}, tenant)
}

func FromContext(ctx context.Context) (Tenant, bool) {
	if v := ctx.Value(contextKey{}); v != nil {
		if t, ok := v.(Tenant); ok {
			return t, true
		}
	}
	return Tenant{}, false
}

func SlugFromContext(ctx context.Context) string {
	if t, ok := FromContext(ctx); ok {
		return t.Slug
	}
	return ""
}

package middleware

import "context"

type identityKey struct{}

// identity is what the auth middleware learned from the bearer token.
// ProviderID is empty for customers and admins.
type identity struct {
	UserID     string
	Role       string
	ProviderID string
}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

func withIdentity(ctx context.Context, mutate func(*identity)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id := identityFrom(ctx)
	mutate(&id)
	return context.WithValue(ctx, identityKey{}, id)
}

func UserIDFromContext(ctx context.Context) string { return identityFrom(ctx).UserID }

func RoleFromContext(ctx context.Context) string { return identityFrom(ctx).Role }

// ProviderIDFromContext returns the service provider bound to a provider token.
func ProviderIDFromContext(ctx context.Context) string { return identityFrom(ctx).ProviderID }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withIdentity(ctx, func(id *identity) { id.UserID = userID })
}

func WithRole(ctx context.Context, role string) context.Context {
	return withIdentity(ctx, func(id *identity) { id.Role = role })
}

func WithProviderID(ctx context.Context, providerID string) context.Context {
	return withIdentity(ctx, func(id *identity) { id.ProviderID = providerID })
}

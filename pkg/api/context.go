package api

import (
	"context"

	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

type principalKey struct{}

// Principal is the authenticated caller identity attached by the auth
// middleware.
type Principal struct {
	Signer wallet.Address
}

// WithPrincipal stores the principal in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// GetPrincipal returns the principal, or nil when unauthenticated.
func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

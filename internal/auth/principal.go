// ABOUTME: Principal identity resolved for each authenticated request
// ABOUTME: Provides WithPrincipal/FromContext for propagating it via context

package auth

import (
	"context"

	"github.com/bluemedia/timechamp/internal/store"
)

// Method is how a principal authenticated.
type Method string

const (
	MethodSession Method = "session"
	MethodAPIKey  Method = "api_key"
)

// Principal holds the identity and effective permission of the caller.
// It is populated by RequireAuthentication and read by handlers.
type Principal struct {
	UserID     string           // owning user of the credential
	Permission store.Permission // session: owner's permission; API key: key's permission
	Method     Method
	KeyID      string // API key ID or session ID that authenticated the request
}

// IsAPIKey reports whether the request authenticated with an API key.
func (p *Principal) IsAPIKey() bool {
	return p.Method == MethodAPIKey
}

// principalKey is the key type for storing Principal in context.Context.
type principalKey struct{}

// WithPrincipal returns a new context with the Principal attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the Principal from the context, returning nil if not present.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// MustFromContext retrieves the Principal from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Principal {
	p := FromContext(ctx)
	if p == nil {
		panic("auth: Principal not found in context")
	}
	return p
}

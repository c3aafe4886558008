// Package auth is the identity provider boundary: signed-in users and the providers that produce them.
package auth

import "context"

// Provider names.
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
	ProviderLocal    = "local"
)

// User is a signed-in identity.
type User interface {
	DisplayName() string
	Email() string
	PhotoURL() string
	UID() string
	// IDToken returns a token for the GraphQL API, refreshing it when it is close to expiry.
	IDToken(ctx context.Context) (string, error)
}

// Provider signs users in and out.
type Provider interface {
	Name() string
	SignIn(ctx context.Context) (User, error)
	SignOut(ctx context.Context) error
	// CurrentUser returns nil when nobody is signed in.
	CurrentUser() User
}

// Providers is the set of providers offered to the session manager, keyed by Name.
type Providers map[string]Provider

// NewProviders indexes providers by name.
func NewProviders(ps ...Provider) Providers {
	out := make(Providers, len(ps))
	for _, p := range ps {
		out[p.Name()] = p
	}
	return out
}

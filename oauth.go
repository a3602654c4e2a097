package authlink

import (
	"context"
	"net/url"

	"golang.org/x/oauth2"
)

// OAuthProfile is the normalized identity returned by a provider
type OAuthProfile struct {
	ID    string
	Email string
	Name  string
	Image string
	Raw   map[string]any
	Token *oauth2.Token
}

// OAuthChecks are the protections the core created for one round trip.
// A field is empty when the provider does not declare the capability.
type OAuthChecks struct {
	State        string
	CodeVerifier string
}

// OAuthClient performs the OAuth protocol exchange for a provider.
// The sign-in core only builds on this contract.
type OAuthClient interface {
	// AuthorizationURL returns where to send the user to authorize.
	// The client sends checks.State as is and derives the PKCE challenge from
	// checks.CodeVerifier.
	AuthorizationURL(ctx context.Context, p *Provider, query url.Values, checks OAuthChecks) (string, error)

	// Exchange trades the callback parameters for the user's profile.
	// checks.State is already verified; CodeVerifier goes to the token endpoint.
	Exchange(ctx context.Context, p *Provider, query url.Values, checks OAuthChecks) (*OAuthProfile, error)
}

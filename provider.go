package authlink

import (
	"context"
	"fmt"
	"time"
)

// ProviderType is the kind of sign-in a provider performs
type ProviderType string

const (
	ProviderTypeOAuth ProviderType = "oauth"
	ProviderTypeEmail ProviderType = "email"
)

// KnownProviderTypes lists every provider kind that has a sign-in handler.
// AuthLink.Init refuses to start if one of them has no handler in SigninDispatcher.
var KnownProviderTypes = []ProviderType{ProviderTypeOAuth, ProviderTypeEmail}

// Capability is a protection or feature a provider declares
type Capability string

const (
	// CapabilityState requires an anti-forgery state nonce bound to a cookie
	CapabilityState Capability = "state"

	// CapabilityPKCE requires a code verifier bound to a cookie and an S256
	// code challenge on the authorization request
	CapabilityPKCE Capability = "pkce"
)

// CapabilitySet is the enumerable set of capabilities of a provider
type CapabilitySet map[Capability]struct{}

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	out := make(CapabilitySet, len(caps))
	for _, c := range caps {
		out[c] = struct{}{}
	}
	return out
}

// Has reports membership. A nil set has no capabilities.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// TokenGenerator produces a raw verification token for the email flow
type TokenGenerator func(ctx context.Context) (string, error)

// Provider describes a configured sign-in provider.
// Providers are created at startup and treated as immutable afterwards.
type Provider struct {
	ID           string
	Name         string
	Type         ProviderType
	Capabilities CapabilitySet

	// MaxAge is how long a verification token issued for this provider is valid.
	// Defaults to DefaultVerificationMaxAge.
	MaxAge time.Duration

	// Email hooks
	GenerateToken TokenGenerator
	Sender        VerificationSender

	// OAuth settings
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string

	// ProfileMapper converts the raw userinfo document into an OAuthProfile.
	// When nil the OAuth client uses the "id"/"sub", "email" and "name" fields.
	ProfileMapper func(raw map[string]any) (*OAuthProfile, error)
}

// NewEmailProvider creates a passwordless email provider
func NewEmailProvider(id string, sender VerificationSender) *Provider {
	return &Provider{
		ID:     id,
		Name:   "Email",
		Type:   ProviderTypeEmail,
		MaxAge: DefaultVerificationMaxAge,
		Sender: sender,
	}
}

func (p *Provider) tokenMaxAge() time.Duration {
	if p.MaxAge > 0 {
		return p.MaxAge
	}
	return DefaultVerificationMaxAge
}

// Validate checks the provider is usable. Failures wrap ErrConfiguration and
// are meant to be reported at startup, not per request.
func (p *Provider) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil provider", ErrConfiguration)
	}
	if p.ID == "" {
		return fmt.Errorf("%w: provider id is required", ErrConfiguration)
	}
	switch p.Type {
	case "":
		return fmt.Errorf("%w: type not specified for provider %q", ErrConfiguration, p.ID)
	case ProviderTypeEmail:
		if p.Sender == nil {
			return fmt.Errorf("%w: email provider %q has no sender", ErrConfiguration, p.ID)
		}
	case ProviderTypeOAuth:
		if p.ClientID == "" {
			return fmt.Errorf("%w: oauth provider %q has no client id", ErrConfiguration, p.ID)
		}
		if p.AuthURL == "" || p.TokenURL == "" {
			return fmt.Errorf("%w: oauth provider %q has no endpoints", ErrConfiguration, p.ID)
		}
	}
	return nil
}

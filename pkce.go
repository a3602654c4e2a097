package authlink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// PKCEProtector keeps the PKCE code verifier of an OAuth round trip in a
// signed cookie. It works like StateProtector, with the verifier as value.
type PKCEProtector struct {
	Codec   TokenCodec
	Cookies CookieSet
	MaxAge  time.Duration
	Logger  *slog.Logger

	now func() time.Time
}

func NewPKCEProtector(codec TokenCodec, cookies CookieSet, maxAge time.Duration) *PKCEProtector {
	return (&PKCEProtector{Codec: codec, Cookies: cookies, MaxAge: maxAge}).EnsureDefaults()
}

func (s *PKCEProtector) EnsureDefaults() *PKCEProtector {
	if s.MaxAge <= 0 {
		s.MaxAge = DefaultStateMaxAge
	}
	if s.Cookies.PKCE == "" {
		s.Cookies = NewCookieSet(s.Cookies.Options)
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create returns nil if the provider does not declare CapabilityPKCE
func (s *PKCEProtector) Create(ctx context.Context, p *Provider) (*StateCheck, error) {
	if !p.Capabilities.Has(CapabilityPKCE) {
		return nil, nil
	}
	check, err := sealCheck(ctx, s.Codec, s.Cookies, s.Cookies.PKCE, oauth2.GenerateVerifier(), s.MaxAge, s.now())
	if err != nil {
		return nil, fmt.Errorf("encoding code verifier: %w", err)
	}
	s.Logger.DebugContext(ctx, "CREATE_PKCE", "provider", p.ID, "max_age", s.MaxAge)
	return check, nil
}

// Consume recovers the code verifier from the received cookie value.
//
// It returns nil, nil when the provider does not use PKCE. A missing or
// undecodable cookie is ErrCodeVerifierInvalid, since the token endpoint
// would reject the exchange anyway.
func (s *PKCEProtector) Consume(ctx context.Context, received string, p *Provider) (*StateCheck, error) {
	if !p.Capabilities.Has(CapabilityPKCE) {
		return nil, nil
	}
	if received == "" {
		return nil, fmt.Errorf("%w: cookie missing", ErrCodeVerifierInvalid)
	}
	out, err := openCheck(ctx, s.Codec, s.Cookies, s.Cookies.PKCE, received)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrCodeVerifierInvalid, err)
	}
	return out, nil
}

package authlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// StateCheck is the nonce for one sign-in attempt and the cookie that carries it.
// On Consume the cookie always clears the state cookie.
type StateCheck struct {
	Value  string
	Cookie *Cookie
}

// StateProtector issues and consumes the anti-forgery state nonce.
// The signed cookie is the only place the nonce is kept.
type StateProtector struct {
	Codec   TokenCodec
	Cookies CookieSet
	MaxAge  time.Duration
	Logger  *slog.Logger

	now func() time.Time
}

func NewStateProtector(codec TokenCodec, cookies CookieSet, maxAge time.Duration) *StateProtector {
	return (&StateProtector{Codec: codec, Cookies: cookies, MaxAge: maxAge}).EnsureDefaults()
}

func (s *StateProtector) EnsureDefaults() *StateProtector {
	if s.MaxAge <= 0 {
		s.MaxAge = DefaultStateMaxAge
	}
	if s.Cookies.State == "" {
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

// Create returns nil if the provider does not require state protection
func (s *StateProtector) Create(ctx context.Context, p *Provider) (*StateCheck, error) {
	if !p.Capabilities.Has(CapabilityState) {
		return nil, nil
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}
	check, err := sealCheck(ctx, s.Codec, s.Cookies, s.Cookies.State, nonce, s.MaxAge, s.now())
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	s.Logger.DebugContext(ctx, "CREATE_STATE", "provider", p.ID, "max_age", s.MaxAge)
	return check, nil
}

// Consume unwraps a received state cookie value.
//
// It returns nil, nil when the provider does not use state or nothing was
// received. Otherwise the returned check always carries a clearing cookie, and
// a decode failure is reported as ErrStateTokenInvalid.
func (s *StateProtector) Consume(ctx context.Context, received string, p *Provider) (*StateCheck, error) {
	if !p.Capabilities.Has(CapabilityState) || received == "" {
		return nil, nil
	}

	out, err := openCheck(ctx, s.Codec, s.Cookies, s.Cookies.State, received)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrStateTokenInvalid, err)
	}
	return out, nil
}

// sealCheck signs value into a short lived cookie
func sealCheck(ctx context.Context, codec TokenCodec, cookies CookieSet, name, value string, maxAge time.Duration, now time.Time) (*StateCheck, error) {
	encoded, err := codec.Encode(ctx, map[string]any{"value": value}, maxAge)
	if err != nil {
		return nil, err
	}
	return &StateCheck{Value: value, Cookie: cookies.cookie(name, encoded, maxAge, now)}, nil
}

// openCheck decodes a cookie written by sealCheck. The returned check clears
// the cookie even when decoding fails.
func openCheck(ctx context.Context, codec TokenCodec, cookies CookieSet, name, received string) (*StateCheck, error) {
	out := &StateCheck{Cookie: cookies.clear(name)}
	claims, err := codec.Decode(ctx, received)
	if err != nil {
		return out, err
	}
	value, _ := claims["value"].(string)
	if value == "" {
		return out, errors.New("missing value")
	}
	out.Value = value
	return out, nil
}

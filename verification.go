package authlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// VerificationRequest is handed to the delivery transport
type VerificationRequest struct {
	Identifier string
	Token      string
	Expires    time.Time
	URL        string
	Provider   *Provider
}

// VerificationSender delivers a verification link out of band
type VerificationSender interface {
	SendVerificationRequest(ctx context.Context, req VerificationRequest) error
}

// SenderFunc adapts a function to a VerificationSender
type SenderFunc func(ctx context.Context, req VerificationRequest) error

func (f SenderFunc) SendVerificationRequest(ctx context.Context, req VerificationRequest) error {
	return f(ctx, req)
}

// VerificationTokenIssuer generates, stores and dispatches one-time email tokens.
// Only HashToken(token) is persisted.
type VerificationTokenIssuer struct {
	Store   VerificationTokenStore
	Secret  string
	BaseURL string
	Logger  *slog.Logger

	now func() time.Time
}

func NewVerificationTokenIssuer(store VerificationTokenStore, secret, baseURL string) *VerificationTokenIssuer {
	return &VerificationTokenIssuer{
		Store:   store,
		Secret:  secret,
		BaseURL: baseURL,
		Logger:  slog.Default(),
		now:     time.Now,
	}
}

func (i *VerificationTokenIssuer) clock() time.Time {
	if i.now == nil {
		return time.Now()
	}
	return i.now()
}

func (i *VerificationTokenIssuer) logger() *slog.Logger {
	if i.Logger == nil {
		return slog.Default()
	}
	return i.Logger
}

// Issue creates a token for identifier owned by principal and sends the link.
// Delivery failures wrap ErrDeliveryFailed and are not retried.
func (i *VerificationTokenIssuer) Issue(ctx context.Context, identifier string, p *Provider, principal *Principal, callbackURL string) error {
	if principal == nil {
		return fmt.Errorf("no principal for verification of %s", identifier)
	}
	if p.Sender == nil {
		return fmt.Errorf("%w: provider %q has no sender", ErrConfiguration, p.ID)
	}

	var token string
	var err error
	if p.GenerateToken != nil {
		token, err = p.GenerateToken(ctx)
	} else {
		token, err = GenerateSecureToken()
	}
	if err != nil {
		return fmt.Errorf("generating verification token: %w", err)
	}
	if token == "" {
		return fmt.Errorf("generating verification token: empty token")
	}

	expires := i.clock().Add(p.tokenMaxAge())
	record := &VerificationToken{
		Identifier:  identifier,
		TokenDigest: HashToken(token, i.Secret),
		UserID:      principal.ID,
		Expires:     expires,
	}
	if err := i.Store.CreateVerificationToken(ctx, record); err != nil {
		return fmt.Errorf("saving verification token: %w", err)
	}

	params := url.Values{
		"callbackUrl": {callbackURL},
		"token":       {token},
		"email":       {identifier},
	}
	link := joinURL(i.BaseURL, "callback/"+url.PathEscape(p.ID)) + "?" + params.Encode()

	err = p.Sender.SendVerificationRequest(ctx, VerificationRequest{
		Identifier: identifier,
		Token:      token,
		Expires:    expires,
		URL:        link,
		Provider:   p,
	})
	if err != nil {
		i.logger().ErrorContext(ctx, "SEND_VERIFICATION_EMAIL_ERROR",
			"identifier", identifier,
			"url", i.BaseURL,
			"user_id", principal.ID,
			"error", err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// Verify consumes the token delivered to identifier. A token can be used once;
// expired tokens are consumed and rejected with ErrTokenExpired.
func (i *VerificationTokenIssuer) Verify(ctx context.Context, identifier, token string) (*VerificationToken, error) {
	if identifier == "" || token == "" {
		return nil, ErrNotFound
	}
	record, err := i.Store.UseVerificationToken(ctx, identifier, HashToken(token, i.Secret))
	if err != nil {
		return nil, err
	}
	if record.IsExpired(i.clock()) {
		return nil, ErrTokenExpired
	}
	return record, nil
}

// IsDeliveryFailure reports whether err came from the delivery transport
func IsDeliveryFailure(err error) bool {
	return errors.Is(err, ErrDeliveryFailed)
}

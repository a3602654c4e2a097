package authlink

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// SigninRequest carries everything the dispatcher needs for one attempt
type SigninRequest struct {
	Provider      *Provider
	Query         url.Values
	Body          url.Values
	SessionHandle string
}

type signinHandler func(ctx context.Context, req SigninRequest) ResponseDirective

// SigninDispatcher sequences a sign-in attempt for a provider and turns every
// outcome into exactly one ResponseDirective. It is the only place where
// internal failures are translated into externally visible results.
type SigninDispatcher struct {
	BaseURL         string
	DefaultRedirect string
	Cookies         CookieSet

	OAuth    OAuthClient
	State    *StateProtector
	PKCE     *PKCEProtector
	Sessions *SessionResolver
	Linker   *AccountLinker
	Issuer   *VerificationTokenIssuer
	Logger   *slog.Logger

	now func() time.Time
}

func (d *SigninDispatcher) EnsureDefaults() *SigninDispatcher {
	if d.DefaultRedirect == "" {
		d.DefaultRedirect = "/"
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// handlerFor is the one place provider kinds are mapped to their flows
func (d *SigninDispatcher) handlerFor(t ProviderType) signinHandler {
	switch t {
	case ProviderTypeOAuth:
		return d.oauthSignin
	case ProviderTypeEmail:
		return d.emailSignin
	}
	return nil
}

// Dispatch runs the sign-in flow for req.Provider.
//
// A provider without a type is a setup fault and yields a 500 directive.
// Unknown kinds fall back to the sign-in entry point.
func (d *SigninDispatcher) Dispatch(ctx context.Context, req SigninRequest) ResponseDirective {
	d.EnsureDefaults()
	p := req.Provider
	if p == nil || p.Type == "" {
		name := "provider"
		if p != nil {
			name = p.ID
		}
		d.Logger.ErrorContext(ctx, "SIGNIN_CONFIGURATION_ERROR", "provider", name)
		return configurationDirective(name)
	}

	handler := d.handlerFor(p.Type)
	if handler == nil {
		return redirectTo(joinURL(d.BaseURL, "signin"))
	}
	return handler(ctx, req)
}

func (d *SigninDispatcher) fail(ctx context.Context, event string, p *Provider, identifier string, se *SigninError) ResponseDirective {
	d.Logger.ErrorContext(ctx, event,
		"provider", p.ID,
		"identifier", identifier,
		"code", se.Code,
		"reason", se.Reason,
		"error", se.Err)
	return errorRedirect(d.BaseURL, se.Code, se.Reason)
}

func (d *SigninDispatcher) oauthSignin(ctx context.Context, req SigninRequest) ResponseDirective {
	p := req.Provider
	if d.OAuth == nil {
		return d.fail(ctx, "SIGNIN_OAUTH_ERROR", p, "", newSigninError(ErrorOAuthSignin, "", ErrConfiguration))
	}

	var cookies []*Cookie
	var checks OAuthChecks
	if d.State != nil {
		check, err := d.State.Create(ctx, p)
		if err != nil {
			return d.fail(ctx, "SIGNIN_OAUTH_ERROR", p, "", newSigninError(ErrorOAuthSignin, "", err))
		}
		if check != nil {
			checks.State = check.Value
			cookies = append(cookies, check.Cookie)
		}
	}
	if p.Capabilities.Has(CapabilityPKCE) {
		if d.PKCE == nil {
			return d.fail(ctx, "SIGNIN_OAUTH_ERROR", p, "", newSigninError(ErrorOAuthSignin, "", ErrConfiguration))
		}
		check, err := d.PKCE.Create(ctx, p)
		if err != nil {
			return d.fail(ctx, "SIGNIN_OAUTH_ERROR", p, "", newSigninError(ErrorOAuthSignin, "", err))
		}
		checks.CodeVerifier = check.Value
		cookies = append(cookies, check.Cookie)
	}

	target, err := d.OAuth.AuthorizationURL(ctx, p, req.Query, checks)
	if err != nil {
		return d.fail(ctx, "SIGNIN_OAUTH_ERROR", p, "", newSigninError(ErrorOAuthSignin, "", err))
	}
	if cb := firstValue("callbackUrl", req.Query, req.Body); cb != "" {
		cookies = append(cookies, d.Cookies.CallbackURLCookie(safeRedirect(d.BaseURL, cb, d.DefaultRedirect), d.now()))
	}
	return redirectTo(target, cookies...)
}

func (d *SigninDispatcher) emailSignin(ctx context.Context, req SigninRequest) ResponseDirective {
	p := req.Provider
	identifier := NormalizeIdentifier(firstValue("email", req.Body))
	if identifier == "" {
		return d.fail(ctx, "SIGNIN_EMAIL_ERROR", p, "", newSigninError(ErrorEmailSignin, "", ErrNotFound))
	}

	principal := d.Sessions.Resolve(ctx, req.SessionHandle)
	if principal == nil {
		return d.fail(ctx, "SIGNIN_EMAIL_ERROR", p, identifier, newSigninError(ErrorAccessDenied, "", ErrNotSignedIn))
	}

	callback := safeRedirect(d.BaseURL, firstValue("callbackUrl", req.Body, req.Query), d.DefaultRedirect)
	decision, err := d.Linker.Reconcile(ctx, principal, identifier, p.ID)
	if err != nil {
		return d.fail(ctx, "SIGNIN_EMAIL_ERROR", p, identifier, newSigninError(ErrorEmailSignin, "", err))
	}
	switch decision {
	case AlreadyLinked:
		d.Logger.InfoContext(ctx, "SIGNIN_EMAIL_ALREADY_LINKED", "provider", p.ID, "identifier", identifier, "user_id", principal.ID)
		return redirectTo(callback)
	case LinkedToOther:
		return d.fail(ctx, "SIGNIN_EMAIL_ERROR", p, identifier, newSigninError(ErrorEmailSignin, ReasonLinkTaken, ErrAccountLinked))
	}

	if err := d.Issuer.Issue(ctx, identifier, p, principal, callback); err != nil {
		if IsDeliveryFailure(err) {
			// the issuer has already logged the delivery failure
			return errorRedirect(d.BaseURL, ErrorEmailSignin, "")
		}
		return d.fail(ctx, "SIGNIN_EMAIL_ERROR", p, identifier, newSigninError(ErrorEmailSignin, "", err))
	}

	params := url.Values{"provider": {p.ID}, "type": {string(p.Type)}}
	return redirectTo(joinURL(d.BaseURL, "verify-request") + "?" + params.Encode())
}

// NormalizeIdentifier lower cases an email address.
// Strictly the local part is case sensitive, but treating addresses
// case-insensitively avoids duplicate identities for the same mailbox.
func NormalizeIdentifier(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func firstValue(key string, sources ...url.Values) string {
	for _, s := range sources {
		if v := s.Get(key); v != "" {
			return v
		}
	}
	return ""
}

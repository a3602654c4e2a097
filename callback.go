package authlink

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// CallbackRequest is the return leg of a sign-in attempt.
// Cookies holds the request cookies by name.
type CallbackRequest struct {
	Provider      *Provider
	Query         url.Values
	Cookies       map[string]string
	SessionHandle string
}

// CallbackHandler completes the OAuth and email flows started by SigninDispatcher.
// Like the dispatcher it never returns an error, only a ResponseDirective.
type CallbackHandler struct {
	BaseURL         string
	DefaultRedirect string
	Cookies         CookieSet

	OAuth    OAuthClient
	State    *StateProtector
	PKCE     *PKCEProtector
	Resolver *SessionResolver
	Sessions SessionIssuer
	Verifier *VerificationTokenIssuer
	Store    Store
	Logger   *slog.Logger

	now func() time.Time
}

func (h *CallbackHandler) EnsureDefaults() *CallbackHandler {
	if h.DefaultRedirect == "" {
		h.DefaultRedirect = "/"
	}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

func (h *CallbackHandler) Complete(ctx context.Context, req CallbackRequest) ResponseDirective {
	h.EnsureDefaults()
	p := req.Provider
	if p == nil || p.Type == "" {
		name := "provider"
		if p != nil {
			name = p.ID
		}
		h.Logger.ErrorContext(ctx, "CALLBACK_CONFIGURATION_ERROR", "provider", name)
		return configurationDirective(name)
	}

	switch p.Type {
	case ProviderTypeOAuth:
		return h.completeOAuth(ctx, req)
	case ProviderTypeEmail:
		return h.completeEmail(ctx, req)
	}
	return redirectTo(joinURL(h.BaseURL, "signin"))
}

func (h *CallbackHandler) fail(ctx context.Context, event string, p *Provider, se *SigninError, cookies ...*Cookie) ResponseDirective {
	h.Logger.ErrorContext(ctx, event,
		"provider", p.ID,
		"code", se.Code,
		"reason", se.Reason,
		"error", se.Err)
	return errorRedirect(h.BaseURL, se.Code, se.Reason, cookies...)
}

// checkProtections consumes the state and PKCE cookies of the round trip.
// The returned cookies clear whatever was consumed, also on failure.
func (h *CallbackHandler) checkProtections(ctx context.Context, req CallbackRequest) ([]*Cookie, OAuthChecks, error) {
	var checks OAuthChecks
	var cookies []*Cookie

	clearState, err := h.checkState(ctx, req)
	if clearState != nil {
		cookies = append(cookies, clearState)
	}
	if err != nil {
		return cookies, checks, err
	}
	checks.State = req.Query.Get("state")

	p := req.Provider
	if !p.Capabilities.Has(CapabilityPKCE) {
		return cookies, checks, nil
	}
	if h.PKCE == nil {
		return cookies, checks, fmt.Errorf("%w: no pkce protector", ErrConfiguration)
	}
	check, err := h.PKCE.Consume(ctx, req.Cookies[h.Cookies.PKCE], p)
	if check != nil {
		cookies = append(cookies, check.Cookie)
	}
	if err != nil {
		return cookies, checks, err
	}
	checks.CodeVerifier = check.Value
	return cookies, checks, nil
}

// checkState consumes the state cookie and compares its nonce with the one
// echoed back by the provider.
func (h *CallbackHandler) checkState(ctx context.Context, req CallbackRequest) (*Cookie, error) {
	p := req.Provider
	if !p.Capabilities.Has(CapabilityState) {
		return nil, nil
	}
	if h.State == nil {
		return nil, fmt.Errorf("%w: no state protector", ErrConfiguration)
	}

	check, err := h.State.Consume(ctx, req.Cookies[h.Cookies.State], p)
	var clear *Cookie
	if check != nil {
		clear = check.Cookie
	}
	if err != nil {
		return clear, err
	}
	if check == nil {
		return nil, fmt.Errorf("%w: state cookie missing", ErrStateTokenInvalid)
	}
	if subtle.ConstantTimeCompare([]byte(check.Value), []byte(req.Query.Get("state"))) != 1 {
		return clear, fmt.Errorf("%w: state mismatch", ErrStateTokenInvalid)
	}
	return clear, nil
}

func (h *CallbackHandler) completeOAuth(ctx context.Context, req CallbackRequest) ResponseDirective {
	p := req.Provider
	cookies, checks, err := h.checkProtections(ctx, req)
	if err != nil {
		return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p, newSigninError(ErrorOAuthCallback, "", err), cookies...)
	}
	if providerErr := req.Query.Get("error"); providerErr != "" {
		return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p,
			newSigninError(ErrorOAuthCallback, "", fmt.Errorf("provider returned %s", providerErr)), cookies...)
	}
	if h.OAuth == nil {
		return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p, newSigninError(ErrorOAuthCallback, "", ErrConfiguration), cookies...)
	}

	profile, err := h.OAuth.Exchange(ctx, p, req.Query, checks)
	if err != nil {
		return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p, newSigninError(ErrorOAuthCallback, "", err), cookies...)
	}
	if profile == nil || profile.ID == "" {
		return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p,
			newSigninError(ErrorOAuthCallback, "", fmt.Errorf("profile has no id")), cookies...)
	}

	principal := h.Resolver.Resolve(ctx, req.SessionHandle)
	ref := AccountRef{Provider: p.ID, ProviderAccountID: profile.ID}
	owner, err := h.Store.GetUserByAccount(ctx, ref)
	if err != nil && !IsNotFound(err) {
		return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p, newSigninError(ErrorOAuthCallback, "", err), cookies...)
	}

	account := &Account{
		Type:              ProviderTypeOAuth,
		Provider:          p.ID,
		ProviderAccountID: profile.ID,
		CreatedAt:         h.now(),
	}
	if profile.Token != nil {
		account.AccessToken = profile.Token.AccessToken
		account.RefreshToken = profile.Token.RefreshToken
		account.TokenType = profile.Token.TokenType
		account.ExpiresAt = profile.Token.Expiry
	}

	var user *User
	switch {
	case principal != nil && owner != nil && owner.ID != principal.ID:
		return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p,
			newSigninError(ErrorOAuthAccountNotLinked, "", ErrAccountLinked), cookies...)

	case principal != nil:
		user = &principal.User

	case owner != nil:
		user = owner

	default:
		email := NormalizeIdentifier(profile.Email)
		if email != "" {
			// an unverified provider email must not take over an existing user
			existing, err := h.Store.GetUserByEmail(ctx, email)
			if err != nil && !IsNotFound(err) {
				return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p, newSigninError(ErrorOAuthCallback, "", err), cookies...)
			}
			if existing != nil {
				return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p,
					newSigninError(ErrorOAuthAccountNotLinked, "", ErrAccountLinked), cookies...)
			}
		}
		user, err = h.Store.CreateUser(ctx, &User{Email: email, Name: profile.Name, Image: profile.Image})
		if err != nil {
			return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p, newSigninError(ErrorOAuthCallback, "", err), cookies...)
		}
		h.Logger.InfoContext(ctx, "CREATE_USER", "provider", p.ID, "user_id", user.ID)
	}

	if owner == nil {
		account.UserID = user.ID
		if err := h.Store.LinkAccount(ctx, account); err != nil {
			code := ErrorOAuthCallback
			if errors.Is(err, ErrAccountLinked) {
				code = ErrorOAuthAccountNotLinked
			}
			return h.fail(ctx, "OAUTH_CALLBACK_ERROR", p, newSigninError(code, "", err), cookies...)
		}
		h.Logger.InfoContext(ctx, "LINK_ACCOUNT", "provider", p.ID, "user_id", user.ID)
	}

	target := h.DefaultRedirect
	if cb, ok := req.Cookies[h.Cookies.CallbackURL]; ok {
		target = safeRedirect(h.BaseURL, cb, h.DefaultRedirect)
		cookies = append(cookies, h.Cookies.clear(h.Cookies.CallbackURL))
	}
	return h.signIn(ctx, p, user, principal, target, cookies)
}

func (h *CallbackHandler) completeEmail(ctx context.Context, req CallbackRequest) ResponseDirective {
	p := req.Provider
	identifier := NormalizeIdentifier(req.Query.Get("email"))

	record, err := h.Verifier.Verify(ctx, identifier, req.Query.Get("token"))
	if err != nil {
		return h.fail(ctx, "EMAIL_CALLBACK_ERROR", p, newSigninError(ErrorVerification, "", err))
	}

	account := &Account{
		UserID:            record.UserID,
		Type:              ProviderTypeEmail,
		Provider:          p.ID,
		ProviderAccountID: identifier,
		CreatedAt:         h.now(),
	}
	if err := h.Store.LinkAccount(ctx, account); err != nil {
		reason := ""
		if errors.Is(err, ErrAccountLinked) {
			reason = ReasonLinkTaken
		}
		return h.fail(ctx, "EMAIL_CALLBACK_ERROR", p, newSigninError(ErrorEmailSignin, reason, err))
	}
	h.Logger.InfoContext(ctx, "LINK_ACCOUNT", "provider", p.ID, "user_id", record.UserID)

	user, err := h.Store.GetUser(ctx, record.UserID)
	if err != nil {
		return h.fail(ctx, "EMAIL_CALLBACK_ERROR", p, newSigninError(ErrorVerification, "", err))
	}

	principal := h.Resolver.Resolve(ctx, req.SessionHandle)
	if principal != nil && principal.ID != user.ID {
		// the link belongs to the token's owner, not whoever is signed in now
		principal = nil
	}
	target := safeRedirect(h.BaseURL, req.Query.Get("callbackUrl"), h.DefaultRedirect)
	return h.signIn(ctx, p, user, principal, target, nil)
}

// signIn keeps an existing session for the same user or issues a new one
func (h *CallbackHandler) signIn(ctx context.Context, p *Provider, user *User, principal *Principal, target string, cookies []*Cookie) ResponseDirective {
	if principal != nil && principal.ID == user.ID {
		return redirectTo(target, cookies...)
	}
	if h.Sessions == nil {
		return h.fail(ctx, "SESSION_ERROR", p, newSigninError(ErrorConfiguration, "", ErrConfiguration), cookies...)
	}

	handle, expires, err := h.Sessions.Issue(ctx, user)
	if err != nil {
		return h.fail(ctx, "SESSION_ERROR", p, newSigninError(ErrorDefault, "", err), cookies...)
	}
	now := h.now()
	cookies = append(cookies, h.Cookies.cookie(h.Cookies.Session, handle, expires.Sub(now), now))
	h.Logger.InfoContext(ctx, "SIGNIN", "provider", p.ID, "user_id", user.ID)
	return redirectTo(target, cookies...)
}

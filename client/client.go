package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/panyam/authlink"
)

// SigninFailure is the error code an authlink server redirected to
type SigninFailure struct {
	Code   authlink.ErrorCode
	Reason string
}

func (f *SigninFailure) Error() string {
	if f.Reason != "" {
		return fmt.Sprintf("sign in failed: %s (%s)", f.Code, f.Reason)
	}
	return fmt.Sprintf("sign in failed: %s", f.Code)
}

// IsLinkTaken reports whether err means the address belongs to another user
func IsLinkTaken(err error) bool {
	var f *SigninFailure
	return errors.As(err, &f) && f.Reason == authlink.ReasonLinkTaken
}

// Client talks to the routes of an authlink server and remembers the session
type Client struct {
	mu            sync.Mutex
	baseURL       string // where the auth routes are mounted, e.g. https://example.com/auth
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	cookieNames   []string
	now           func() time.Time
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTransport sets the base transport the bearer transport wraps
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.baseTransport = transport
	}
}

// WithTimeout sets the timeout of every request
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithSessionCookieName overrides the session cookie names the server may set
func WithSessionCookieName(names ...string) ClientOption {
	return func(c *Client) {
		c.cookieNames = names
	}
}

func NewClient(baseURL string, store CredentialStore, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
		cookieNames: []string{
			authlink.NewCookieSet(authlink.CookieOptions{}).Session,
			authlink.NewCookieSet(authlink.CookieOptions{Secure: true}).Session,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = &BearerTransport{Base: c.baseTransport, Handle: c.Handle}
	// every auth route answers with a redirect we need to inspect
	c.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// HTTPClient returns a client that sends the session handle with every
// request, for calling the host application's own APIs.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Transport: &BearerTransport{Base: c.baseTransport, Handle: c.Handle},
		Timeout:   c.httpClient.Timeout,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Handle returns the stored session handle, or "" if there is none or it expired
func (c *Client) Handle() string {
	cred, err := c.store.GetCredential(c.baseURL)
	if err != nil || cred == nil || cred.IsExpired(c.now()) {
		return ""
	}
	return cred.Handle
}

func (c *Client) GetCredential() (*SessionCredential, error) {
	return c.store.GetCredential(c.baseURL)
}

// IsLoggedIn returns true if there is an unexpired session handle
func (c *Client) IsLoggedIn() bool {
	return c.Handle() != ""
}

// UseHandle stores a session handle obtained some other way
func (c *Client) UseHandle(handle string, expires time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked(&SessionCredential{Handle: handle, ExpiresAt: expires, CreatedAt: c.now()})
}

func (c *Client) saveLocked(cred *SessionCredential) error {
	if err := c.store.SetCredential(c.baseURL, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// RequestEmailLink asks the server to send a sign-in link for email.
// The server only does this for a signed in user, so a session is required.
func (c *Client) RequestEmailLink(ctx context.Context, providerID, email, callbackURL string) error {
	form := url.Values{"email": {email}}
	if callbackURL != "" {
		form.Set("callbackUrl", callbackURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/signin/"+url.PathEscape(providerID), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if _, err := c.redirectTarget(resp); err != nil {
		return err
	}
	return nil
}

// CompleteEmailLink follows a delivered sign-in link. If the server starts a
// new session its handle is stored; otherwise the current session is kept.
func (c *Client) CompleteEmailLink(ctx context.Context, link string) (*SessionCredential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if _, err := c.redirectTarget(resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cookie := c.sessionCookie(resp); cookie != nil {
		cred := &SessionCredential{Handle: cookie.Value, CreatedAt: c.now()}
		if cookie.MaxAge > 0 {
			cred.ExpiresAt = c.now().Add(time.Duration(cookie.MaxAge) * time.Second)
		} else if !cookie.Expires.IsZero() {
			cred.ExpiresAt = cookie.Expires
		}
		if err := c.saveLocked(cred); err != nil {
			return nil, err
		}
	}

	cred, err := c.store.GetCredential(c.baseURL)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, errors.New("server did not start a session")
	}
	return cred, nil
}

// Session fetches the signed in principal. It returns nil, nil when the
// server does not recognize the session.
func (c *Client) Session(ctx context.Context) (*authlink.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session request failed: HTTP %d", resp.StatusCode)
	}

	var principal authlink.Principal
	if err := json.NewDecoder(resp.Body).Decode(&principal); err != nil {
		return nil, fmt.Errorf("invalid response from server: %w", err)
	}
	if principal.ID == "" {
		return nil, nil
	}

	// remember who the handle belongs to
	c.mu.Lock()
	defer c.mu.Unlock()
	if cred, _ := c.store.GetCredential(c.baseURL); cred != nil && cred.UserID != principal.ID {
		cred.UserID = principal.ID
		cred.UserEmail = principal.Email
		if err := c.saveLocked(cred); err != nil {
			return nil, err
		}
	}
	return &principal, nil
}

// Signout ends the session on the server and forgets it locally.
// The local credential is removed even if the server call fails.
func (c *Client) Signout(ctx context.Context) error {
	var serverErr error
	if c.IsLoggedIn() {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signout", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			serverErr = fmt.Errorf("failed to connect to server: %w", err)
		} else {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveCredential(c.baseURL); err != nil {
		return err
	}
	if err := c.store.Save(); err != nil {
		return err
	}
	return serverErr
}

// redirectTarget returns where the server redirected to, or a SigninFailure
// if that is the error page.
func (c *Client) redirectTarget(resp *http.Response) (string, error) {
	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusSeeOther {
		return "", fmt.Errorf("unexpected response from server: HTTP %d", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	target, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid redirect %q: %w", location, err)
	}
	if strings.HasSuffix(target.Path, "/error") && target.Query().Get("error") != "" {
		return "", &SigninFailure{
			Code:   authlink.ErrorCode(target.Query().Get("error")),
			Reason: target.Query().Get("reason"),
		}
	}
	return location, nil
}

func (c *Client) sessionCookie(resp *http.Response) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		for _, name := range c.cookieNames {
			if cookie.Name == name && cookie.Value != "" && cookie.MaxAge >= 0 {
				return cookie
			}
		}
	}
	return nil
}

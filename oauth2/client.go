package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/panyam/authlink"
	"golang.org/x/oauth2"
)

// Authorization parameters passed through from the sign-in request
var passThroughParams = []string{"login_hint", "prompt", "hd"}

// Client implements authlink.OAuthClient on golang.org/x/oauth2.
// It is stateless; one Client serves all configured providers.
type Client struct {
	// BaseURL is where the auth routes are mounted. The redirect URL of a
	// provider is {BaseURL}/callback/{provider id}.
	BaseURL string

	// HTTPClient is used for token exchange and userinfo calls.
	// Defaults to http.DefaultClient. Can be overridden for testing.
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(client *http.Client) {
	c.HTTPClient = client
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// exchangeContext makes x/oauth2 use our http client
func (c *Client) exchangeContext(ctx context.Context) context.Context {
	if c.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}
	return ctx
}

// Config builds the oauth2 config for a provider
func (c *Client) Config(p *authlink.Provider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  c.BaseURL + "/callback/" + url.PathEscape(p.ID),
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

func (c *Client) AuthorizationURL(ctx context.Context, p *authlink.Provider, query url.Values, checks authlink.OAuthChecks) (string, error) {
	if p.Type != authlink.ProviderTypeOAuth {
		return "", fmt.Errorf("provider %q is not an oauth provider", p.ID)
	}
	if p.AuthURL == "" {
		return "", fmt.Errorf("%w: provider %q has no auth url", authlink.ErrConfiguration, p.ID)
	}
	var opts []oauth2.AuthCodeOption
	for _, key := range passThroughParams {
		if v := query.Get(key); v != "" {
			opts = append(opts, oauth2.SetAuthURLParam(key, v))
		}
	}
	if p.Capabilities.Has(authlink.CapabilityPKCE) {
		if checks.CodeVerifier == "" {
			return "", fmt.Errorf("%w: provider %q uses pkce but no code verifier was given", authlink.ErrConfiguration, p.ID)
		}
		opts = append(opts, oauth2.S256ChallengeOption(checks.CodeVerifier))
	}
	return c.Config(p).AuthCodeURL(checks.State, opts...), nil
}

func (c *Client) Exchange(ctx context.Context, p *authlink.Provider, query url.Values, checks authlink.OAuthChecks) (*authlink.OAuthProfile, error) {
	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("callback for %q has no code", p.ID)
	}
	var opts []oauth2.AuthCodeOption
	if p.Capabilities.Has(authlink.CapabilityPKCE) {
		if checks.CodeVerifier == "" {
			return nil, fmt.Errorf("callback for %q has no code verifier", p.ID)
		}
		opts = append(opts, oauth2.VerifierOption(checks.CodeVerifier))
	}
	token, err := c.Config(p).Exchange(c.exchangeContext(ctx), code, opts...)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	raw, err := c.getUserData(ctx, p, token)
	if err != nil {
		return nil, err
	}

	mapper := p.ProfileMapper
	if mapper == nil {
		mapper = DefaultProfile
	}
	profile, err := mapper(raw)
	if err != nil {
		return nil, err
	}
	profile.Raw = raw
	profile.Token = token
	return profile, nil
}

func (c *Client) getUserData(ctx context.Context, p *authlink.Provider, token *oauth2.Token) (map[string]any, error) {
	if p.UserInfoURL == "" {
		return nil, fmt.Errorf("%w: provider %q has no userinfo url", authlink.ErrConfiguration, p.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info from %s: %w", p.ID, err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode >= 400 {
		slog.Debug("userinfo request failed", "provider", p.ID, "status", response.StatusCode)
		return nil, fmt.Errorf("user info from %s returned %d", p.ID, response.StatusCode)
	}

	var userInfo map[string]any
	if err := json.Unmarshal(contents, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return userInfo, nil
}

// DefaultProfile reads the common OpenID style fields of a userinfo document
func DefaultProfile(raw map[string]any) (*authlink.OAuthProfile, error) {
	id := stringField(raw, "sub")
	if id == "" {
		id = stringField(raw, "id")
	}
	if id == "" {
		return nil, fmt.Errorf("user info has no id")
	}
	return &authlink.OAuthProfile{
		ID:    id,
		Email: stringField(raw, "email"),
		Name:  stringField(raw, "name"),
		Image: stringField(raw, "picture"),
	}, nil
}

// stringField reads a string or numeric field. JSON numbers decode as float64,
// so ids like GitHub's are formatted without an exponent.
func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

package authlink_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"

	al "github.com/panyam/authlink"
	"github.com/panyam/authlink/stores/fs"
	"golang.org/x/oauth2"
)

const (
	testSecret  = "test-secret"
	testBaseURL = "http://localhost:8080/auth"
)

// recordingSender captures verification requests instead of sending them
type recordingSender struct {
	mu       sync.Mutex
	requests []al.VerificationRequest
	err      error
}

func (s *recordingSender) SendVerificationRequest(ctx context.Context, req al.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *recordingSender) last(t *testing.T) al.VerificationRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("no verification request was sent")
	}
	return s.requests[len(s.requests)-1]
}

// fakeOAuth stands in for the provider round trip. Like a real token
// endpoint it only accepts the verifier it saw the challenge for.
type fakeOAuth struct {
	profile      *al.OAuthProfile
	err          error
	authErr      error
	lastState    string
	lastVerifier string
	exchanged    al.OAuthChecks
}

func (f *fakeOAuth) AuthorizationURL(ctx context.Context, p *al.Provider, query url.Values, checks al.OAuthChecks) (string, error) {
	if f.authErr != nil {
		return "", f.authErr
	}
	f.lastState, f.lastVerifier = checks.State, checks.CodeVerifier
	params := url.Values{"client_id": {p.ClientID}, "state": {checks.State}}
	if checks.CodeVerifier != "" {
		params.Set("code_challenge", oauth2.S256ChallengeFromVerifier(checks.CodeVerifier))
	}
	return p.AuthURL + "?" + params.Encode(), nil
}

func (f *fakeOAuth) Exchange(ctx context.Context, p *al.Provider, query url.Values, checks al.OAuthChecks) (*al.OAuthProfile, error) {
	f.exchanged = checks
	if f.err != nil {
		return nil, f.err
	}
	if query.Get("code") == "" {
		return nil, errors.New("missing code")
	}
	if checks.CodeVerifier != f.lastVerifier {
		return nil, errors.New("code verifier does not match the challenge")
	}
	return f.profile, nil
}

type testEnv struct {
	auth   *al.AuthLink
	store  *fs.FSStore
	sender *recordingSender
	oauth  *fakeOAuth
	dir    string
}

func githubProvider() *al.Provider {
	return &al.Provider{
		ID:           "github",
		Name:         "GitHub",
		Type:         al.ProviderTypeOAuth,
		Capabilities: al.NewCapabilitySet(al.CapabilityState),
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      "https://github.example/login/oauth/authorize",
		TokenURL:     "https://github.example/login/oauth/access_token",
	}
}

// pkceProvider is an oauth provider that also requires PKCE
func pkceProvider() *al.Provider {
	p := githubProvider()
	p.ID = "pkce-idp"
	p.Capabilities = al.NewCapabilitySet(al.CapabilityState, al.CapabilityPKCE)
	return p
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestEnv builds an initialized AuthLink over a temporary file store
func setupTestEnv(t *testing.T, strategy string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		store:  fs.NewFSStore(dir),
		sender: &recordingSender{},
		oauth:  &fakeOAuth{},
		dir:    dir,
	}
	env.auth = al.New(al.Config{
		Secret:          testSecret,
		BaseURL:         testBaseURL,
		SessionStrategy: strategy,
	}, env.store)
	env.auth.OAuth = env.oauth
	env.auth.Logger = quietLogger()
	env.auth.AddProvider(al.NewEmailProvider("email", env.sender))
	env.auth.AddProvider(githubProvider())
	env.auth.AddProvider(pkceProvider())
	if err := env.auth.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return env
}

// createUser stores a user with a fixed id (or a generated one when id is "")
func (e *testEnv) createUser(t *testing.T, id, email string) *al.User {
	t.Helper()
	user, err := e.store.CreateUser(context.Background(), &al.User{ID: id, Email: email})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return user
}

// signIn issues a session for user and returns its handle
func (e *testEnv) signIn(t *testing.T, user *al.User) string {
	t.Helper()
	handle, _, err := e.auth.Sessions.Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return handle
}

func (e *testEnv) linkEmail(t *testing.T, userID, email string) {
	t.Helper()
	err := e.store.LinkAccount(context.Background(), &al.Account{
		UserID:            userID,
		Type:              al.ProviderTypeEmail,
		Provider:          "email",
		ProviderAccountID: email,
	})
	if err != nil {
		t.Fatalf("LinkAccount() error = %v", err)
	}
}

func findCookie(d al.ResponseDirective, name string) *al.Cookie {
	for _, c := range d.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func errorURL(code al.ErrorCode, reason string) string {
	params := url.Values{"error": {string(code)}}
	if reason != "" {
		params.Set("reason", reason)
	}
	return testBaseURL + "/error?" + params.Encode()
}

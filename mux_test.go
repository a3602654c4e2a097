package authlink_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	al "github.com/panyam/authlink"
	"github.com/panyam/authlink/stores/fs"
)

func serve(t *testing.T, env *testEnv, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	handler, err := env.auth.Handler()
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, r)
	return rr
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func responseCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRoutes_Providers(t *testing.T) {
	env := setupTestEnv(t, al.SessionStrategyJWT)
	rr := serve(t, env, httptest.NewRequest("GET", "/signin", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var providers map[string]map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&providers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if providers["email"]["type"] != "email" || providers["github"]["type"] != "oauth" {
		t.Errorf("providers = %v", providers)
	}
	if providers["github"]["callbackUrl"] != testBaseURL+"/callback/github" {
		t.Errorf("callbackUrl = %s", providers["github"]["callbackUrl"])
	}
}

func TestRoutes_UnknownProvider(t *testing.T) {
	env := setupTestEnv(t, al.SessionStrategyJWT)
	for _, target := range []string{"/signin/nope", "/callback/nope"} {
		rr := serve(t, env, httptest.NewRequest("GET", target, nil))
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, rr.Code)
		}
	}
}

func TestRoutes_EmailSignin(t *testing.T) {
	env := setupTestEnv(t, al.SessionStrategyJWT)
	user := env.createUser(t, "7", "")
	handle := env.signIn(t, user)

	// without a session
	rr := serve(t, env, formRequest("POST", "/signin/email", url.Values{"email": {"a@example.com"}}))
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != errorURL(al.ErrorAccessDenied, "") {
		t.Errorf("anonymous: %d %s", rr.Code, rr.Header().Get("Location"))
	}

	// bearer session
	req := formRequest("POST", "/signin/email", url.Values{"email": {"a@example.com"}})
	req.Header.Set("Authorization", "Bearer "+handle)
	rr = serve(t, env, req)
	if loc := rr.Header().Get("Location"); loc != testBaseURL+"/verify-request?provider=email&type=email" {
		t.Errorf("bearer: Location = %s", loc)
	}

	// cookie session
	req = formRequest("POST", "/signin/email", url.Values{"email": {"b@example.com"}})
	req.AddCookie(&http.Cookie{Name: env.auth.Cookies.Session, Value: handle})
	rr = serve(t, env, req)
	if loc := rr.Header().Get("Location"); loc != testBaseURL+"/verify-request?provider=email&type=email" {
		t.Errorf("cookie: Location = %s", loc)
	}
	if env.sender.count() != 2 {
		t.Errorf("expected 2 deliveries, got %d", env.sender.count())
	}
}

func TestRoutes_OAuthRoundTrip(t *testing.T) {
	env := setupTestEnv(t, al.SessionStrategyJWT)
	env.oauth.profile = &al.OAuthProfile{ID: "gh-1", Email: "alice@example.com"}

	rr := serve(t, env, httptest.NewRequest("GET", "/signin/github", nil))
	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d", rr.Code)
	}
	state := responseCookie(rr, env.auth.Cookies.State)
	if state == nil || !state.HttpOnly {
		t.Fatalf("expected an http-only state cookie, got %+v", state)
	}

	req := httptest.NewRequest("GET", "/callback/github?code=abc&state="+url.QueryEscape(env.oauth.lastState), nil)
	req.AddCookie(&http.Cookie{Name: state.Name, Value: state.Value})
	rr = serve(t, env, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/" {
		t.Fatalf("callback: %d %s", rr.Code, rr.Header().Get("Location"))
	}
	session := responseCookie(rr, env.auth.Cookies.Session)
	if session == nil || session.Value == "" {
		t.Fatal("expected a session cookie")
	}

	req = httptest.NewRequest("GET", "/session", nil)
	req.AddCookie(&http.Cookie{Name: session.Name, Value: session.Value})
	rr = serve(t, env, req)
	var principal al.Principal
	if err := json.NewDecoder(rr.Body).Decode(&principal); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if principal.Email != "alice@example.com" || len(principal.Accounts) != 1 {
		t.Errorf("session = %+v", principal)
	}
}

func TestRoutes_SessionAnonymous(t *testing.T) {
	env := setupTestEnv(t, al.SessionStrategyJWT)
	rr := serve(t, env, httptest.NewRequest("GET", "/session", nil))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "{}" {
		t.Errorf("anonymous session: %d %q", rr.Code, rr.Body.String())
	}
}

func TestRoutes_ErrorPage(t *testing.T) {
	env := setupTestEnv(t, al.SessionStrategyJWT)
	tests := []struct {
		query  string
		status int
		code   string
	}{
		{"error=Configuration", http.StatusInternalServerError, "Configuration"},
		{"error=AccessDenied", http.StatusForbidden, "AccessDenied"},
		{"error=Verification", http.StatusForbidden, "Verification"},
		{"error=EmailSignin&reason=link_taken", http.StatusOK, "EmailSignin"},
		{"", http.StatusOK, "Default"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rr := serve(t, env, httptest.NewRequest("GET", "/error?"+tt.query, nil))
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			var body map[string]string
			json.NewDecoder(rr.Body).Decode(&body)
			if body["error"] != tt.code {
				t.Errorf("error = %q, want %q", body["error"], tt.code)
			}
		})
	}
}

func TestRoutes_Signout(t *testing.T) {
	env := setupTestEnv(t, al.SessionStrategyDatabase)
	user := env.createUser(t, "7", "")
	handle := env.signIn(t, user)

	req := formRequest("POST", "/signout", url.Values{"callbackUrl": {"/bye"}})
	req.AddCookie(&http.Cookie{Name: env.auth.Cookies.Session, Value: handle})
	rr := serve(t, env, req)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/bye" {
		t.Errorf("signout: %d %s", rr.Code, rr.Header().Get("Location"))
	}
	if c := responseCookie(rr, env.auth.Cookies.Session); c == nil || c.MaxAge >= 0 {
		t.Errorf("expected the session cookie to be cleared, got %+v", c)
	}
	if p := env.auth.Resolver.Resolve(req.Context(), handle); p != nil {
		t.Error("expected the session to be revoked")
	}
}

func TestInit_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(a *al.AuthLink)
	}{
		{"missing secret", func(a *al.AuthLink) { a.Config.Secret = "" }},
		{"bad base url", func(a *al.AuthLink) { a.Config.BaseURL = "not a url" }},
		{"unknown session strategy", func(a *al.AuthLink) { a.Config.SessionStrategy = "cookie-jar" }},
		{"provider without type", func(a *al.AuthLink) { a.AddProvider(&al.Provider{ID: "broken"}) }},
		{"email provider without sender", func(a *al.AuthLink) { a.AddProvider(al.NewEmailProvider("email", nil)) }},
		{"oauth provider without client", func(a *al.AuthLink) { a.OAuth = nil; a.AddProvider(githubProvider()) }},
		{"no store", func(a *al.AuthLink) { a.Store = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := al.New(al.Config{Secret: testSecret, BaseURL: testBaseURL}, fs.NewFSStore(t.TempDir()))
			a.OAuth = &fakeOAuth{}
			a.Logger = quietLogger()
			tt.setup(a)
			if err := a.Init(); !errors.Is(err, al.ErrConfiguration) {
				t.Errorf("Init() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

package authlink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// AuthLink wires the sign-in components together and serves them over HTTP.
//
// Routes are relative to wherever the handler is mounted, which must match
// the path of Config.BaseURL:
//
//	GET  /signin                 configured providers
//	GET  /signin/{provider}      start an oauth sign-in
//	POST /signin/{provider}      start an oauth or email sign-in
//	GET  /callback/{provider}    complete a sign-in
//	GET  /error                  error landing
//	GET  /verify-request         "check your email" landing
//	GET  /session                current principal
//	POST /signout                end the session
type AuthLink struct {
	Config Config
	Store  Store
	OAuth  OAuthClient
	Logger *slog.Logger

	// SessionManager backs the scs session strategy. One is created if needed.
	SessionManager *scs.SessionManager
	Middleware     Middleware

	Codec      TokenCodec
	Cookies    CookieSet
	Sessions   SessionBackend
	State      *StateProtector
	PKCE       *PKCEProtector
	Resolver   *SessionResolver
	Linker     *AccountLinker
	Issuer     *VerificationTokenIssuer
	Dispatcher *SigninDispatcher
	Callbacks  *CallbackHandler

	providers   map[string]*Provider
	order       []string
	initialized bool
}

func New(cfg Config, store Store) *AuthLink {
	cfg.EnsureDefaults()
	return &AuthLink{
		Config:    cfg,
		Store:     store,
		providers: map[string]*Provider{},
	}
}

func (a *AuthLink) AddProvider(p *Provider) *AuthLink {
	if a.providers == nil {
		a.providers = map[string]*Provider{}
	}
	if _, ok := a.providers[p.ID]; !ok {
		a.order = append(a.order, p.ID)
	}
	a.providers[p.ID] = p
	return a
}

func (a *AuthLink) Provider(id string) *Provider {
	return a.providers[id]
}

// Providers returns the providers in the order they were added
func (a *AuthLink) Providers() (out []*Provider) {
	for _, id := range a.order {
		out = append(out, a.providers[id])
	}
	return
}

// Init validates the configuration and providers and builds the components.
// Every error wraps ErrConfiguration.
func (a *AuthLink) Init() error {
	if a.initialized {
		return nil
	}
	a.Config.EnsureDefaults()
	if err := a.Config.Validate(); err != nil {
		return err
	}
	if a.Store == nil {
		return fmt.Errorf("%w: no store", ErrConfiguration)
	}
	for _, p := range a.Providers() {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.Type == ProviderTypeOAuth && a.OAuth == nil {
			return fmt.Errorf("%w: oauth provider %q needs an oauth client", ErrConfiguration, p.ID)
		}
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}

	cfg := a.Config
	if a.Codec == nil {
		a.Codec = NewJWTCodec(cfg.Secret, cfg.Issuer())
	}
	a.Cookies = NewCookieSet(cfg.CookieOptions())

	if a.Sessions == nil {
		switch cfg.SessionStrategy {
		case SessionStrategyJWT:
			a.Sessions = &JWTSessionStrategy{Codec: a.Codec, Store: a.Store, MaxAge: cfg.SessionMaxAge}
		case SessionStrategyDatabase:
			a.Sessions = &StoreSessionStrategy{Store: a.Store, MaxAge: cfg.SessionMaxAge}
		case SessionStrategySCS:
			if a.SessionManager == nil {
				a.SessionManager = scs.New()
				a.SessionManager.Lifetime = cfg.SessionMaxAge
			}
			a.Sessions = &SCSSessionStrategy{Manager: a.SessionManager, Store: a.Store}
		}
	}

	a.State = NewStateProtector(a.Codec, a.Cookies, cfg.StateMaxAge)
	a.State.Logger = a.Logger
	a.PKCE = NewPKCEProtector(a.Codec, a.Cookies, cfg.StateMaxAge)
	a.PKCE.Logger = a.Logger
	a.Resolver = &SessionResolver{Strategy: a.Sessions, Logger: a.Logger}
	a.Linker = NewAccountLinker(a.Store)
	a.Issuer = NewVerificationTokenIssuer(a.Store, cfg.Secret, cfg.BaseURL)
	a.Issuer.Logger = a.Logger

	a.Dispatcher = (&SigninDispatcher{
		BaseURL:         cfg.BaseURL,
		DefaultRedirect: cfg.DefaultRedirect,
		Cookies:         a.Cookies,
		OAuth:           a.OAuth,
		State:           a.State,
		PKCE:            a.PKCE,
		Sessions:        a.Resolver,
		Linker:          a.Linker,
		Issuer:          a.Issuer,
		Logger:          a.Logger,
	}).EnsureDefaults()
	for _, t := range KnownProviderTypes {
		if a.Dispatcher.handlerFor(t) == nil {
			return fmt.Errorf("%w: no sign-in handler for provider type %q", ErrConfiguration, t)
		}
	}

	a.Callbacks = (&CallbackHandler{
		BaseURL:         cfg.BaseURL,
		DefaultRedirect: cfg.DefaultRedirect,
		Cookies:         a.Cookies,
		OAuth:           a.OAuth,
		State:           a.State,
		PKCE:            a.PKCE,
		Resolver:        a.Resolver,
		Sessions:        a.Sessions,
		Verifier:        a.Issuer,
		Store:           a.Store,
		Logger:          a.Logger,
	}).EnsureDefaults()

	a.Middleware.Resolver = a.Resolver
	if a.Middleware.SessionCookieName == "" {
		a.Middleware.SessionCookieName = a.Cookies.Session
	}
	if a.Middleware.Logger == nil {
		a.Middleware.Logger = a.Logger
	}
	a.Middleware.EnsureReasonableDefaults()

	a.initialized = true
	return nil
}

// Handler returns a router serving the auth routes at its root
func (a *AuthLink) Handler() (http.Handler, error) {
	r := mux.NewRouter()
	if err := a.RegisterRoutes(r); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterRoutes adds the auth routes to r, typically a PathPrefix subrouter
func (a *AuthLink) RegisterRoutes(r *mux.Router) error {
	if err := a.Init(); err != nil {
		return err
	}
	r.HandleFunc("/signin", a.onProviders).Methods(http.MethodGet)
	r.HandleFunc("/signin/{provider}", a.onSignin).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/callback/{provider}", a.onCallback).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/error", a.onError).Methods(http.MethodGet)
	r.HandleFunc("/verify-request", a.onVerifyRequest).Methods(http.MethodGet)
	r.HandleFunc("/session", a.onSession).Methods(http.MethodGet)
	r.HandleFunc("/signout", a.onSignout).Methods(http.MethodPost)
	return nil
}

func (a *AuthLink) providerFor(w http.ResponseWriter, r *http.Request) *Provider {
	id := mux.Vars(r)["provider"]
	p := a.Provider(id)
	if p == nil {
		a.Logger.WarnContext(r.Context(), "UNKNOWN_PROVIDER", "provider", id)
		http.NotFound(w, r)
	}
	return p
}

func (a *AuthLink) onSignin(w http.ResponseWriter, r *http.Request) {
	p := a.providerFor(w, r)
	if p == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	directive := a.Dispatcher.Dispatch(r.Context(), SigninRequest{
		Provider:      p,
		Query:         r.URL.Query(),
		Body:          r.PostForm,
		SessionHandle: a.Middleware.SessionHandle(r),
	})
	directive.Write(w, r)
}

func (a *AuthLink) onCallback(w http.ResponseWriter, r *http.Request) {
	p := a.providerFor(w, r)
	if p == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	cookies := map[string]string{}
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}
	directive := a.Callbacks.Complete(r.Context(), CallbackRequest{
		Provider:      p,
		Query:         r.Form,
		Cookies:       cookies,
		SessionHandle: a.Middleware.SessionHandle(r),
	})
	directive.Write(w, r)
}

func (a *AuthLink) onError(w http.ResponseWriter, r *http.Request) {
	code := ErrorCode(r.URL.Query().Get("error"))
	if code == "" {
		code = ErrorDefault
	}
	status := http.StatusOK
	switch code {
	case ErrorConfiguration:
		status = http.StatusInternalServerError
	case ErrorAccessDenied, ErrorVerification:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{
		"error":  string(code),
		"reason": r.URL.Query().Get("reason"),
	})
}

func (a *AuthLink) onVerifyRequest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"provider": r.URL.Query().Get("provider"),
		"type":     r.URL.Query().Get("type"),
		"message":  "A sign in link has been sent to your email address.",
	})
}

func (a *AuthLink) onSession(w http.ResponseWriter, r *http.Request) {
	p := a.Middleware.Principal(r)
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *AuthLink) onProviders(w http.ResponseWriter, r *http.Request) {
	type providerInfo struct {
		ID          string       `json:"id"`
		Name        string       `json:"name"`
		Type        ProviderType `json:"type"`
		SigninURL   string       `json:"signinUrl"`
		CallbackURL string       `json:"callbackUrl"`
	}
	out := map[string]providerInfo{}
	for _, p := range a.Providers() {
		out[p.ID] = providerInfo{
			ID:          p.ID,
			Name:        p.Name,
			Type:        p.Type,
			SigninURL:   joinURL(a.Config.BaseURL, "signin/"+p.ID),
			CallbackURL: joinURL(a.Config.BaseURL, "callback/"+p.ID),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *AuthLink) onSignout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if handle := a.Middleware.SessionHandle(r); handle != "" {
		if err := a.Sessions.Revoke(r.Context(), handle); err != nil {
			a.Logger.WarnContext(r.Context(), "SIGNOUT_ERROR", "error", err)
		}
	}
	target := safeRedirect(a.Config.BaseURL, r.Form.Get("callbackUrl"), a.Config.DefaultRedirect)
	redirectTo(target, a.Cookies.clear(a.Cookies.Session)).Write(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("error writing response", "err", err)
	}
}

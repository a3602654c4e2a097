package authlink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type principalKey struct{}

// ContextWithPrincipal returns a context carrying the principal
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal set by the middleware, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

type Middleware struct {
	Resolver            *SessionResolver
	SessionCookieName   string
	AuthTokenHeaderName string
	CallbackURLParam    string

	// GetRedirURL returns where unauthenticated users are sent by EnsurePrincipal.
	// When nil (or it returns "") a 401 is sent instead.
	GetRedirURL func(r *http.Request) string
	Logger      *slog.Logger
}

/**
 * Ensures that config values have reasonable defaults.
 */
func (a *Middleware) EnsureReasonableDefaults() {
	if a.CallbackURLParam == "" {
		a.CallbackURLParam = "callbackUrl"
	}
	if a.AuthTokenHeaderName == "" {
		a.AuthTokenHeaderName = "Authorization"
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
}

// SessionHandle returns the session handle carried by the request.
// A bearer token in the auth header wins over the session cookie.
func (a *Middleware) SessionHandle(r *http.Request) string {
	header := a.AuthTokenHeaderName
	if header == "" {
		header = "Authorization"
	}
	if v := r.Header.Get(header); v != "" {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if a.SessionCookieName != "" {
		if c, err := r.Cookie(a.SessionCookieName); err == nil {
			return c.Value
		}
	}
	return ""
}

// Principal resolves the principal for the request, preferring one already on the context
func (a *Middleware) Principal(r *http.Request) *Principal {
	if p := PrincipalFromContext(r.Context()); p != nil {
		return p
	}
	return a.Resolver.Resolve(r.Context(), a.SessionHandle(r))
}

/**
 * Resolves the principal from the request and makes it available to
 * downstream handlers via PrincipalFromContext.
 *
 * Note this does not perform any redirects if there is no principal.
 * Use EnsurePrincipal to also require a signed in user.
 */
func (a *Middleware) ExtractPrincipal(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := a.Principal(r); p != nil {
			r = r.WithContext(ContextWithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Middleware) EnsurePrincipal(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := a.Principal(r)
		if p != nil {
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
			return
		}

		redirUrl := ""
		if a.GetRedirURL != nil {
			redirUrl = a.GetRedirURL(r)
		}
		if redirUrl == "" {
			http.Error(w, "Login Required", http.StatusUnauthorized)
			return
		}
		a.Logger.DebugContext(r.Context(), "PRINCIPAL_REQUIRED", "path", r.URL.Path)
		encodedUrl := strings.ReplaceAll(url.QueryEscape(r.URL.Path), "+", "%20")
		http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirUrl, a.CallbackURLParam, encodedUrl), http.StatusFound)
	})
}

package authlink

import (
	"net/http"
	"time"
)

// CookieOptions are the transport flags shared by every cookie we set
type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// normalize applies safe defaults
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	// cookies set by this package are never read by scripts
	o.HttpOnly = true
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// Cookie describes a cookie to set (or clear) on the response.
// MaxAge follows net/http: > 0 is a lifetime in seconds, < 0 clears the cookie.
type Cookie struct {
	Name    string
	Value   string
	Expires time.Time
	MaxAge  int
	Options CookieOptions
}

// IsClear reports whether the descriptor removes the cookie
func (c *Cookie) IsClear() bool {
	return c.MaxAge < 0
}

func (c *Cookie) HTTPCookie() *http.Cookie {
	opts := c.Options.normalize()
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Expires:  c.Expires,
		MaxAge:   c.MaxAge,
		Secure:   opts.Secure,
		HttpOnly: opts.HttpOnly,
		SameSite: opts.SameSite,
	}
}

// CookieSet names the cookies used by the sign-in flow
type CookieSet struct {
	State       string
	PKCE        string
	Session     string
	CallbackURL string
	Options     CookieOptions
}

// NewCookieSet returns the default cookie names. Secure cookies get the
// __Secure- prefix so browsers refuse them over plain http.
func NewCookieSet(opts CookieOptions) CookieSet {
	prefix := ""
	if opts.Secure {
		prefix = "__Secure-"
	}
	return CookieSet{
		State:       prefix + "authlink.state",
		PKCE:        prefix + "authlink.pkce.code_verifier",
		Session:     prefix + "authlink.session-token",
		CallbackURL: prefix + "authlink.callback-url",
		Options:     opts.normalize(),
	}
}

func (s CookieSet) cookie(name, value string, maxAge time.Duration, now time.Time) *Cookie {
	return &Cookie{
		Name:    name,
		Value:   value,
		Expires: now.Add(maxAge),
		MaxAge:  int(maxAge.Seconds()),
		Options: s.Options,
	}
}

func (s CookieSet) clear(name string) *Cookie {
	return &Cookie{
		Name:    name,
		MaxAge:  -1,
		Expires: time.Unix(0, 0),
		Options: s.Options,
	}
}

// CallbackURLCookie remembers where to go after an oauth round trip.
// It is kept short lived.
func (s CookieSet) CallbackURLCookie(value string, now time.Time) *Cookie {
	return s.cookie(s.CallbackURL, value, 15*time.Minute, now)
}

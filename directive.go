package authlink

import (
	"net/http"
	"net/url"
	"strings"
)

// ResponseDirective is the single outcome of a sign-in step:
// either a redirect target or a terminal status with a body.
type ResponseDirective struct {
	Redirect string
	Status   int
	Body     string
	Cookies  []*Cookie
}

func (d ResponseDirective) IsRedirect() bool {
	return d.Redirect != ""
}

// Write renders the directive onto an http response
func (d ResponseDirective) Write(w http.ResponseWriter, r *http.Request) {
	for _, c := range d.Cookies {
		http.SetCookie(w, c.HTTPCookie())
	}
	if d.Redirect != "" {
		http.Redirect(w, r, d.Redirect, http.StatusFound)
		return
	}
	status := d.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(d.Body))
}

func redirectTo(target string, cookies ...*Cookie) ResponseDirective {
	return ResponseDirective{Redirect: target, Cookies: cookies}
}

// errorRedirect builds {base}/error?error=<code>[&reason=<reason>].
// The underlying cause is never part of the target.
func errorRedirect(baseURL string, code ErrorCode, reason string, cookies ...*Cookie) ResponseDirective {
	params := url.Values{"error": {string(code)}}
	if reason != "" {
		params.Set("reason", reason)
	}
	return redirectTo(joinURL(baseURL, "error")+"?"+params.Encode(), cookies...)
}

func configurationDirective(providerName string) ResponseDirective {
	return ResponseDirective{
		Status: http.StatusInternalServerError,
		Body:   "Error: " + string(ErrorConfiguration) + ": type not specified for " + providerName,
	}
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

// safeRedirect only allows relative targets or targets on the same origin as baseURL
func safeRedirect(baseURL, target, fallback string) string {
	if target == "" || strings.Contains(target, `\`) {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil {
		return fallback
	}
	if u.Scheme == "" && u.Host == "" {
		if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
			return target
		}
		return fallback
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme != u.Scheme || base.Host != u.Host {
		return fallback
	}
	return target
}

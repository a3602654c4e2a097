package client

import (
	"net/http"
)

// BearerTransport sends the current session handle as a bearer token.
// Requests are cloned before the header is added.
type BearerTransport struct {
	Base   http.RoundTripper
	Handle func() string
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Handle != nil {
		if handle := t.Handle(); handle != "" {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+handle)
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewBearerTransport returns a transport that always sends handle
func NewBearerTransport(base http.RoundTripper, handle string) *BearerTransport {
	return &BearerTransport{
		Base:   base,
		Handle: func() string { return handle },
	}
}

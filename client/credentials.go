// Package client is a headless client for an authlink server, for CLIs and
// scripts. It keeps one session handle per server and sends it as a bearer
// token, which the server accepts in place of the session cookie.
package client

import (
	"time"
)

// SessionCredential is a session handle obtained from one server
type SessionCredential struct {
	Handle    string    `json:"handle"`
	UserID    string    `json:"user_id,omitempty"`
	UserEmail string    `json:"user_email,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired reports whether the session has passed its expiry.
// A credential without an expiry is kept until the server rejects it.
func (c *SessionCredential) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// CredentialStore keeps session credentials keyed by server base url
type CredentialStore interface {
	// GetCredential returns nil, nil if no credential exists for the server
	GetCredential(baseURL string) (*SessionCredential, error)

	SetCredential(baseURL string, cred *SessionCredential) error

	RemoveCredential(baseURL string) error

	// ListServers returns the base urls with stored credentials
	ListServers() ([]string, error)

	// Save persists any pending changes
	Save() error
}

package authlink

import (
	"context"
	"time"
)

// User represents a unified user account
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email,omitempty"`
	Name          string     `json:"name,omitempty"`
	Image         string     `json:"image,omitempty"`
	EmailVerified *time.Time `json:"email_verified,omitempty"`
}

// AccountRef identifies a provider identity
type AccountRef struct {
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"provider_account_id"`
}

// Account links a provider identity to a user.
// The pair (Provider, ProviderAccountID) maps to at most one UserID.
type Account struct {
	UserID            string       `json:"user_id"`
	Type              ProviderType `json:"type"`
	Provider          string       `json:"provider"`
	ProviderAccountID string       `json:"provider_account_id"`

	// Only set for oauth accounts
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (a *Account) Ref() AccountRef {
	return AccountRef{Provider: a.Provider, ProviderAccountID: a.ProviderAccountID}
}

// Session is a store-backed session
type Session struct {
	Handle  string    `json:"handle"`
	UserID  string    `json:"user_id"`
	Expires time.Time `json:"expires"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !s.Expires.IsZero() && now.After(s.Expires)
}

// VerificationToken is the persisted half of a one-time email token.
// Only the digest of the token is kept; the raw value exists only in the delivered link.
type VerificationToken struct {
	Identifier  string    `json:"identifier"`
	TokenDigest string    `json:"token_digest"`
	UserID      string    `json:"user_id"`
	Expires     time.Time `json:"expires"`
}

func (t *VerificationToken) IsExpired(now time.Time) bool {
	return now.After(t.Expires)
}

// UserStore manages user accounts
type UserStore interface {
	// CreateUser creates a user. An empty ID is assigned by the store.
	CreateUser(ctx context.Context, user *User) (*User, error)

	// GetUser returns ErrNotFound when there is no such user
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByEmail looks a user up by (lower cased) contact email
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// AccountStore manages provider account links
type AccountStore interface {
	// GetUserByAccount returns the owner of a provider identity or ErrNotFound
	GetUserByAccount(ctx context.Context, ref AccountRef) (*User, error)

	// LinkAccount persists a link. Linking an identity that already belongs to
	// a different user must fail with ErrAccountLinked; relinking to the same
	// user is a no-op.
	LinkAccount(ctx context.Context, account *Account) error

	// GetAccountsForUser lists the links owned by a user
	GetAccountsForUser(ctx context.Context, userID string) ([]*Account, error)
}

// SessionStore manages store-backed sessions
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error

	// GetSessionAndUser returns ErrNotFound for missing or expired sessions
	GetSessionAndUser(ctx context.Context, handle string) (*Session, *User, error)

	DeleteSession(ctx context.Context, handle string) error
}

// VerificationTokenStore manages one-time email tokens
type VerificationTokenStore interface {
	CreateVerificationToken(ctx context.Context, token *VerificationToken) error

	// UseVerificationToken removes and returns the matching token so it can
	// only be used once. Returns ErrNotFound if there is no match.
	UseVerificationToken(ctx context.Context, identifier, tokenDigest string) (*VerificationToken, error)
}

// Store combines the store interfaces needed by the sign-in flow
type Store interface {
	UserStore
	AccountStore
	SessionStore
	VerificationTokenStore
}

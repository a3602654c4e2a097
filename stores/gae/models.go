//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	al "github.com/panyam/authlink"
)

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key           *datastore.Key `datastore:"__key__"`
	Email         string         `datastore:"email"`
	Name          string         `datastore:"name,noindex"`
	Image         string         `datastore:"image,noindex"`
	EmailVerified *time.Time     `datastore:"email_verified,noindex"`
	CreatedAt     time.Time      `datastore:"created_at"`
	UpdatedAt     time.Time      `datastore:"updated_at"`
}

func (e *UserEntity) ToUser() *al.User {
	return &al.User{
		ID:            e.Key.Name,
		Email:         e.Email,
		Name:          e.Name,
		Image:         e.Image,
		EmailVerified: e.EmailVerified,
	}
}

// AccountEntity is the Datastore entity for account links.
// Key: ProviderAccountID with a Provider parent key
type AccountEntity struct {
	Key               *datastore.Key `datastore:"__key__"`
	UserID            string         `datastore:"user_id"`
	Type              string         `datastore:"type"`
	Provider          string         `datastore:"provider"`
	ProviderAccountID string         `datastore:"provider_account_id"`
	AccessToken       string         `datastore:"access_token,noindex"`
	RefreshToken      string         `datastore:"refresh_token,noindex"`
	TokenType         string         `datastore:"token_type,noindex"`
	ExpiresAt         time.Time      `datastore:"expires_at,noindex"`
	CreatedAt         time.Time      `datastore:"created_at"`
}

func (e *AccountEntity) ToAccount() *al.Account {
	return &al.Account{
		UserID:            e.UserID,
		Type:              al.ProviderType(e.Type),
		Provider:          e.Provider,
		ProviderAccountID: e.ProviderAccountID,
		AccessToken:       e.AccessToken,
		RefreshToken:      e.RefreshToken,
		TokenType:         e.TokenType,
		ExpiresAt:         e.ExpiresAt,
		CreatedAt:         e.CreatedAt,
	}
}

func AccountToEntity(a *al.Account, key *datastore.Key) *AccountEntity {
	return &AccountEntity{
		Key:               key,
		UserID:            a.UserID,
		Type:              string(a.Type),
		Provider:          a.Provider,
		ProviderAccountID: a.ProviderAccountID,
		AccessToken:       a.AccessToken,
		RefreshToken:      a.RefreshToken,
		TokenType:         a.TokenType,
		ExpiresAt:         a.ExpiresAt,
		CreatedAt:         a.CreatedAt,
	}
}

// SessionEntity is the Datastore entity for store backed sessions.
// Key: the session handle
type SessionEntity struct {
	Key     *datastore.Key `datastore:"__key__"`
	UserID  string         `datastore:"user_id"`
	Expires time.Time      `datastore:"expires"`
}

// VerificationTokenEntity is the Datastore entity for verification tokens.
// Key format: Identifier + ":" + TokenDigest
type VerificationTokenEntity struct {
	Key         *datastore.Key `datastore:"__key__"`
	Identifier  string         `datastore:"identifier"`
	TokenDigest string         `datastore:"token_digest,noindex"`
	UserID      string         `datastore:"user_id"`
	Expires     time.Time      `datastore:"expires"`
}

func (e *VerificationTokenEntity) ToVerificationToken() *al.VerificationToken {
	return &al.VerificationToken{
		Identifier:  e.Identifier,
		TokenDigest: e.TokenDigest,
		UserID:      e.UserID,
		Expires:     e.Expires,
	}
}

//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	al "github.com/panyam/authlink"
)

// UserModel is the GORM model for users
type UserModel struct {
	ID            string `gorm:"primaryKey;size:64"`
	Email         string `gorm:"size:320;index"`
	Name          string `gorm:"size:255"`
	Image         string `gorm:"size:1024"`
	EmailVerified *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *al.User {
	return &al.User{
		ID:            m.ID,
		Email:         m.Email,
		Name:          m.Name,
		Image:         m.Image,
		EmailVerified: m.EmailVerified,
	}
}

func UserToModel(u *al.User) *UserModel {
	return &UserModel{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Image:         u.Image,
		EmailVerified: u.EmailVerified,
	}
}

// AccountModel is the GORM model for account links.
// The composite primary key enforces one owner per provider identity.
type AccountModel struct {
	Provider          string `gorm:"primaryKey;size:64"`
	ProviderAccountID string `gorm:"primaryKey;size:320"`
	UserID            string `gorm:"size:64;index;not null"`
	Type              string `gorm:"size:16"`
	AccessToken       string `gorm:"type:text"`
	RefreshToken      string `gorm:"type:text"`
	TokenType         string `gorm:"size:32"`
	ExpiresAt         time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *al.Account {
	return &al.Account{
		UserID:            m.UserID,
		Type:              al.ProviderType(m.Type),
		Provider:          m.Provider,
		ProviderAccountID: m.ProviderAccountID,
		AccessToken:       m.AccessToken,
		RefreshToken:      m.RefreshToken,
		TokenType:         m.TokenType,
		ExpiresAt:         m.ExpiresAt,
		CreatedAt:         m.CreatedAt,
	}
}

func AccountToModel(a *al.Account) *AccountModel {
	return &AccountModel{
		Provider:          a.Provider,
		ProviderAccountID: a.ProviderAccountID,
		UserID:            a.UserID,
		Type:              string(a.Type),
		AccessToken:       a.AccessToken,
		RefreshToken:      a.RefreshToken,
		TokenType:         a.TokenType,
		ExpiresAt:         a.ExpiresAt,
		CreatedAt:         a.CreatedAt,
	}
}

// SessionModel is the GORM model for store backed sessions
type SessionModel struct {
	Handle    string    `gorm:"primaryKey;size:128"`
	UserID    string    `gorm:"size:64;index"`
	Expires   time.Time `gorm:"index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

// VerificationTokenModel is the GORM model for verification tokens.
// Only the digest is stored.
type VerificationTokenModel struct {
	Identifier  string    `gorm:"primaryKey;size:320"`
	TokenDigest string    `gorm:"primaryKey;size:128"`
	UserID      string    `gorm:"size:64;index"`
	Expires     time.Time `gorm:"index"`
}

func (VerificationTokenModel) TableName() string {
	return "verification_tokens"
}

func (m *VerificationTokenModel) ToVerificationToken() *al.VerificationToken {
	return &al.VerificationToken{
		Identifier:  m.Identifier,
		TokenDigest: m.TokenDigest,
		UserID:      m.UserID,
		Expires:     m.Expires,
	}
}

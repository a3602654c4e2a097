//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	al "github.com/panyam/authlink"
)

// AutoMigrate runs database migrations for all authlink tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&AccountModel{},
		&SessionModel{},
		&VerificationTokenModel{},
	)
}

// Store implements al.Store using GORM
type Store struct {
	db *gorm.DB
}

var _ al.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, al.ErrNotFound)
	}
	return err
}

// =============================================================================
// UserStore
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, user *al.User) (*al.User, error) {
	model := UserToModel(user)
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	model.Email = strings.ToLower(model.Email)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*al.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user "+id)
	}
	return model.ToUser(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*al.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "email = ?", strings.ToLower(email)).Error; err != nil {
		return nil, notFound(err, "user with email "+email)
	}
	return model.ToUser(), nil
}

// =============================================================================
// AccountStore
// =============================================================================

func (s *Store) GetUserByAccount(ctx context.Context, ref al.AccountRef) (*al.User, error) {
	var account AccountModel
	err := s.db.WithContext(ctx).First(&account, "provider = ? AND provider_account_id = ?", ref.Provider, ref.ProviderAccountID).Error
	if err != nil {
		return nil, notFound(err, "account")
	}
	user, err := s.GetUser(ctx, account.UserID)
	if al.IsNotFound(err) {
		return nil, fmt.Errorf("account %s/%s of user %s: %w", ref.Provider, ref.ProviderAccountID, account.UserID, al.ErrOrphanedAccount)
	}
	return user, err
}

func (s *Store) LinkAccount(ctx context.Context, account *al.Account) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing AccountModel
		err := tx.First(&existing, "provider = ? AND provider_account_id = ?", account.Provider, account.ProviderAccountID).Error
		if err == nil {
			if existing.UserID != account.UserID {
				return al.ErrAccountLinked
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(AccountToModel(account)).Error; err != nil {
			// a concurrent link won the primary key
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return al.ErrAccountLinked
			}
			return err
		}
		return nil
	})
}

func (s *Store) GetAccountsForUser(ctx context.Context, userId string) ([]*al.Account, error) {
	var models []AccountModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userId).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	accounts := make([]*al.Account, len(models))
	for i := range models {
		accounts[i] = models[i].ToAccount()
	}
	return accounts, nil
}

// =============================================================================
// SessionStore
// =============================================================================

func (s *Store) CreateSession(ctx context.Context, session *al.Session) error {
	return s.db.WithContext(ctx).Create(&SessionModel{
		Handle:  session.Handle,
		UserID:  session.UserID,
		Expires: session.Expires,
	}).Error
}

func (s *Store) GetSessionAndUser(ctx context.Context, handle string) (*al.Session, *al.User, error) {
	var model SessionModel
	if err := s.db.WithContext(ctx).First(&model, "handle = ?", handle).Error; err != nil {
		return nil, nil, notFound(err, "session")
	}
	session := &al.Session{Handle: model.Handle, UserID: model.UserID, Expires: model.Expires}
	if session.IsExpired(time.Now()) {
		_ = s.DeleteSession(ctx, handle)
		return nil, nil, fmt.Errorf("session expired: %w", al.ErrNotFound)
	}
	user, err := s.GetUser(ctx, model.UserID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

func (s *Store) DeleteSession(ctx context.Context, handle string) error {
	return s.db.WithContext(ctx).Delete(&SessionModel{}, "handle = ?", handle).Error
}

// DeleteExpiredSessions removes all sessions past their expiry
func (s *Store) DeleteExpiredSessions(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&SessionModel{}, "expires < ?", time.Now()).Error
}

// =============================================================================
// VerificationTokenStore
// =============================================================================

func (s *Store) CreateVerificationToken(ctx context.Context, token *al.VerificationToken) error {
	return s.db.WithContext(ctx).Create(&VerificationTokenModel{
		Identifier:  token.Identifier,
		TokenDigest: token.TokenDigest,
		UserID:      token.UserID,
		Expires:     token.Expires,
	}).Error
}

func (s *Store) UseVerificationToken(ctx context.Context, identifier, digest string) (*al.VerificationToken, error) {
	var out *al.VerificationToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model VerificationTokenModel
		if err := tx.First(&model, "identifier = ? AND token_digest = ?", identifier, digest).Error; err != nil {
			return notFound(err, "verification token")
		}
		res := tx.Delete(&VerificationTokenModel{}, "identifier = ? AND token_digest = ?", identifier, digest)
		if res.Error != nil {
			return res.Error
		}
		// Another transaction consumed it first
		if res.RowsAffected == 0 {
			return fmt.Errorf("verification token: %w", al.ErrNotFound)
		}
		out = model.ToVerificationToken()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteExpiredVerificationTokens removes all expired verification tokens
func (s *Store) DeleteExpiredVerificationTokens(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&VerificationTokenModel{}, "expires < ?", time.Now()).Error
}

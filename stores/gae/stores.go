//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	al "github.com/panyam/authlink"
)

// Kind constants for Datastore entities
const (
	KindUser              = "User"
	KindAccount           = "Account"
	KindProvider          = "Provider"
	KindSession           = "Session"
	KindVerificationToken = "VerificationToken"
)

// Store implements al.Store using Google Cloud Datastore
type Store struct {
	client    *datastore.Client
	namespace string
}

var _ al.Store = (*Store)(nil)

// NewStore creates a new Datastore-backed Store
func NewStore(client *datastore.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

func (s *Store) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Store) query(kind string) *datastore.Query {
	return datastore.NewQuery(kind).Namespace(s.namespace)
}

func notFound(err error, what string) error {
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return fmt.Errorf("%s: %w", what, al.ErrNotFound)
	}
	return err
}

// ============================================================================
// UserStore
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, user *al.User) (*al.User, error) {
	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	entity := &UserEntity{
		Key:           s.namespacedKey(KindUser, id),
		Email:         strings.ToLower(user.Email),
		Name:          user.Name,
		Image:         user.Image,
		EmailVerified: user.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing UserEntity
		if err := tx.Get(entity.Key, &existing); err == nil {
			return fmt.Errorf("user already exists: %s", id)
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err := tx.Put(entity.Key, entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*al.User, error) {
	var entity UserEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUser, id), &entity); err != nil {
		return nil, notFound(err, "user "+id)
	}
	return entity.ToUser(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*al.User, error) {
	query := s.query(KindUser).
		FilterField("email", "=", strings.ToLower(email)).
		Limit(1)

	it := s.client.Run(ctx, query)
	var entity UserEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, fmt.Errorf("user with email %s: %w", email, al.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entity.ToUser(), nil
}

// ============================================================================
// AccountStore
// ============================================================================

// accountKey nests the provider account id under a Provider parent key, so
// no choice of ids can make two identities share a key
func (s *Store) accountKey(ref al.AccountRef) *datastore.Key {
	parent := s.namespacedKey(KindProvider, ref.Provider)
	key := datastore.NameKey(KindAccount, ref.ProviderAccountID, parent)
	key.Namespace = s.namespace
	return key
}

func (s *Store) GetUserByAccount(ctx context.Context, ref al.AccountRef) (*al.User, error) {
	var entity AccountEntity
	if err := s.client.Get(ctx, s.accountKey(ref), &entity); err != nil {
		return nil, notFound(err, "account")
	}
	user, err := s.GetUser(ctx, entity.UserID)
	if al.IsNotFound(err) {
		return nil, fmt.Errorf("account %s/%s of user %s: %w", ref.Provider, ref.ProviderAccountID, entity.UserID, al.ErrOrphanedAccount)
	}
	return user, err
}

// LinkAccount writes the link in a transaction on its deterministic key, so two
// concurrent links for the same provider identity cannot both succeed.
func (s *Store) LinkAccount(ctx context.Context, account *al.Account) error {
	key := s.accountKey(account.Ref())
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing AccountEntity
		err := tx.Get(key, &existing)
		if err == nil {
			if existing.UserID != account.UserID {
				return al.ErrAccountLinked
			}
			return nil
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		_, err = tx.Put(key, AccountToEntity(account, key))
		return err
	})
	return err
}

func (s *Store) GetAccountsForUser(ctx context.Context, userId string) ([]*al.Account, error) {
	query := s.query(KindAccount).
		FilterField("user_id", "=", userId)

	var accounts []*al.Account
	it := s.client.Run(ctx, query)
	for {
		var entity AccountEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, entity.ToAccount())
	}
	return accounts, nil
}

// ============================================================================
// SessionStore
// ============================================================================

func (s *Store) CreateSession(ctx context.Context, session *al.Session) error {
	key := s.namespacedKey(KindSession, session.Handle)
	_, err := s.client.Put(ctx, key, &SessionEntity{
		Key:     key,
		UserID:  session.UserID,
		Expires: session.Expires,
	})
	return err
}

func (s *Store) GetSessionAndUser(ctx context.Context, handle string) (*al.Session, *al.User, error) {
	var entity SessionEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindSession, handle), &entity); err != nil {
		return nil, nil, notFound(err, "session")
	}
	session := &al.Session{Handle: handle, UserID: entity.UserID, Expires: entity.Expires}
	if session.IsExpired(time.Now()) {
		_ = s.DeleteSession(ctx, handle)
		return nil, nil, fmt.Errorf("session expired: %w", al.ErrNotFound)
	}
	user, err := s.GetUser(ctx, entity.UserID)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

func (s *Store) DeleteSession(ctx context.Context, handle string) error {
	err := s.client.Delete(ctx, s.namespacedKey(KindSession, handle))
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil
	}
	return err
}

// ============================================================================
// VerificationTokenStore
// ============================================================================

func (s *Store) tokenKey(identifier, digest string) *datastore.Key {
	return s.namespacedKey(KindVerificationToken, identifier+":"+digest)
}

func (s *Store) CreateVerificationToken(ctx context.Context, token *al.VerificationToken) error {
	key := s.tokenKey(token.Identifier, token.TokenDigest)
	_, err := s.client.Put(ctx, key, &VerificationTokenEntity{
		Key:         key,
		Identifier:  token.Identifier,
		TokenDigest: token.TokenDigest,
		UserID:      token.UserID,
		Expires:     token.Expires,
	})
	return err
}

func (s *Store) UseVerificationToken(ctx context.Context, identifier, digest string) (*al.VerificationToken, error) {
	key := s.tokenKey(identifier, digest)
	var out *al.VerificationToken
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity VerificationTokenEntity
		if err := tx.Get(key, &entity); err != nil {
			return notFound(err, "verification token")
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		out = entity.ToVerificationToken()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteExpiredVerificationTokens removes all expired verification tokens
func (s *Store) DeleteExpiredVerificationTokens(ctx context.Context) error {
	query := s.query(KindVerificationToken).
		FilterField("expires", "<", time.Now()).
		KeysOnly()

	keys, err := s.client.GetAll(ctx, query, nil)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.DeleteMulti(ctx, keys)
}

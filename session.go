package authlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
)

// Principal is the authenticated user behind a request
type Principal struct {
	User
	Accounts []AccountRef `json:"accounts,omitempty"`
	Expires  time.Time    `json:"expires"`
}

// SessionStrategy looks up the principal for a session handle.
// Returning ErrNotFound (or any error) means "no principal".
type SessionStrategy interface {
	Lookup(ctx context.Context, handle string) (*Principal, error)
}

// SessionIssuer creates and revokes sessions after a completed sign-in
type SessionIssuer interface {
	Issue(ctx context.Context, user *User) (handle string, expires time.Time, err error)
	Revoke(ctx context.Context, handle string) error
}

// SessionBackend is a strategy that can also issue sessions
type SessionBackend interface {
	SessionStrategy
	SessionIssuer
}

// SessionResolver resolves the calling principal from a session handle.
//
// A missing, expired or undecodable session is a normal outcome: Resolve
// logs it and returns nil. Callers that need a principal must treat nil as
// a failure themselves.
type SessionResolver struct {
	Strategy SessionStrategy
	Logger   *slog.Logger
}

func NewSessionResolver(strategy SessionStrategy) *SessionResolver {
	return &SessionResolver{Strategy: strategy, Logger: slog.Default()}
}

func (r *SessionResolver) Resolve(ctx context.Context, handle string) *Principal {
	if r == nil || handle == "" || r.Strategy == nil {
		return nil
	}
	principal, err := r.Strategy.Lookup(ctx, handle)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger().DebugContext(ctx, "SESSION_RESOLVE_DEGRADED", "error", err)
		}
		return nil
	}
	if principal == nil || principal.ID == "" {
		return nil
	}
	return principal
}

func (r *SessionResolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func loadPrincipal(ctx context.Context, store AccountStore, user *User, expires time.Time) (*Principal, error) {
	accounts, err := store.GetAccountsForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("loading accounts for %s: %w", user.ID, err)
	}
	p := &Principal{User: *user, Expires: expires}
	for _, a := range accounts {
		p.Accounts = append(p.Accounts, a.Ref())
	}
	return p, nil
}

// JWTSessionStrategy keeps the session in a self-contained signed token
type JWTSessionStrategy struct {
	Codec  TokenCodec
	Store  Store
	MaxAge time.Duration
}

func (s *JWTSessionStrategy) Lookup(ctx context.Context, handle string) (*Principal, error) {
	claims, err := s.Codec.Decode(ctx, handle)
	if err != nil {
		return nil, err
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("subject not found")
	}
	user, err := s.Store.GetUser(ctx, sub)
	if err != nil {
		return nil, err
	}
	var expires time.Time
	if exp, ok := claims["exp"].(float64); ok {
		expires = time.Unix(int64(exp), 0)
	}
	return loadPrincipal(ctx, s.Store, user, expires)
}

func (s *JWTSessionStrategy) Issue(ctx context.Context, user *User) (string, time.Time, error) {
	maxAge := s.maxAge()
	token, err := s.Codec.Encode(ctx, map[string]any{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.Name,
	}, maxAge)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().Add(maxAge), nil
}

// Revoke is a no-op: a self-contained token lives until it expires
func (s *JWTSessionStrategy) Revoke(ctx context.Context, handle string) error {
	return nil
}

func (s *JWTSessionStrategy) maxAge() time.Duration {
	if s.MaxAge > 0 {
		return s.MaxAge
	}
	return DefaultSessionMaxAge
}

// StoreSessionStrategy keeps sessions in the persistent store
type StoreSessionStrategy struct {
	Store  Store
	MaxAge time.Duration
}

func (s *StoreSessionStrategy) Lookup(ctx context.Context, handle string) (*Principal, error) {
	session, user, err := s.Store.GetSessionAndUser(ctx, handle)
	if err != nil {
		return nil, err
	}
	return loadPrincipal(ctx, s.Store, user, session.Expires)
}

func (s *StoreSessionStrategy) Issue(ctx context.Context, user *User) (string, time.Time, error) {
	maxAge := s.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	session := &Session{
		Handle:  uuid.NewString(),
		UserID:  user.ID,
		Expires: time.Now().Add(maxAge),
	}
	if err := s.Store.CreateSession(ctx, session); err != nil {
		return "", time.Time{}, err
	}
	return session.Handle, session.Expires, nil
}

func (s *StoreSessionStrategy) Revoke(ctx context.Context, handle string) error {
	return s.Store.DeleteSession(ctx, handle)
}

// SCSSessionStrategy keeps the user id in an scs session.
// The handle is the scs session token.
type SCSSessionStrategy struct {
	Manager   *scs.SessionManager
	Store     Store
	UserIDKey string
}

func (s *SCSSessionStrategy) userIDKey() string {
	if s.UserIDKey != "" {
		return s.UserIDKey
	}
	return "loggedInUserId"
}

func (s *SCSSessionStrategy) Lookup(ctx context.Context, handle string) (*Principal, error) {
	sctx, err := s.Manager.Load(ctx, handle)
	if err != nil {
		return nil, err
	}
	userID := s.Manager.GetString(sctx, s.userIDKey())
	if userID == "" {
		return nil, ErrNotFound
	}
	user, err := s.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return loadPrincipal(ctx, s.Store, user, s.Manager.Deadline(sctx))
}

func (s *SCSSessionStrategy) Issue(ctx context.Context, user *User) (string, time.Time, error) {
	sctx, err := s.Manager.Load(ctx, "")
	if err != nil {
		return "", time.Time{}, err
	}
	s.Manager.Put(sctx, s.userIDKey(), user.ID)
	return s.Manager.Commit(sctx)
}

func (s *SCSSessionStrategy) Revoke(ctx context.Context, handle string) error {
	sctx, err := s.Manager.Load(ctx, handle)
	if err != nil {
		return err
	}
	return s.Manager.Destroy(sctx)
}

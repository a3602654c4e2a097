package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	al "github.com/panyam/authlink"
)

// FSSessionStore stores sessions as JSON files named by the hash of the handle
type FSSessionStore struct {
	StoragePath string
	Users       *FSUserStore
	now         func() time.Time
}

func NewFSSessionStore(storagePath string, users *FSUserStore) *FSSessionStore {
	return &FSSessionStore{StoragePath: storagePath, Users: users, now: time.Now}
}

func (s *FSSessionStore) getSessionPath(handle string) string {
	return filepath.Join(s.StoragePath, "sessions", safeName(handle)+".json")
}

func (s *FSSessionStore) CreateSession(ctx context.Context, session *al.Session) error {
	if session.Handle == "" {
		return fmt.Errorf("session handle is required")
	}
	return writeJSONFile(s.getSessionPath(session.Handle), session)
}

func (s *FSSessionStore) GetSessionAndUser(ctx context.Context, handle string) (*al.Session, *al.User, error) {
	if handle == "" {
		return nil, nil, al.ErrNotFound
	}
	var session al.Session
	if err := readJSONFile(s.getSessionPath(handle), &session); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("session: %w", al.ErrNotFound)
		}
		return nil, nil, err
	}

	if session.IsExpired(s.now()) {
		// Auto-delete expired session
		_ = s.DeleteSession(ctx, handle)
		return nil, nil, fmt.Errorf("session expired: %w", al.ErrNotFound)
	}

	user, err := s.Users.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}
	return &session, user, nil
}

func (s *FSSessionStore) DeleteSession(ctx context.Context, handle string) error {
	err := os.Remove(s.getSessionPath(handle))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

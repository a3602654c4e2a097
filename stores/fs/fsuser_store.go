package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	al "github.com/panyam/authlink"
)

// FSUserStore stores users as JSON files with an index by email
type FSUserStore struct {
	StoragePath string
	mu          sync.RWMutex
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) getUserPath(userId string) string {
	return filepath.Join(s.StoragePath, "users", userId+".json")
}

func (s *FSUserStore) getEmailIndexPath(email string) string {
	return filepath.Join(s.StoragePath, "users_by_email", safeName(strings.ToLower(email))+".json")
}

type emailIndex struct {
	UserID string `json:"user_id"`
}

func (s *FSUserStore) CreateUser(ctx context.Context, user *al.User) (*al.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := *user
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if !validID(out.ID) {
		return nil, fmt.Errorf("invalid user id: %q", out.ID)
	}
	if _, err := os.Stat(s.getUserPath(out.ID)); err == nil {
		return nil, fmt.Errorf("user already exists: %s", out.ID)
	}

	if out.Email != "" {
		var idx emailIndex
		err := readJSONFile(s.getEmailIndexPath(out.Email), &idx)
		if err == nil && idx.UserID != "" {
			return nil, fmt.Errorf("email already in use: %s", out.Email)
		} else if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := writeJSONFile(s.getUserPath(out.ID), &out); err != nil {
		return nil, err
	}
	if out.Email != "" {
		if err := writeJSONFile(s.getEmailIndexPath(out.Email), &emailIndex{UserID: out.ID}); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

func (s *FSUserStore) GetUser(ctx context.Context, id string) (*al.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUser(id)
}

func (s *FSUserStore) getUser(id string) (*al.User, error) {
	if !validID(id) {
		return nil, fmt.Errorf("user %q: %w", id, al.ErrNotFound)
	}
	var user al.User
	if err := readJSONFile(s.getUserPath(id), &user); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("user %s: %w", id, al.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *FSUserStore) GetUserByEmail(ctx context.Context, email string) (*al.User, error) {
	if email == "" {
		return nil, al.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idx emailIndex
	if err := readJSONFile(s.getEmailIndexPath(email), &idx); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("user with email %s: %w", email, al.ErrNotFound)
		}
		return nil, err
	}
	return s.getUser(idx.UserID)
}

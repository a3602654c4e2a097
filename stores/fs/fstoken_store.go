package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	al "github.com/panyam/authlink"
)

// FSTokenStore stores verification tokens as JSON files.
// Only token digests are ever written; the digest is the file name.
type FSTokenStore struct {
	StoragePath string
	mu          sync.Mutex
	now         func() time.Time
}

func NewFSTokenStore(storagePath string) *FSTokenStore {
	return &FSTokenStore{StoragePath: storagePath, now: time.Now}
}

func (s *FSTokenStore) getTokenDir() string {
	return filepath.Join(s.StoragePath, "verification_tokens")
}

func (s *FSTokenStore) getTokenPath(identifier, digest string) string {
	return filepath.Join(s.getTokenDir(), safeName(identifier+"\x00"+digest)+".json")
}

func (s *FSTokenStore) CreateVerificationToken(ctx context.Context, token *al.VerificationToken) error {
	if token.Identifier == "" || token.TokenDigest == "" {
		return fmt.Errorf("verification token needs an identifier and digest")
	}
	return writeJSONFile(s.getTokenPath(token.Identifier, token.TokenDigest), token)
}

// UseVerificationToken reads and deletes the token under a lock so a token
// can only be consumed once by this store.
func (s *FSTokenStore) UseVerificationToken(ctx context.Context, identifier, digest string) (*al.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.getTokenPath(identifier, digest)
	var token al.VerificationToken
	if err := readJSONFile(path, &token); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("verification token: %w", al.ErrNotFound)
		}
		return nil, err
	}
	// Remove is the commit point; losing the race to another process means not found
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("verification token: %w", al.ErrNotFound)
		}
		return nil, err
	}
	return &token, nil
}

// CleanupExpired removes all expired tokens and returns how many were removed
func (s *FSTokenStore) CleanupExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.getTokenDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	now := s.now()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.getTokenDir(), entry.Name())
		var token al.VerificationToken
		if err := readJSONFile(path, &token); err != nil {
			continue
		}
		if token.IsExpired(now) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

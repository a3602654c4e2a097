// Package fs keeps authlink client sessions in a JSON file.
package fs

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/panyam/authlink/client"
)

// FSCredentialStore keeps session credentials in one JSON file, readable
// only by its owner. Changes are held in memory until Save.
type FSCredentialStore struct {
	mu      sync.RWMutex
	path    string
	servers map[string]*client.SessionCredential
	dirty   bool
}

type sessionsFile struct {
	Servers map[string]*client.SessionCredential `json:"servers"`
}

// DefaultPath is ~/.config/<appName>/sessions.json (or the platform equivalent)
func DefaultPath(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("could not determine config directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	if appName == "" {
		appName = "authlink"
	}
	return filepath.Join(configDir, appName, "sessions.json"), nil
}

// NewFSCredentialStore opens the store at path, or at DefaultPath(appName)
// when path is empty. A missing file is an empty store.
func NewFSCredentialStore(path string, appName string) (*FSCredentialStore, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(appName); err != nil {
			return nil, err
		}
	}

	s := &FSCredentialStore{path: path, servers: map[string]*client.SessionCredential{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	} else if err != nil {
		return nil, err
	}

	var file sessionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if file.Servers != nil {
		s.servers = file.Servers
	}
	return s, nil
}

// serverKey identifies a server by scheme, host and mount path
func serverKey(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL: %q has no host", baseURL)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(u.Host) + strings.TrimSuffix(u.Path, "/"), nil
}

func (s *FSCredentialStore) GetCredential(baseURL string) (*client.SessionCredential, error) {
	key, err := serverKey(baseURL)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.servers[key]
	if !ok {
		return nil, nil
	}
	out := *cred
	return &out, nil
}

func (s *FSCredentialStore) SetCredential(baseURL string, cred *client.SessionCredential) error {
	key, err := serverKey(baseURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *cred
	s.servers[key] = &stored
	s.dirty = true
	return nil
}

func (s *FSCredentialStore) RemoveCredential(baseURL string) error {
	key, err := serverKey(baseURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[key]; ok {
		delete(s.servers, key)
		s.dirty = true
	}
	return nil
}

// ListServers returns the stored server keys in sorted order
func (s *FSCredentialStore) ListServers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.servers))
	for k := range s.servers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Save writes the file if anything changed since the last save
func (s *FSCredentialStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(sessionsFile{Servers: s.servers}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize sessions: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sessions-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}

	s.dirty = false
	return nil
}

func (s *FSCredentialStore) Path() string {
	return s.path
}

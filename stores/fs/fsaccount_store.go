package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	al "github.com/panyam/authlink"
)

// FSAccountStore stores account links as JSON files.
//
// Each (provider, providerAccountId) pair maps to exactly one link file, which is
// only ever created with a hard link so that a second owner can never overwrite
// the first, even across processes.
type FSAccountStore struct {
	StoragePath string
	Users       *FSUserStore
}

func NewFSAccountStore(storagePath string, users *FSUserStore) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath, Users: users}
}

func (s *FSAccountStore) getAccountPath(ref al.AccountRef) string {
	return filepath.Join(s.StoragePath, "accounts", safeName(ref.Provider), safeName(ref.ProviderAccountID)+".json")
}

func (s *FSAccountStore) getUserAccountsDir(userId string) string {
	return filepath.Join(s.StoragePath, "accounts_by_user", userId)
}

func (s *FSAccountStore) readAccount(ref al.AccountRef) (*al.Account, error) {
	var account al.Account
	if err := readJSONFile(s.getAccountPath(ref), &account); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("account %s/%s: %w", ref.Provider, ref.ProviderAccountID, al.ErrNotFound)
		}
		return nil, err
	}
	return &account, nil
}

func (s *FSAccountStore) GetUserByAccount(ctx context.Context, ref al.AccountRef) (*al.User, error) {
	account, err := s.readAccount(ref)
	if err != nil {
		return nil, err
	}
	user, err := s.Users.GetUser(ctx, account.UserID)
	if al.IsNotFound(err) {
		return nil, fmt.Errorf("account %s/%s of user %s: %w", ref.Provider, ref.ProviderAccountID, account.UserID, al.ErrOrphanedAccount)
	}
	return user, err
}

func (s *FSAccountStore) LinkAccount(ctx context.Context, account *al.Account) error {
	if !validID(account.UserID) {
		return fmt.Errorf("invalid user id: %q", account.UserID)
	}
	if account.Provider == "" || account.ProviderAccountID == "" {
		return fmt.Errorf("account needs a provider and provider account id")
	}

	path := s.getAccountPath(account.Ref())
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// os.Link fails if the target exists, which gives us the uniqueness constraint
	if err := os.Link(tmpPath, path); err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("failed to link account: %w", err)
		}
		existing, rerr := s.readAccount(account.Ref())
		if rerr != nil {
			return rerr
		}
		if existing.UserID != account.UserID {
			return fmt.Errorf("%s/%s: %w", account.Provider, account.ProviderAccountID, al.ErrAccountLinked)
		}
		return nil
	}

	indexPath := filepath.Join(s.getUserAccountsDir(account.UserID),
		safeName(account.Provider+"\x00"+account.ProviderAccountID)+".json")
	return writeAtomicFile(indexPath, data)
}

func (s *FSAccountStore) GetAccountsForUser(ctx context.Context, userId string) ([]*al.Account, error) {
	if !validID(userId) {
		return nil, nil
	}
	dir := s.getUserAccountsDir(userId)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*al.Account{}, nil
		}
		return nil, err
	}

	accounts := []*al.Account{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var account al.Account
		if err := readJSONFile(filepath.Join(dir, entry.Name()), &account); err != nil {
			continue
		}
		accounts = append(accounts, &account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

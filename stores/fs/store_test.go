package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	al "github.com/panyam/authlink"
)

func TestFSUserStore_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	store := NewFSStore(t.TempDir())

	user, err := store.CreateUser(ctx, &al.User{Email: "alice@example.com", Name: "Alice"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected an assigned user id")
	}

	got, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.Email != "alice@example.com" || got.Name != "Alice" {
		t.Errorf("GetUser() = %+v", got)
	}

	// email lookups ignore case
	byEmail, err := store.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if byEmail.ID != user.ID {
		t.Errorf("GetUserByEmail() id = %s, want %s", byEmail.ID, user.ID)
	}

	if _, err := store.CreateUser(ctx, &al.User{Email: "alice@example.com"}); err == nil {
		t.Error("expected duplicate email to be rejected")
	}
	if _, err := store.CreateUser(ctx, &al.User{ID: user.ID}); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
}

func TestFSUserStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewFSStore(t.TempDir())

	tests := []struct {
		name string
		fn   func() error
	}{
		{"missing id", func() error { _, err := store.GetUser(ctx, "nobody"); return err }},
		{"path escape", func() error { _, err := store.GetUser(ctx, "../etc"); return err }},
		{"missing email", func() error { _, err := store.GetUserByEmail(ctx, "none@example.com"); return err }},
		{"empty email", func() error { _, err := store.GetUserByEmail(ctx, ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !al.IsNotFound(err) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestFSAccountStore_LinkUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewFSStore(t.TempDir())

	alice, _ := store.CreateUser(ctx, &al.User{Email: "alice@example.com"})
	bob, _ := store.CreateUser(ctx, &al.User{Email: "bob@example.com"})

	ref := al.AccountRef{Provider: "github", ProviderAccountID: "12345"}
	link := func(userID string) error {
		return store.LinkAccount(ctx, &al.Account{
			UserID:            userID,
			Type:              al.ProviderTypeOAuth,
			Provider:          ref.Provider,
			ProviderAccountID: ref.ProviderAccountID,
			CreatedAt:         time.Now(),
		})
	}

	if err := link(alice.ID); err != nil {
		t.Fatalf("LinkAccount() error = %v", err)
	}
	// relinking to the same owner is a no-op
	if err := link(alice.ID); err != nil {
		t.Errorf("relink to same user error = %v", err)
	}
	if err := link(bob.ID); !errors.Is(err, al.ErrAccountLinked) {
		t.Errorf("link to second user error = %v, want ErrAccountLinked", err)
	}

	owner, err := store.GetUserByAccount(ctx, ref)
	if err != nil {
		t.Fatalf("GetUserByAccount() error = %v", err)
	}
	if owner.ID != alice.ID {
		t.Errorf("owner = %s, want %s", owner.ID, alice.ID)
	}

	accounts, err := store.GetAccountsForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetAccountsForUser() error = %v", err)
	}
	if len(accounts) != 1 || accounts[0].Ref() != ref {
		t.Errorf("accounts for alice = %+v", accounts)
	}
	accounts, _ = store.GetAccountsForUser(ctx, bob.ID)
	if len(accounts) != 0 {
		t.Errorf("expected no accounts for bob, got %d", len(accounts))
	}

	if _, err := store.GetUserByAccount(ctx, al.AccountRef{Provider: "github", ProviderAccountID: "999"}); !al.IsNotFound(err) {
		t.Errorf("expected ErrNotFound for unknown account, got %v", err)
	}
}

func TestFSAccountStore_OrphanedLink(t *testing.T) {
	ctx := context.Background()
	store := NewFSStore(t.TempDir())

	ref := al.AccountRef{Provider: "email", ProviderAccountID: "gone@example.com"}
	err := store.LinkAccount(ctx, &al.Account{
		UserID:            "deleted-user",
		Type:              al.ProviderTypeEmail,
		Provider:          ref.Provider,
		ProviderAccountID: ref.ProviderAccountID,
	})
	if err != nil {
		t.Fatalf("LinkAccount() error = %v", err)
	}

	_, err = store.GetUserByAccount(ctx, ref)
	if !errors.Is(err, al.ErrOrphanedAccount) {
		t.Errorf("GetUserByAccount() error = %v, want ErrOrphanedAccount", err)
	}
	if al.IsNotFound(err) {
		t.Error("an orphaned link must not look like a free identity")
	}
}

func TestFSAccountStore_ConcurrentLink(t *testing.T) {
	ctx := context.Background()
	store := NewFSStore(t.TempDir())

	var users []*al.User
	for i := 0; i < 8; i++ {
		u, err := store.CreateUser(ctx, &al.User{})
		if err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
		users = append(users, u)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			errs[i] = store.LinkAccount(ctx, &al.Account{
				UserID:            userID,
				Type:              al.ProviderTypeEmail,
				Provider:          "email",
				ProviderAccountID: "shared@example.com",
			})
		}(i, u.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, al.ErrAccountLinked) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one link to win, got %d", succeeded)
	}
}

func TestFSSessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewFSStore(t.TempDir())
	user, _ := store.CreateUser(ctx, &al.User{Email: "alice@example.com"})

	session := &al.Session{Handle: "handle-1", UserID: user.ID, Expires: time.Now().Add(time.Hour)}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, gotUser, err := store.GetSessionAndUser(ctx, "handle-1")
	if err != nil {
		t.Fatalf("GetSessionAndUser() error = %v", err)
	}
	if got.UserID != user.ID || gotUser.ID != user.ID {
		t.Errorf("GetSessionAndUser() = %+v, %+v", got, gotUser)
	}

	// handles never appear in file names
	entries, _ := os.ReadDir(filepath.Join(store.FSSessionStore.StoragePath, "sessions"))
	for _, e := range entries {
		if strings.Contains(e.Name(), "handle-1") {
			t.Errorf("session file name leaks the handle: %s", e.Name())
		}
	}

	if err := store.DeleteSession(ctx, "handle-1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, _, err := store.GetSessionAndUser(ctx, "handle-1"); !al.IsNotFound(err) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	// deleting twice is fine
	if err := store.DeleteSession(ctx, "handle-1"); err != nil {
		t.Errorf("second DeleteSession() error = %v", err)
	}
}

func TestFSSessionStore_Expired(t *testing.T) {
	ctx := context.Background()
	store := NewFSStore(t.TempDir())
	user, _ := store.CreateUser(ctx, &al.User{})

	now := time.Now()
	store.FSSessionStore.now = func() time.Time { return now }
	store.CreateSession(ctx, &al.Session{Handle: "old", UserID: user.ID, Expires: now.Add(time.Minute)})

	store.FSSessionStore.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, _, err := store.GetSessionAndUser(ctx, "old"); !al.IsNotFound(err) {
		t.Errorf("expected expired session to be not found, got %v", err)
	}
	if _, err := os.Stat(store.getSessionPath("old")); !os.IsNotExist(err) {
		t.Error("expected expired session file to be removed")
	}
}

func TestFSTokenStore_SingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewFSTokenStore(t.TempDir())

	token := &al.VerificationToken{
		Identifier:  "alice@example.com",
		TokenDigest: "digest-1",
		UserID:      "user-1",
		Expires:     time.Now().Add(time.Hour),
	}
	if err := store.CreateVerificationToken(ctx, token); err != nil {
		t.Fatalf("CreateVerificationToken() error = %v", err)
	}

	if _, err := store.UseVerificationToken(ctx, "bob@example.com", "digest-1"); !al.IsNotFound(err) {
		t.Errorf("expected ErrNotFound for other identifier, got %v", err)
	}

	got, err := store.UseVerificationToken(ctx, "alice@example.com", "digest-1")
	if err != nil {
		t.Fatalf("UseVerificationToken() error = %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %s, want user-1", got.UserID)
	}

	if _, err := store.UseVerificationToken(ctx, "alice@example.com", "digest-1"); !al.IsNotFound(err) {
		t.Errorf("expected second use to fail with ErrNotFound, got %v", err)
	}
}

func TestFSTokenStore_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	store := NewFSTokenStore(t.TempDir())
	store.CreateVerificationToken(ctx, &al.VerificationToken{
		Identifier: "alice@example.com", TokenDigest: "digest-1", Expires: time.Now().Add(time.Hour),
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	used := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.UseVerificationToken(ctx, "alice@example.com", "digest-1"); err == nil {
				mu.Lock()
				used++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if used != 1 {
		t.Errorf("expected token to be used exactly once, got %d", used)
	}
}

func TestFSTokenStore_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	store := NewFSTokenStore(t.TempDir())
	now := time.Now()
	store.now = func() time.Time { return now }

	store.CreateVerificationToken(ctx, &al.VerificationToken{Identifier: "a@example.com", TokenDigest: "d1", Expires: now.Add(-time.Minute)})
	store.CreateVerificationToken(ctx, &al.VerificationToken{Identifier: "b@example.com", TokenDigest: "d2", Expires: now.Add(-time.Hour)})
	store.CreateVerificationToken(ctx, &al.VerificationToken{Identifier: "c@example.com", TokenDigest: "d3", Expires: now.Add(time.Hour)})

	removed, err := store.CleanupExpired()
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := store.UseVerificationToken(ctx, "c@example.com", "d3"); err != nil {
		t.Errorf("expected live token to survive cleanup, got %v", err)
	}
}

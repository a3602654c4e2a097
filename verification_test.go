package authlink_test

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	al "github.com/panyam/authlink"
	"github.com/panyam/authlink/stores/fs"
)

func newIssuer(t *testing.T) (*al.VerificationTokenIssuer, *fs.FSStore, string) {
	dir := t.TempDir()
	store := fs.NewFSStore(dir)
	issuer := al.NewVerificationTokenIssuer(store, testSecret, testBaseURL)
	issuer.Logger = quietLogger()
	return issuer, store, dir
}

func TestVerificationIssue(t *testing.T) {
	ctx := context.Background()
	issuer, _, dir := newIssuer(t)
	sender := &recordingSender{}
	p := al.NewEmailProvider("email", sender)
	principal := &al.Principal{User: al.User{ID: "7"}}

	if err := issuer.Issue(ctx, "alice@example.com", p, principal, "/dashboard"); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	req := sender.last(t)
	if req.Identifier != "alice@example.com" || req.Token == "" {
		t.Errorf("request = %+v", req)
	}
	if len(req.Token) != 64 {
		t.Errorf("expected a 32 byte hex token, got %d chars", len(req.Token))
	}
	if d := time.Until(req.Expires); d < 23*time.Hour || d > 24*time.Hour {
		t.Errorf("expected a 24h expiry, got %v", d)
	}

	link, err := url.Parse(req.URL)
	if err != nil {
		t.Fatalf("bad link %q: %v", req.URL, err)
	}
	if link.Path != "/auth/callback/email" {
		t.Errorf("link path = %s", link.Path)
	}
	q := link.Query()
	if q.Get("token") != req.Token || q.Get("email") != "alice@example.com" || q.Get("callbackUrl") != "/dashboard" {
		t.Errorf("link query = %v", q)
	}

	// only the digest is ever persisted
	if al.HashToken(req.Token, testSecret) == req.Token {
		t.Fatal("digest must differ from the token")
	}
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, _ := os.ReadFile(path)
		if strings.Contains(string(data), req.Token) {
			t.Errorf("raw token found in %s", path)
		}
		return nil
	})
}

func TestVerificationVerify(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := newIssuer(t)
	sender := &recordingSender{}
	p := al.NewEmailProvider("email", sender)
	principal := &al.Principal{User: al.User{ID: "7"}}

	issuer.Issue(ctx, "alice@example.com", p, principal, "/")
	token := sender.last(t).Token

	if _, err := issuer.Verify(ctx, "alice@example.com", "wrong-token"); !al.IsNotFound(err) {
		t.Errorf("expected ErrNotFound for a wrong token, got %v", err)
	}
	if _, err := issuer.Verify(ctx, "bob@example.com", token); !al.IsNotFound(err) {
		t.Errorf("expected ErrNotFound for another identifier, got %v", err)
	}

	record, err := issuer.Verify(ctx, "alice@example.com", token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if record.UserID != "7" {
		t.Errorf("UserID = %s, want 7", record.UserID)
	}

	if _, err := issuer.Verify(ctx, "alice@example.com", token); !al.IsNotFound(err) {
		t.Errorf("expected a token to verify only once, got %v", err)
	}
}

func TestVerificationExpired(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := newIssuer(t)
	sender := &recordingSender{}
	p := al.NewEmailProvider("email", sender)
	p.MaxAge = time.Millisecond

	issuer.Issue(ctx, "alice@example.com", p, &al.Principal{User: al.User{ID: "7"}}, "/")
	time.Sleep(10 * time.Millisecond)

	if _, err := issuer.Verify(ctx, "alice@example.com", sender.last(t).Token); !errors.Is(err, al.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerificationDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := newIssuer(t)
	sender := &recordingSender{err: errors.New("smtp down")}
	p := al.NewEmailProvider("email", sender)

	err := issuer.Issue(ctx, "alice@example.com", p, &al.Principal{User: al.User{ID: "7"}}, "/")
	if !al.IsDeliveryFailure(err) {
		t.Fatalf("expected a delivery failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "smtp down") {
		t.Errorf("expected the cause in the error, got %v", err)
	}
}

func TestVerificationCustomGenerator(t *testing.T) {
	ctx := context.Background()
	issuer, _, _ := newIssuer(t)
	sender := &recordingSender{}
	p := al.NewEmailProvider("email", sender)
	p.GenerateToken = func(ctx context.Context) (string, error) { return "fixed-token", nil }

	if err := issuer.Issue(ctx, "alice@example.com", p, &al.Principal{User: al.User{ID: "7"}}, "/"); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if sender.last(t).Token != "fixed-token" {
		t.Errorf("token = %s, want fixed-token", sender.last(t).Token)
	}
	if _, err := issuer.Verify(ctx, "alice@example.com", "fixed-token"); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	p.GenerateToken = func(ctx context.Context) (string, error) { return "", nil }
	if err := issuer.Issue(ctx, "alice@example.com", p, &al.Principal{User: al.User{ID: "7"}}, "/"); err == nil {
		t.Error("expected an empty generated token to be rejected")
	}
}

func TestVerificationIssueRequiresPrincipal(t *testing.T) {
	issuer, _, _ := newIssuer(t)
	p := al.NewEmailProvider("email", &recordingSender{})
	if err := issuer.Issue(context.Background(), "alice@example.com", p, nil, "/"); err == nil {
		t.Error("expected an error without a principal")
	}
}

func TestHashToken(t *testing.T) {
	a := al.HashToken("token", "secret-a")
	if a != al.HashToken("token", "secret-a") {
		t.Error("expected a stable digest")
	}
	if a == al.HashToken("token", "secret-b") {
		t.Error("expected the digest to depend on the secret")
	}
	if len(a) != 64 {
		t.Errorf("expected a hex sha256 digest, got %d chars", len(a))
	}
}

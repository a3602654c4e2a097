package authlink

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Default lifetimes
const (
	DefaultVerificationMaxAge = 24 * time.Hour
	DefaultStateMaxAge        = 15 * time.Minute
	DefaultSessionMaxAge      = 30 * 24 * time.Hour
)

// Key derivation labels. Each purpose gets its own key from the one secret.
const (
	keyInfoSigning      = "authlink signing key"
	keyInfoVerification = "authlink verification token digest"
)

// GenerateSecureToken generates a cryptographically secure random token
// (32 bytes, hex encoded)
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateNonce returns 32 random bytes, base64url encoded without padding
func GenerateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken computes the digest stored in place of a raw verification token
func HashToken(token, secret string) string {
	mac := hmac.New(sha256.New, deriveKey(secret, keyInfoVerification))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// deriveKey expands the configured secret into a 32 byte key for one purpose
func deriveKey(secret, info string) []byte {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails after 255*HashLen bytes
		panic(err)
	}
	return key
}

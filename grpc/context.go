// Package grpc carries authlink sessions into gRPC services. Clients send the
// session token as metadata; the interceptors resolve it into a principal.
package grpc

import (
	"context"
	"strings"

	"github.com/panyam/authlink"
	"google.golang.org/grpc/metadata"
)

// Default metadata keys for the session token.
const (
	// DefaultMetadataKeySessionToken is the default gRPC metadata key carrying the session handle
	DefaultMetadataKeySessionToken = "x-session-token"

	// MetadataKeyAuthorization carries "Bearer <session handle>" as an alternative
	MetadataKeyAuthorization = "authorization"
)

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeySessionToken is the gRPC metadata key for the session handle.
	// Defaults to "x-session-token".
	MetadataKeySessionToken string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKeySessionToken: DefaultMetadataKeySessionToken}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeySessionToken == "" {
		c.MetadataKeySessionToken = DefaultMetadataKeySessionToken
	}
}

// SessionTokenFromContext extracts the session handle from incoming metadata.
// Returns empty string if none was sent.
func SessionTokenFromContext(ctx context.Context) string {
	return SessionTokenFromContextWithConfig(ctx, nil)
}

// SessionTokenFromContextWithConfig extracts the session handle using the specified config.
func SessionTokenFromContextWithConfig(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeySessionToken); len(values) > 0 && values[0] != "" {
		return values[0]
	}
	for _, v := range md.Get(MetadataKeyAuthorization) {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok && token != "" {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// SessionTokenToOutgoingContext adds the session handle to outgoing gRPC metadata.
func SessionTokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return SessionTokenToOutgoingContextWithKey(ctx, token, DefaultMetadataKeySessionToken)
}

// SessionTokenToOutgoingContextWithKey adds the session handle with a custom key.
func SessionTokenToOutgoingContextWithKey(ctx context.Context, token string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, token)
}

// PrincipalFromContext returns the principal resolved by the interceptors, or nil
func PrincipalFromContext(ctx context.Context) *authlink.Principal {
	return authlink.PrincipalFromContext(ctx)
}

// UserIDFromContext returns the id of the resolved principal, or ""
func UserIDFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.ID
	}
	return ""
}

// IsAuthenticated returns true if the interceptors resolved a principal.
func IsAuthenticated(ctx context.Context) bool {
	return PrincipalFromContext(ctx) != nil
}

package authlink

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenCodec encodes claims into an opaque signed string and back.
// Decode must fail on tampered, malformed or expired input.
type TokenCodec interface {
	Encode(ctx context.Context, claims map[string]any, maxAge time.Duration) (string, error)
	Decode(ctx context.Context, token string) (map[string]any, error)
}

// JWTCodec is an HS256 TokenCodec with a key derived from a shared secret
type JWTCodec struct {
	Issuer string

	key []byte
	now func() time.Time
}

func NewJWTCodec(secret, issuer string) *JWTCodec {
	return &JWTCodec{
		Issuer: issuer,
		key:    deriveKey(secret, keyInfoSigning),
		now:    time.Now,
	}
}

// SetNow overrides the clock used for exp/iat (for testing)
func (c *JWTCodec) SetNow(fn func() time.Time) {
	c.now = fn
}

func (c *JWTCodec) Encode(ctx context.Context, claims map[string]any, maxAge time.Duration) (string, error) {
	if maxAge <= 0 {
		return "", fmt.Errorf("max age must be positive")
	}
	now := c.now()
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["iat"] = now.Unix()
	mc["exp"] = now.Add(maxAge).Unix()
	mc["jti"] = uuid.NewString()
	if c.Issuer != "" {
		mc["iss"] = c.Issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mc)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

func (c *JWTCodec) Decode(ctx context.Context, tokenString string) (map[string]any, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return c.key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("claims is not a map")
	}
	return claims, nil
}

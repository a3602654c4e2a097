package authlink

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks setup faults. These should surface at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrStateTokenInvalid is returned when a state cookie is tampered, malformed or expired
	ErrStateTokenInvalid = errors.New("invalid state token")

	// ErrCodeVerifierInvalid means the PKCE cookie was missing, forged or expired
	ErrCodeVerifierInvalid = errors.New("invalid pkce code verifier")

	// ErrDeliveryFailed is returned when the verification sender fails
	ErrDeliveryFailed = errors.New("verification delivery failed")

	// ErrNotSignedIn means the request carried no usable session
	ErrNotSignedIn = errors.New("no signed in user")

	ErrNotFound      = errors.New("record not found")
	ErrAccountLinked = errors.New("account already linked to another user")

	// ErrOrphanedAccount means an account link points at a user that no longer
	// exists. The link still blocks other users, so it is not ErrNotFound.
	ErrOrphanedAccount = errors.New("account linked to a missing user")
	ErrTokenExpired  = errors.New("token expired")
)

// ErrorCode is the public error code placed on the error redirect
type ErrorCode string

const (
	ErrorConfiguration         ErrorCode = "Configuration"
	ErrorOAuthSignin           ErrorCode = "OAuthSignin"
	ErrorOAuthCallback         ErrorCode = "OAuthCallback"
	ErrorOAuthAccountNotLinked ErrorCode = "OAuthAccountNotLinked"
	ErrorEmailSignin           ErrorCode = "EmailSignin"
	ErrorVerification          ErrorCode = "Verification"
	ErrorAccessDenied          ErrorCode = "AccessDenied"
	ErrorDefault               ErrorCode = "Default"
)

// ReasonLinkTaken is the reason attached when an identifier belongs to another user
const ReasonLinkTaken = "link_taken"

// SigninError pairs a public error code with the private cause.
// Only Code and Reason ever leave the process.
type SigninError struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func newSigninError(code ErrorCode, reason string, err error) *SigninError {
	return &SigninError{Code: code, Reason: reason, Err: err}
}

func (e *SigninError) Error() string {
	msg := string(e.Code)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SigninError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means a store record is absent
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

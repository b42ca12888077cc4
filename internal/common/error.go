// Package common defines shared constants and sentinel errors used across
// client and server layers of gophauth. Callers should use errors.Is to
// match these values, or KindOf to reduce an error to its taxonomy kind.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Credential errors. Unknown email and wrong password both map here.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Access token verification errors.
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenMalformed   = errors.New("malformed token")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenUnsupported = errors.New("unsupported token")

	// Refresh token lifecycle errors.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token expired")
	ErrTokensRefresh        = errors.New("failed to refresh tokens")

	// User errors.
	ErrUserNotFound           = errors.New("user not found")
	ErrUserNotAuthenticated   = errors.New("user is not authenticated")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrPasswordMismatch       = errors.New("password and confirmation do not match")
	ErrValidation             = errors.New("validation error")
)

// Kind is the enumerated error taxonomy exposed to transport boundaries.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidCredentials
	KindInvalidSignature
	KindTokenMalformed
	KindTokenExpired
	KindTokenUnsupported
	KindRefreshTokenNotFound
	KindRefreshTokenExpired
	KindTokensRefresh
	KindUserNotFound
	KindUserNotAuthenticated
	KindEmailAlreadyRegistered
	KindPasswordMismatch
	KindValidation
	KindNotFound
)

// kindOrder is checked top to bottom. ErrTokensRefresh comes first because it
// wraps the specific cause, and the collapsed outcome must win.
var kindOrder = []struct {
	err  error
	kind Kind
}{
	{ErrTokensRefresh, KindTokensRefresh},
	{ErrInvalidCredentials, KindInvalidCredentials},
	{ErrUserNotAuthenticated, KindUserNotAuthenticated},
	{ErrInvalidSignature, KindInvalidSignature},
	{ErrTokenMalformed, KindTokenMalformed},
	{ErrTokenExpired, KindTokenExpired},
	{ErrTokenUnsupported, KindTokenUnsupported},
	{ErrRefreshTokenNotFound, KindRefreshTokenNotFound},
	{ErrRefreshTokenExpired, KindRefreshTokenExpired},
	{ErrUserNotFound, KindUserNotFound},
	{ErrEmailAlreadyRegistered, KindEmailAlreadyRegistered},
	{ErrPasswordMismatch, KindPasswordMismatch},
	{ErrValidation, KindValidation},
	{ErrorNotFound, KindNotFound},
}

// KindOf reduces err to its taxonomy kind. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsUnauthenticatedToken reports whether err is one of the access token
// failures that are treated as "not authenticated" without further detail.
func IsUnauthenticatedToken(err error) bool {
	switch KindOf(err) {
	case KindTokenMalformed, KindTokenExpired, KindTokenUnsupported:
		return true
	}
	return false
}

package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotUnlocked is returned by any org read or write while the vault
	// session is locked.
	ErrNotUnlocked = errors.New("vault is locked: unlock with the master password first")

	// ErrWrongPassword is returned when the master password does not open
	// the persisted vault.
	ErrWrongPassword = errors.New("wrong master password")

	// ErrVaultCorrupt is returned when the persisted vault cannot be parsed.
	ErrVaultCorrupt = errors.New("vault data is corrupt")

	// ErrOrgNotFound is returned for an unknown org id.
	ErrOrgNotFound = errors.New("org not found")

	// ErrOAuthConfigNotFound is returned when no connected-app config is
	// stored for the requested login type.
	ErrOAuthConfigNotFound = errors.New("oauth config not found")

	// ErrOAuthCancelled is returned when the user abandons the interactive
	// authorization step.
	ErrOAuthCancelled = errors.New("oauth cancelled")

	// ErrNoAuthorizationCode is returned when the authorization redirect
	// carries no code.
	ErrNoAuthorizationCode = errors.New("no authorization code received")

	// ErrVersionConflict is returned when the persisted vault changed
	// underneath a write and retries were exhausted.
	ErrVersionConflict = errors.New("vault was modified concurrently")

	// ErrStateMismatch is returned when the authorization redirect carries a
	// state other than the one the flow was started with.
	ErrStateMismatch = errors.New("authorization redirect state mismatch")

	// ErrInjectionFailed is returned by browser hosts that could not run an
	// injection in a tab.
	ErrInjectionFailed = errors.New("injection failed")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MissingCredentialError is returned when refresh or revoke is attempted on
// an org without the required token.
type MissingCredentialError struct {
	OrgID      string
	Credential string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("org %s has no %s", e.OrgID, e.Credential)
}

// AuthorizationError is an error the authorization server reported on the
// redirect, other than the user denying access.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return "authorization failed: " + e.Code
	}
	return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
}

// TokenOp names the token endpoint call that failed.
type TokenOp string

const (
	TokenOpExchange TokenOp = "exchange"
	TokenOpRefresh  TokenOp = "refresh"
)

// TokenError is a non-success response from the OAuth token endpoint.
type TokenError struct {
	Op         TokenOp
	Status     int
	StatusText string
	Code       string // OAuth error code, e.g. "invalid_grant"
}

func (e *TokenError) Error() string {
	var prefix string
	switch e.Op {
	case TokenOpExchange:
		prefix = "token exchange failed"
	case TokenOpRefresh:
		prefix = "token refresh failed"
	default:
		prefix = "token request failed"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", prefix, e.StatusText, e.Code)
	}
	return fmt.Sprintf("%s: %s", prefix, e.StatusText)
}

// TransportError is a token endpoint call that never got an OAuth response,
// such as a refused connection or a timeout.
type TransportError struct {
	Op  TokenOp
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("token %s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTokenExchangeError reports whether err is a failed code exchange.
func IsTokenExchangeError(err error) bool {
	var te *TokenError
	return errors.As(err, &te) && te.Op == TokenOpExchange
}

// IsTokenRefreshError reports whether err is a failed token refresh.
func IsTokenRefreshError(err error) bool {
	var te *TokenError
	return errors.As(err, &te) && te.Op == TokenOpRefresh
}

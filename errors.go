package veriauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidInput is returned when a username fails the allowed-character
	// policy (ASCII letters, digits, underscore) or a required field is empty.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when registering a username that already has a
	// verified account.
	ErrConflict = errors.New("username already exists")
	// ErrNotFound is returned when a store holds no record for a username:
	// no pending registration (including after a concurrent verification
	// consumed it) and, from CredentialStore.Get, no verified account.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCode is returned when a verification code does not match.
	// The pending registration is retained so the user may retry.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrCodeExpired is returned when the TTL policy is enabled and the
	// verification code has outlived it.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrInvalidCredentials is the single outward-facing login failure for
	// both unknown usernames and wrong passwords, to resist enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified is returned when a credential record without a
	// verified email is encountered at login. Unreachable while the store
	// invariants hold.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrRateLimited is returned when a client identity exceeds an attempt
	// window. Use [AsRateLimited] to recover the retry-after hint.
	ErrRateLimited = errors.New("rate limited")
	// ErrDeliveryFailed is returned when the Notifier cannot dispatch the
	// verification message. No pending registration is created.
	ErrDeliveryFailed = errors.New("verification delivery failed")
	// ErrSessionNotFound is returned by Manager.Session for unknown or
	// expired tokens.
	ErrSessionNotFound = errors.New("session not found")
	// ErrBackendUnavailable is the generic surface for unexpected storage
	// failures. It carries no internal detail; the wrapped cause is for logs.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrManagerNotReady is returned when a Manager is used before Build
	// wired its dependencies.
	ErrManagerNotReady = errors.New("manager not initialized")
)

// RateLimitedError wraps [ErrRateLimited] with the duration after which the
// client may retry. errors.Is(err, ErrRateLimited) holds for all values.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// AsRateLimited extracts the RetryAfter hint from a rate-limit error chain.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

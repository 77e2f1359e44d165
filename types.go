package veriauth

import (
	"context"
	"time"
)

// Account is a verified credential record. Accounts are created only by a
// completed email verification and are never mutated afterwards.
type Account struct {
	Username      string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     int64
}

// PendingRegistration is an unverified account awaiting email confirmation.
// Exactly one exists per username; a new registration for the same username
// overwrites it. The verification code is held as a SHA-256 hash only.
type PendingRegistration struct {
	Username     string
	PasswordHash string
	Email        string
	CodeHash     [32]byte
	IssuedAt     int64
}

// CredentialStore is the durable username -> verified credential mapping.
//
// Implementations must be safe for concurrent use and must guarantee
// at-most-one-writer-per-key semantics: Put either creates the full record or
// fails, never a torn write.
type CredentialStore interface {
	// Exists reports whether a verified account exists for username.
	Exists(ctx context.Context, username string) (bool, error)
	// Get returns the account, or ErrNotFound when absent.
	Get(ctx context.Context, username string) (*Account, error)
	// Put creates a verified account. Returns ErrConflict if the username
	// is taken.
	Put(ctx context.Context, username, passwordHash string) error
}

// PendingRegistrationStore holds registrations between Register and
// VerifyEmail. Put upserts (last registration wins), Remove is idempotent,
// and Consume atomically validates the code hash and deletes the record so
// that a code can never be redeemed twice. A username must never be held
// pending and verified at the same time; stores that implement
// [AccountPromoter] enforce that in Put, all others rely on the Manager
// re-checking the credential store after the write.
type PendingRegistrationStore interface {
	Put(ctx context.Context, record *PendingRegistration) error
	Get(ctx context.Context, username string) (*PendingRegistration, error)
	Remove(ctx context.Context, username string) error
	// Consume deletes and returns the record when codeHash matches.
	// A mismatch leaves the record intact. maxAge <= 0 disables the
	// expiry check.
	Consume(ctx context.Context, username string, codeHash [32]byte, maxAge time.Duration) (*PendingRegistration, error)
}

// AccountPromoter is an optional fast path for the pending store. When the
// pending and credential stores share a backend, Promote performs the
// code check, account creation, and pending-record deletion as one atomic
// operation, so no observer sees the username in both stores or in neither.
// The Manager uses it when available and otherwise falls back to a
// per-username mutex around Consume and Put.
//
// Promoting stores must also return ErrConflict from Put while a verified
// account holds the username; the Manager skips its own account re-check
// for them.
type AccountPromoter interface {
	Promote(ctx context.Context, username string, codeHash [32]byte, maxAge time.Duration) error
}

// Notifier is the external message-delivery capability. Send either delivers
// or returns an error; the Manager treats any error as delivery failure and
// creates no state. Implementations own their timeout policy.
type Notifier interface {
	Send(ctx context.Context, destination, subject, body string) error
}

// RegisterRequest is the input for [Manager.Register].
type RegisterRequest struct {
	Username string
	Password string
	Email    string
}

// SessionInfo describes an authenticated session, referenced by an opaque
// token held by the transport layer.
type SessionInfo struct {
	Token     string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// LoginResult is returned by a successful [Manager.Login].
type LoginResult struct {
	Token   string
	Session SessionInfo
}

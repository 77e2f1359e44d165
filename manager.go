package veriauth

import (
	"errors"
	"fmt"
	"sync"

	internalaudit "github.com/veriauth/veriauth/internal/audit"
	"github.com/veriauth/veriauth/internal/rate"
	"github.com/veriauth/veriauth/password"
	"github.com/veriauth/veriauth/session"
)

// Manager orchestrates registration, email verification, login, and logout
// against the configured stores. Build one through [Builder.Build]; it is
// safe for concurrent use afterwards.
type Manager struct {
	config       Config
	credentials  CredentialStore
	pending      PendingRegistrationStore
	sessions     *session.Store
	rateLimiter  *rate.Limiter
	issuer       *codeIssuer
	passwordHash *password.Hasher
	audit        *internalaudit.Dispatcher
	metrics      *Metrics

	// dummyHash absorbs a verify round for unknown usernames so login
	// timing does not reveal account existence.
	dummyHash string

	verifyLocks keyedMutex
}

// Close flushes and stops the audit dispatcher. The Manager must not be used
// afterwards.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	if m.audit != nil {
		m.audit.Close()
	}
}

// Metrics exposes the Manager's counters for the surrounding observability
// layer.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

func (m *Manager) ready() bool {
	return m != nil &&
		m.credentials != nil &&
		m.pending != nil &&
		m.sessions != nil &&
		m.rateLimiter != nil &&
		m.issuer != nil &&
		m.passwordHash != nil
}

// mapRateError converts limiter rejections to the public error surface and
// everything else to the generic backend error.
func mapRateError(err error) error {
	var limited *rate.LimitedError
	if errors.As(err, &limited) {
		return &RateLimitedError{RetryAfter: limited.RetryAfter}
	}
	if errors.Is(err, rate.ErrRateLimited) {
		return ErrRateLimited
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// keyedMutex serializes critical sections per key. It backs the verification
// fallback path for pending stores without an atomic promote.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) *keyedLock {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return l
}

func (k *keyedMutex) unlock(key string, l *keyedLock) {
	l.mu.Unlock()

	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

package veriauth

import (
	"context"
	"errors"
	"time"

	"github.com/veriauth/veriauth/session"
)

// Login authenticates a verified account and creates a session. The rate
// limiter is consulted first and spends one attempt whatever the outcome, so
// malformed or failing requests cannot probe beyond the budget. Unknown
// usernames and wrong passwords both return ErrInvalidCredentials.
func (m *Manager) Login(ctx context.Context, username, plaintext string) (*LoginResult, error) {
	if !m.ready() {
		return nil, ErrManagerNotReady
	}

	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.Observe(MetricLoginLatency, time.Since(start))
		}
	}()

	clientKey := clientKeyFromContext(ctx)
	if err := m.rateLimiter.AdmitLogin(ctx, clientKey); err != nil {
		mapped := mapRateError(err)
		if errors.Is(mapped, ErrRateLimited) {
			m.metricInc(MetricLoginRateLimited)
			m.emitRateLimit(ctx, "login", username)
			m.emitAudit(ctx, auditEventLoginRateLimited, false, username, mapped, nil)
		}
		return nil, mapped
	}

	// Malformed usernames cannot exist; surface the same generic error as
	// a wrong password.
	if !validUsername(username) || plaintext == "" {
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLoginFailure, false, username, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "malformed_request",
			}
		})
		return nil, ErrInvalidCredentials
	}

	account, err := m.credentials.Get(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a verify round so timing does not separate unknown
			// usernames from wrong passwords.
			_, _ = m.passwordHash.Verify(plaintext, m.dummyHash)
			m.metricInc(MetricLoginFailure)
			m.emitAudit(ctx, auditEventLoginFailure, false, username, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		m.emitAudit(ctx, auditEventLoginFailure, false, username, err, nil)
		return nil, err
	}

	// Accounts are created only by verification, so this does not fire
	// for the bundled stores. Foreign CredentialStore implementations may
	// hold unverified records.
	if !account.EmailVerified {
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLoginFailure, false, username, ErrEmailNotVerified, nil)
		return nil, ErrEmailNotVerified
	}

	ok, err := m.passwordHash.Verify(plaintext, account.PasswordHash)
	if err != nil {
		m.emitAudit(ctx, auditEventLoginFailure, false, username, ErrBackendUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "corrupt_credential_record",
			}
		})
		return nil, ErrBackendUnavailable
	}
	if !ok {
		m.metricInc(MetricLoginFailure)
		m.emitAudit(ctx, auditEventLoginFailure, false, username, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	sess, err := m.sessions.Create(ctx, username)
	if err != nil {
		m.emitAudit(ctx, auditEventLoginFailure, false, username, ErrBackendUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "session_creation_failed",
			}
		})
		return nil, ErrBackendUnavailable
	}

	m.metricInc(MetricLoginSuccess)
	m.metricInc(MetricSessionCreated)
	m.emitAudit(ctx, auditEventLoginSuccess, true, username, nil, nil)

	return &LoginResult{
		Token: sess.Token,
		Session: SessionInfo{
			Token:     sess.Token,
			Username:  sess.Username,
			CreatedAt: time.Unix(sess.CreatedAt, 0),
			ExpiresAt: time.Unix(sess.ExpiresAt, 0),
		},
	}, nil
}

// Logout destroys the session for token. It is idempotent: unknown or
// already-destroyed tokens succeed.
func (m *Manager) Logout(ctx context.Context, token string) error {
	if !m.ready() {
		return ErrManagerNotReady
	}

	// Resolve the token first so the audit event names the identity being
	// logged out. Unknown tokens audit with an empty username.
	var username string
	if sess, err := m.sessions.Get(ctx, token); err == nil {
		username = sess.Username
	}

	if err := m.sessions.Delete(ctx, token); err != nil {
		m.emitAudit(ctx, auditEventLogout, false, username, ErrBackendUnavailable, nil)
		return ErrBackendUnavailable
	}

	m.metricInc(MetricSessionInvalidated)
	m.emitAudit(ctx, auditEventLogout, true, username, nil, nil)
	return nil
}

// Session resolves an opaque token to its session record for the transport
// layer. Unknown and expired tokens return ErrSessionNotFound.
func (m *Manager) Session(ctx context.Context, token string) (*SessionInfo, error) {
	if !m.ready() {
		return nil, ErrManagerNotReady
	}

	sess, err := m.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, ErrBackendUnavailable
	}

	return &SessionInfo{
		Token:     sess.Token,
		Username:  sess.Username,
		CreatedAt: time.Unix(sess.CreatedAt, 0),
		ExpiresAt: time.Unix(sess.ExpiresAt, 0),
	}, nil
}

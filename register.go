package veriauth

import (
	"context"
	"errors"
	"time"
)

// Register starts the registration flow: it validates the username policy,
// rejects usernames that already hold a verified account, hashes the
// password, and issues a verification code. Only after the Notifier accepts
// the message is the pending registration written, so a delivery failure
// leaves the username Unregistered. Re-registering a pending username
// overwrites the prior record and invalidates its code.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) error {
	if !m.ready() {
		return ErrManagerNotReady
	}

	if err := m.rateLimiter.AdmitGlobal(ctx, clientKeyFromContext(ctx)); err != nil {
		mapped := mapRateError(err)
		if errors.Is(mapped, ErrRateLimited) {
			m.emitRateLimit(ctx, "register", req.Username)
		}
		return mapped
	}

	if !validUsername(req.Username) {
		m.metricInc(MetricRegisterRejected)
		m.emitAudit(ctx, auditEventRegister, false, req.Username, ErrInvalidInput, func() map[string]string {
			return map[string]string{
				"reason": "username_policy",
			}
		})
		return ErrInvalidInput
	}
	if req.Password == "" || req.Email == "" {
		m.metricInc(MetricRegisterRejected)
		m.emitAudit(ctx, auditEventRegister, false, req.Username, ErrInvalidInput, func() map[string]string {
			return map[string]string{
				"reason": "missing_fields",
			}
		})
		return ErrInvalidInput
	}

	exists, err := m.credentials.Exists(ctx, req.Username)
	if err != nil {
		m.emitAudit(ctx, auditEventRegister, false, req.Username, err, nil)
		return err
	}
	if exists {
		m.metricInc(MetricRegisterRejected)
		m.emitAudit(ctx, auditEventRegister, false, req.Username, ErrConflict, nil)
		return ErrConflict
	}

	passwordHash, err := m.passwordHash.Hash(req.Password)
	if err != nil {
		// Hash rejects only policy violations (e.g. too-short passwords).
		m.metricInc(MetricRegisterRejected)
		m.emitAudit(ctx, auditEventRegister, false, req.Username, ErrInvalidInput, func() map[string]string {
			return map[string]string{
				"reason": "password_policy",
			}
		})
		return ErrInvalidInput
	}

	// The Notifier call happens before any store write and outside any
	// lock; a slow or failing mailer leaves no state behind.
	issued, err := m.issuer.Issue(ctx, req.Username, req.Email)
	if err != nil {
		m.metricInc(MetricDeliveryFailed)
		m.emitAudit(ctx, auditEventRegister, false, req.Username, err, nil)
		return err
	}

	record := &PendingRegistration{
		Username:     req.Username,
		PasswordHash: passwordHash,
		Email:        req.Email,
		CodeHash:     issued.CodeHash,
		IssuedAt:     time.Now().Unix(),
	}

	if err := m.storePending(ctx, record); err != nil {
		if errors.Is(err, ErrConflict) {
			// The username was verified while the Notifier call was in
			// flight. The account stands and the new code is dead.
			m.metricInc(MetricRegisterRejected)
			m.emitAudit(ctx, auditEventRegister, false, req.Username, ErrConflict, nil)
			return ErrConflict
		}
		m.emitAudit(ctx, auditEventRegister, false, req.Username, err, nil)
		return err
	}

	m.metricInc(MetricRegisterSuccess)
	m.emitAudit(ctx, auditEventRegister, true, req.Username, nil, func() map[string]string {
		return map[string]string{
			"delivery_id": issued.DeliveryID,
		}
	})
	return nil
}

// storePending writes the pending record while keeping a username out of both
// stores at once. Promoting stores refuse the Put themselves when an account
// exists; for foreign stores the account check is redone after the write,
// under the per-username lock that also serializes fallback promotion.
func (m *Manager) storePending(ctx context.Context, record *PendingRegistration) error {
	if _, ok := m.pending.(AccountPromoter); ok {
		return m.pending.Put(ctx, record)
	}

	l := m.verifyLocks.lock(record.Username)
	defer m.verifyLocks.unlock(record.Username, l)

	if err := m.pending.Put(ctx, record); err != nil {
		return err
	}

	exists, err := m.credentials.Exists(ctx, record.Username)
	if err != nil {
		_ = m.pending.Remove(ctx, record.Username)
		return err
	}
	if exists {
		_ = m.pending.Remove(ctx, record.Username)
		return ErrConflict
	}
	return nil
}

package veriauth

import (
	"context"
	"errors"
)

// VerifyEmail consumes a verification code and promotes the pending
// registration to a verified account. The move is all-or-nothing: when the
// pending store implements [AccountPromoter] a single atomic operation
// performs code check, account creation, and pending deletion; otherwise a
// per-username lock serializes Consume and Put. Of N concurrent calls with
// the same valid code exactly one succeeds and the rest observe ErrNotFound.
// A wrong code leaves the pending record intact.
func (m *Manager) VerifyEmail(ctx context.Context, username, code string) error {
	if !m.ready() {
		return ErrManagerNotReady
	}

	if err := m.rateLimiter.AdmitGlobal(ctx, clientKeyFromContext(ctx)); err != nil {
		mapped := mapRateError(err)
		if errors.Is(mapped, ErrRateLimited) {
			m.emitRateLimit(ctx, "verify_email", username)
		}
		return mapped
	}

	if !validUsername(username) || code == "" {
		m.metricInc(MetricVerifyFailure)
		m.emitAudit(ctx, auditEventVerifyEmail, false, username, ErrInvalidInput, func() map[string]string {
			return map[string]string{
				"reason": "malformed_request",
			}
		})
		return ErrInvalidInput
	}

	if err := m.promote(ctx, username, code); err != nil {
		m.metricInc(MetricVerifyFailure)
		m.emitAudit(ctx, auditEventVerifyEmail, false, username, err, nil)
		return err
	}

	m.metricInc(MetricVerifySuccess)
	m.emitAudit(ctx, auditEventVerifyEmail, true, username, nil, nil)
	return nil
}

func (m *Manager) promote(ctx context.Context, username, code string) error {
	codeHash := hashCode(code)
	maxAge := m.config.Verification.CodeTTL

	if promoter, ok := m.pending.(AccountPromoter); ok {
		return promoter.Promote(ctx, username, codeHash, maxAge)
	}

	// Fallback for foreign store pairs: serialize per username so a code
	// cannot be redeemed twice, then move the record in two steps.
	l := m.verifyLocks.lock(username)
	defer m.verifyLocks.unlock(username, l)

	record, err := m.pending.Consume(ctx, username, codeHash, maxAge)
	if err != nil {
		return err
	}

	if err := m.credentials.Put(ctx, username, record.PasswordHash); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrConflict
		}
		// Restore the consumed record so the user can retry; without this
		// a transient credential-store failure would strand the username
		// in neither store.
		_ = m.pending.Put(ctx, record)
		return err
	}

	return nil
}

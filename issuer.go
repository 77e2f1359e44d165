package veriauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/veriauth/veriauth/internal"
)

// codeIssuer generates verification codes and delegates message delivery to
// the external Notifier. It never persists anything; the caller decides what
// to store based on the delivery outcome.
type codeIssuer struct {
	notifier Notifier
	config   VerificationConfig
}

type issuedCode struct {
	// CodeHash is the only form the caller may store.
	CodeHash [32]byte
	// DeliveryID correlates the audit trail with the notifier's logs.
	DeliveryID string
}

func newCodeIssuer(notifier Notifier, cfg VerificationConfig) *codeIssuer {
	return &codeIssuer{
		notifier: notifier,
		config:   cfg,
	}
}

// Issue generates a fresh code and sends the verification message. A
// delivery failure returns ErrDeliveryFailed and no code hash; the plaintext
// code exists only inside this call and in the recipient's mailbox.
func (i *codeIssuer) Issue(ctx context.Context, username, email string) (*issuedCode, error) {
	code, err := internal.NewVerificationCode(i.config.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	link := verificationLink(i.config.BaseURL, username, code)
	body := "Click the following link to verify your email: " + link

	if err := i.notifier.Send(ctx, email, i.config.Subject, body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	return &issuedCode{
		CodeHash:   internal.HashVerificationCode(code),
		DeliveryID: uuid.NewString(),
	}, nil
}

func hashCode(code string) [32]byte {
	return internal.HashVerificationCode(code)
}

// verificationLink encodes {username, code} so a single click reaches
// VerifyEmail. The code is the random secret; nothing in the link structure
// derives it.
func verificationLink(baseURL, username, code string) string {
	return strings.TrimSuffix(baseURL, "/") + "/verify_email/" + username + "/" + code
}

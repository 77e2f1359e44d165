package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// SessionToken is the raw form of the opaque token handed to clients.
type SessionToken [16]byte

func NewSessionToken() (SessionToken, error) {
	var tok SessionToken
	_, err := rand.Read(tok[:])
	return tok, err
}

func (t SessionToken) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(t[:])
}

func ParseSessionToken(token string) (SessionToken, error) {
	var tok SessionToken

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return tok, err
	}
	if len(raw) != len(tok) {
		return tok, errors.New("invalid session token size")
	}

	copy(tok[:], raw)
	return tok, nil
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewVerificationCode returns length random alphanumeric characters drawn
// from crypto/rand. Length must be at least 6.
func NewVerificationCode(length int) (string, error) {
	if length < 6 || length > 64 {
		return "", errors.New("invalid verification code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// HashVerificationCode maps a plaintext code to the stored digest form.
// Stores never hold plaintext codes.
func HashVerificationCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

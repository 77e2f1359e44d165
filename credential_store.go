package veriauth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const accountRecordVersionV1 = 1

// redisCredentialStore is the bundled CredentialStore. Records are versioned
// binary blobs written with SET NX, so account creation is a single atomic
// create-or-conflict operation.
type redisCredentialStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCredentialStore returns a CredentialStore backed by the given
// Redis client. The prefix namespaces its keys; pass the same prefix to
// [NewRedisPendingStore] to enable the atomic verification fast path.
func NewRedisCredentialStore(redisClient redis.UniversalClient, prefix string) CredentialStore {
	if prefix == "" {
		prefix = "vst"
	}
	return &redisCredentialStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func accountKey(prefix, username string) string {
	return prefix + ":acct:" + username
}

func (s *redisCredentialStore) Exists(ctx context.Context, username string) (bool, error) {
	n, err := s.redis.Exists(ctx, accountKey(s.prefix, username)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return n > 0, nil
}

func (s *redisCredentialStore) Get(ctx context.Context, username string) (*Account, error) {
	data, err := s.redis.Get(ctx, accountKey(s.prefix, username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	account, err := decodeAccountRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	account.Username = username

	return account, nil
}

func (s *redisCredentialStore) Put(ctx context.Context, username, passwordHash string) error {
	encoded, err := encodeAccountRecord(passwordHash, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ok, err := s.redis.SetNX(ctx, accountKey(s.prefix, username), encoded, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return ErrConflict
	}

	return nil
}

// Account record layout, all integers big-endian:
//
//	version(1) verified(1) createdAt(8) hashLen(2) passwordHash(hashLen)
func encodeAccountRecord(passwordHash string, createdAt int64) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(accountRecordVersionV1)
	buf.WriteByte(1) // emailVerified; entries exist only after verification

	if err := binary.Write(&buf, binary.BigEndian, createdAt); err != nil {
		return nil, err
	}

	if len(passwordHash) > 65535 {
		return nil, errors.New("account password hash too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(passwordHash))); err != nil {
		return nil, err
	}
	buf.WriteString(passwordHash)

	return buf.Bytes(), nil
}

func decodeAccountRecord(data []byte) (*Account, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != accountRecordVersionV1 {
		return nil, errors.New("invalid account record version")
	}

	verified, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	account := &Account{
		EmailVerified: verified == 1,
	}

	if err := binary.Read(reader, binary.BigEndian, &account.CreatedAt); err != nil {
		return nil, err
	}

	var hashLen uint16
	if err := binary.Read(reader, binary.BigEndian, &hashLen); err != nil {
		return nil, err
	}

	hash := make([]byte, hashLen)
	if _, err := io.ReadFull(reader, hash); err != nil {
		return nil, err
	}
	account.PasswordHash = string(hash)

	return account, nil
}

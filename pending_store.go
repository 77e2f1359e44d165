package veriauth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingRecordVersionV1 = 1

// consumePendingLua atomically performs GET -> validate -> DEL on a pending
// registration. A code mismatch leaves the record intact so the user can
// retry from the same email.
//
// KEYS[1] = pending record key
// ARGV[1] = provided code hash (32 bytes)
// ARGV[2] = max age in seconds (0 disables the expiry check)
// ARGV[3] = current unix timestamp
//
// Returns the record bytes on success, or an error string:
// "not_found", "expired", "code_mismatch".
var consumePendingLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local maxAge = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

-- Record layout: version(1) issuedAt(8 big-endian) codeHash(32) ...
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local issuedAt = string.byte(data, 2)
for i = 3, 9 do
  issuedAt = issuedAt * 256 + string.byte(data, i)
end

if maxAge > 0 and nowUnix > issuedAt + maxAge then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local storedHash = string.sub(data, 10, 41)
if storedHash ~= ARGV[1] then
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// promotePendingLua moves a pending registration to a verified account in a
// single atomic step: validate the code, create the account record with NX,
// delete the pending record. No observer sees the username in both stores or
// in neither.
//
// KEYS[1] = pending record key
// KEYS[2] = account record key
// ARGV[1] = provided code hash (32 bytes)
// ARGV[2] = max age in seconds (0 disables the expiry check)
// ARGV[3] = current unix timestamp
//
// Returns "ok", or an error string: "not_found", "expired", "code_mismatch",
// "conflict".
var promotePendingLua = redis.NewScript(`
local function be64(n)
  local b = {}
  for i = 8, 1, -1 do
    b[i] = n % 256
    n = math.floor(n / 256)
  end
  return string.char(b[1], b[2], b[3], b[4], b[5], b[6], b[7], b[8])
end

local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local maxAge = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local issuedAt = string.byte(data, 2)
for i = 3, 9 do
  issuedAt = issuedAt * 256 + string.byte(data, i)
end

if maxAge > 0 and nowUnix > issuedAt + maxAge then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local storedHash = string.sub(data, 10, 41)
if storedHash ~= ARGV[1] then
  return {err='code_mismatch'}
end

if redis.call('EXISTS', KEYS[2]) == 1 then
  redis.call('DEL', KEYS[1])
  return {err='conflict'}
end

-- Account record: version(1) verified(1) createdAt(8) hashLen(2) hash.
-- The hashLen+hash tail of the pending record starts after the email field.
local emailLen = string.byte(data, 42) * 256 + string.byte(data, 43)
local account = string.char(1) .. string.char(1) .. be64(nowUnix) .. string.sub(data, 44 + emailLen)

redis.call('SET', KEYS[2], account)
redis.call('DEL', KEYS[1])
return 'ok'
`)

// putPendingLua upserts a pending registration unless a verified account
// already holds the username. Without the account check a Register that was
// parked in the Notifier call could write its pending record after a
// concurrent VerifyEmail promoted the username, leaving it in both stores.
//
// KEYS[1] = pending record key
// KEYS[2] = account record key
// ARGV[1] = encoded pending record
// ARGV[2] = record TTL in milliseconds (0 disables expiry)
//
// Returns "ok", or the error string "conflict".
var putPendingLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {err='conflict'}
end

if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 'ok'
`)

// redisPendingStore is the bundled PendingRegistrationStore. It shares a key
// prefix with the credential store so Put and Promote can touch both records
// in one script.
type redisPendingStore struct {
	redis   redis.UniversalClient
	prefix  string
	codeTTL time.Duration
}

// NewRedisPendingStore returns a PendingRegistrationStore backed by the given
// Redis client. When codeTTL is positive the Redis key also expires, keeping
// abandoned registrations from accumulating.
func NewRedisPendingStore(redisClient redis.UniversalClient, prefix string, codeTTL time.Duration) PendingRegistrationStore {
	if prefix == "" {
		prefix = "vst"
	}
	return &redisPendingStore{
		redis:   redisClient,
		prefix:  prefix,
		codeTTL: codeTTL,
	}
}

func pendingKey(prefix, username string) string {
	return prefix + ":pend:" + username
}

func (s *redisPendingStore) Put(ctx context.Context, record *PendingRegistration) error {
	encoded, err := encodePendingRecord(record)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Upsert, the last registration attempt wins, unless the username was
	// verified in the meantime.
	result, err := putPendingLua.Run(ctx, s.redis,
		[]string{pendingKey(s.prefix, record.Username), accountKey(s.prefix, record.Username)},
		encoded,
		s.codeTTL.Milliseconds(),
	).Result()
	if err != nil {
		return mapPendingScriptError(err)
	}

	if status, ok := result.(string); !ok || status != "ok" {
		return fmt.Errorf("%w: unexpected lua result", ErrBackendUnavailable)
	}

	return nil
}

func (s *redisPendingStore) Get(ctx context.Context, username string) (*PendingRegistration, error) {
	data, err := s.redis.Get(ctx, pendingKey(s.prefix, username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	record, err := decodePendingRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	record.Username = username

	return record, nil
}

func (s *redisPendingStore) Remove(ctx context.Context, username string) error {
	if err := s.redis.Del(ctx, pendingKey(s.prefix, username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *redisPendingStore) Consume(ctx context.Context, username string, codeHash [32]byte, maxAge time.Duration) (*PendingRegistration, error) {
	result, err := consumePendingLua.Run(ctx, s.redis,
		[]string{pendingKey(s.prefix, username)},
		string(codeHash[:]),
		int64(maxAge.Seconds()),
		time.Now().Unix(),
	).Result()

	if err != nil {
		return nil, mapPendingScriptError(err)
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrBackendUnavailable)
	}

	record, decErr := decodePendingRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, decErr)
	}
	record.Username = username

	// Lua string comparison is not constant-time; recheck here.
	if subtle.ConstantTimeCompare(record.CodeHash[:], codeHash[:]) != 1 {
		return nil, ErrInvalidCode
	}

	return record, nil
}

// Promote implements [AccountPromoter] for same-Redis deployments.
func (s *redisPendingStore) Promote(ctx context.Context, username string, codeHash [32]byte, maxAge time.Duration) error {
	result, err := promotePendingLua.Run(ctx, s.redis,
		[]string{pendingKey(s.prefix, username), accountKey(s.prefix, username)},
		string(codeHash[:]),
		int64(maxAge.Seconds()),
		time.Now().Unix(),
	).Result()

	if err != nil {
		return mapPendingScriptError(err)
	}

	if status, ok := result.(string); !ok || status != "ok" {
		return fmt.Errorf("%w: unexpected lua result", ErrBackendUnavailable)
	}

	return nil
}

func mapPendingScriptError(err error) error {
	switch err.Error() {
	case "not_found":
		return ErrNotFound
	case "expired":
		return ErrCodeExpired
	case "code_mismatch":
		return ErrInvalidCode
	case "conflict":
		return ErrConflict
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

// Pending record layout, all integers big-endian:
//
//	version(1) issuedAt(8) codeHash(32) emailLen(2) email hashLen(2) passwordHash
//
// The promote script depends on these offsets.
func encodePendingRecord(record *PendingRegistration) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(pendingRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	if len(record.Email) > 65535 {
		return nil, errors.New("pending record email too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)

	if len(record.PasswordHash) > 65535 {
		return nil, errors.New("pending record password hash too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.PasswordHash))); err != nil {
		return nil, err
	}
	buf.WriteString(record.PasswordHash)

	return buf.Bytes(), nil
}

func decodePendingRecord(data []byte) (*PendingRegistration, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingRecordVersionV1 {
		return nil, errors.New("invalid pending record version")
	}

	record := &PendingRegistration{}

	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, err
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	record.Email = string(email)

	var hashLen uint16
	if err := binary.Read(reader, binary.BigEndian, &hashLen); err != nil {
		return nil, err
	}
	hash := make([]byte, hashLen)
	if _, err := io.ReadFull(reader, hash); err != nil {
		return nil, err
	}
	record.PasswordHash = string(hash)

	return record, nil
}

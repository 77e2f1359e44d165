package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veriauth/veriauth/internal"
)

// ErrSessionNotFound is returned when a token resolves to no live session.
var ErrSessionNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps transport failures to the session backend.
var ErrRedisUnavailable = errors.New("session redis unavailable")

// Store keeps sessions in Redis under an opaque random token.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a session [Store]. ttl is the absolute session lifetime.
func NewStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "vs"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) key(token string) string {
	return s.prefix + ":" + token
}

// Create issues a fresh token and persists the session record under it.
func (s *Store) Create(ctx context.Context, username string) (*Session, error) {
	tok, err := internal.NewSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		Token:     tok.String(),
		Username:  username,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}

	encoded, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	if err := s.redis.Set(ctx, s.key(sess.Token), encoded, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// Get resolves a token to its session. Expired or unknown tokens return
// [ErrSessionNotFound].
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	if _, err := internal.ParseSessionToken(token); err != nil {
		return nil, ErrSessionNotFound
	}

	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sess.Token = token

	if time.Now().Unix() >= sess.ExpiresAt {
		// TTL lag; treat as gone and let Redis reap the key.
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Delete destroys the session for token. Deleting an absent session is not
// an error.
func (s *Store) Delete(ctx context.Context, token string) error {
	if _, err := internal.ParseSessionToken(token); err != nil {
		return nil
	}

	if err := s.redis.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

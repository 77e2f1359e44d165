// Package session stores authenticated-client sessions in Redis, keyed by an
// opaque random token.
//
// Records use a compact versioned binary encoding. Create issues the token,
// Get resolves it, Delete is idempotent. Expiry is enforced both by the Redis
// key TTL and by the ExpiresAt field, so a lagging TTL cannot resurrect a
// session.
package session

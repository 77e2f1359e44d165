package veriauth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/veriauth/veriauth/internal/audit"
	"github.com/veriauth/veriauth/internal/rate"
	"github.com/veriauth/veriauth/password"
	"github.com/veriauth/veriauth/session"
)

// Builder assembles a [Manager]. A Redis client and a Notifier are required;
// store implementations default to the bundled Redis-backed ones, which
// enable the atomic verification fast path.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	pending     PendingRegistrationStore
	notifier    Notifier
	auditSink   AuditSink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the bundled stores, the session
// store, and the rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore overrides the bundled credential store.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithPendingStore overrides the bundled pending-registration store.
func (b *Builder) WithPendingStore(store PendingRegistrationStore) *Builder {
	b.pending = store
	return b
}

// WithNotifier sets the message-delivery capability. Required.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the destination for audit events. Without one, events
// are dispatched to a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires all components, and returns a
// ready Manager. A builder can be used once.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	credentials := b.credentials
	if credentials == nil {
		credentials = NewRedisCredentialStore(b.redis, "vst")
	}

	pending := b.pending
	if pending == nil {
		pending = NewRedisPendingStore(b.redis, "vst", cfg.Verification.CodeTTL)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	// Hashed once at build time; Login verifies unknown usernames against
	// it to keep response timing uniform.
	dummyHash, err := hasher.Hash("veriauth-timing-pad")
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:      cfg,
		credentials: credentials,
		pending:     pending,
		sessions:    session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.TTL),
		rateLimiter: rate.New(b.redis, rate.Config{
			LoginMaxAttempts: cfg.RateLimit.LoginMaxAttempts,
			LoginWindow:      cfg.RateLimit.LoginWindow,
			EnableGlobal:     cfg.RateLimit.EnableGlobal,
			GlobalHourly:     cfg.RateLimit.GlobalHourly,
			GlobalDaily:      cfg.RateLimit.GlobalDaily,
		}),
		issuer:       newCodeIssuer(b.notifier, cfg.Verification),
		passwordHash: hasher,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics:   NewMetrics(cfg.Metrics),
		dummyHash: dummyHash,
	}

	b.built = true

	return m, nil
}

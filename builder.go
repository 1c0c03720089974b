package authcore

import (
	"errors"
	"log/slog"

	"github.com/firdaws-app/authcore/internal/rate"
	"github.com/firdaws-app/authcore/password"
	"github.com/firdaws-app/authcore/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Backend selection is a constructor-time
// decision: with a Redis client the rate limiter counts in Redis and holds
// across processes, without one it falls back to the in-process counter.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	store     Store
	tokens    TokenStore
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithTokenSecret sets the session-token signing secret without replacing
// the rest of the config.
func (b *Builder) WithTokenSecret(secret []byte) *Builder {
	b.config.Token.Secret = secret
	return b
}

// WithRedis supplies the shared counter backend. Optional; absence selects
// the in-process limiter fallback.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore supplies the durable row store. Required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithTokenStore overrides where ephemeral verification tokens live. By
// default they share the durable store.
func (b *Builder) WithTokenStore(tokens TokenStore) *Builder {
	b.tokens = tokens
	return b
}

// WithAuditSink enables audit event dispatch to sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration, wires the backends, and returns the
// engine. A Builder is single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.store == nil {
		return nil, errors.New("store required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	tokenManager, err := token.NewManager(b.config.Token)
	if err != nil {
		return nil, err
	}

	passwordHash, err := password.NewArgon2(b.config.Password)
	if err != nil {
		return nil, err
	}

	var backend rate.Backend
	if b.redis != nil {
		backend = rate.NewRedisBackend(b.redis)
	} else {
		backend = rate.NewMemoryBackend(b.config.RateLimit.SweepInterval)
	}

	tokens := b.tokens
	if tokens == nil {
		tokens = b.store
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:       b.config,
		store:        b.store,
		tokens:       tokens,
		limiter:      rate.New(backend),
		tokenManager: tokenManager,
		passwordHash: passwordHash,
		totp:         newTOTPVerifier(b.config.TwoFactor),
		metrics:      newMetrics(),
		logger:       logger,
	}
	if b.auditSink != nil {
		engine.audit = newAuditDispatcher(b.auditSink, 256)
	}

	return engine, nil
}

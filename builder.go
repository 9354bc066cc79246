package goOTP

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/goOTP/clock"
	"github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	local   session.Storage
	handoff session.Storage

	backend    Backend
	clock      clock.Clock
	logger     *slog.Logger
	auditSinks []AuditSink
	federated  []FederatedProvider

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for client storage (unless
// WithStorage is also given) and for the mock backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStorage sets the client storage capabilities. local holds the
// session keys; handoff holds auth_email and may be nil to share local.
func (b *Builder) WithStorage(local, handoff session.Storage) *Builder {
	b.local = local
	b.handoff = handoff
	return b
}

// WithBackend sets the remote auth service. Without it Build creates a
// mockapi.Server on the Redis client.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// WithClock sets the clock for timers, expiry checks and the mock backend.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink adds an audit destination. Every sink sees every event.
// Audit.Enabled must be true for events to be dispatched.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if sink != nil {
		b.auditSinks = append(b.auditSinks, sink)
	}
	return b
}

// WithFederatedProvider registers a provider signed out on every logout.
func (b *Builder) WithFederatedProvider(p FederatedProvider) *Builder {
	if p != nil {
		b.federated = append(b.federated, p)
	}
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the [Engine].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := b.clock
	if c == nil {
		c = clock.Real()
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- CLIENT STORAGE --------
	local, handoff := b.local, b.handoff
	switch {
	case local != nil:
	case b.redis != nil:
		local = session.NewRedisStorage(b.redis, cfg.Session.RedisPrefix)
		handoff = session.NewRedisStorage(b.redis, cfg.Session.HandoffPrefix)
	default:
		local = session.NewMemoryStorage(c)
		handoff = session.NewMemoryStorage(c)
	}
	store := session.NewStore(local, handoff, cfg.Session.HandoffTTL)

	// -------- BACKEND --------
	backend := b.backend
	if backend == nil {
		if b.redis == nil {
			return nil, errors.New("backend or redis client required")
		}
		mock, err := newMockBackend(cfg, b.redis, c, logger)
		if err != nil {
			return nil, err
		}
		backend = mock
	}

	b.built = true

	return &Engine{
		config:    cfg,
		store:     store,
		backend:   backend,
		clock:     c,
		logger:    logger,
		metrics:   NewMetrics(cfg.Metrics),
		federated: append([]FederatedProvider(nil), b.federated...),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSinks...),
		flows: make(map[string]*Flow),
	}, nil
}

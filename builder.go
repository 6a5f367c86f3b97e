package goIdentity

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/guard"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/session"
)

// Builder assembles an Engine from its collaborators.
//
// Builder instances are configured during initialization and are single-use:
// Build may succeed at most once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     CredentialStore
	mailer    notify.Mailer
	auditSink AuditSink
	logger    *zap.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
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

// WithRedis sets the client backing the session store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the user and one-time token store. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithMailer sets the outbound email transport. Required.
func (b *Builder) WithMailer(m notify.Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets where audit events go. Without one, events are dropped.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token issuance, lockout and expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
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
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	g, err := guard.New(b.store, guard.Policy{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
	})
	if err != nil {
		return nil, err
	}

	codec, err := NewCodec(cfg, now)
	if err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NoOpSink{}
	}

	engine := &Engine{
		config:   cfg,
		store:    b.store,
		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix).WithClock(now),
		guard:    g,
		codec:    codec,
		mailer:   b.mailer,
		composer: notify.Composer{Product: cfg.Notify.ProductName, BaseURL: cfg.AppBaseURL},
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink, logger),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger.Named("goidentity"),
		now:     now,
		newID:   uuid.NewString,
	}

	b.built = true

	return engine, nil
}

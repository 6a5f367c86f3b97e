package goIdentity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/guard"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/session"
)

// Engine runs the account lifecycle: signup, login, refresh rotation,
// logout, password reset and email verification. It holds no per-user
// state in memory; the credential store and the session store are the only
// synchronization points.
//
// Engine is safe for concurrent use. Build it with New().…Build().
type Engine struct {
	config   Config
	store    CredentialStore
	sessions *session.Store
	guard    *guard.Guard
	codec    *Codec
	mailer   notify.Mailer
	composer notify.Composer
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// Close flushes pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:     map[MetricID]uint64{},
			Histograms:   map[MetricID][]uint64{},
			HistogramSum: map[MetricID]time.Duration{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.sessions == nil || e.codec == nil {
		return ErrEngineNotReady
	}
	return nil
}

// storeCtx bounds the store round trips of one operation.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Timeouts.Store)
}

// HealthReport is the result of probing both stores.
type HealthReport struct {
	CredentialStore error
	SessionStore    error
	SessionLatency  time.Duration
}

// Healthy is true when both stores answered.
func (h HealthReport) Healthy() bool {
	return h.CredentialStore == nil && h.SessionStore == nil
}

// Health pings the credential store and Redis.
func (e *Engine) Health(ctx context.Context) HealthReport {
	if err := e.ready(); err != nil {
		return HealthReport{CredentialStore: err, SessionStore: err}
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	var report HealthReport
	if err := e.store.Ping(sctx); err != nil {
		report.CredentialStore = storeUnavailable(err)
	}
	latency, err := e.sessions.Ping(sctx)
	if err != nil {
		report.SessionStore = sessionStoreUnavailable(err)
	}
	report.SessionLatency = latency
	return report
}

// ValidateAccess verifies a bearer access token without touching a store.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	if accessToken == "" {
		return nil, tokenInvalid()
	}
	return e.codec.VerifyAccessToken(accessToken)
}

// WhoAmI returns the projection of an authenticated user.
func (e *Engine) WhoAmI(ctx context.Context, userID string) (UserProjection, error) {
	if err := e.ready(); err != nil {
		return UserProjection{}, err
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	user, err := e.userByID(sctx, userID)
	if err != nil {
		return UserProjection{}, err
	}
	return user.Projection(), nil
}

// userByID maps a missing row to a BadRequest user-not-found.
func (e *Engine) userByID(ctx context.Context, userID string) (User, error) {
	if userID == "" {
		return User{}, &Error{Kind: KindBadRequest, Message: "user not found", Err: ErrUserNotFound}
	}
	user, err := e.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, &Error{Kind: KindBadRequest, Message: "user not found", Err: ErrUserNotFound}
		}
		return User{}, storeUnavailable(err)
	}
	return user, nil
}

// startSession mints an access token and a refresh token and persists the
// session keyed by the refresh token's hash.
func (e *Engine) startSession(ctx context.Context, user User, ip, userAgent string) (string, string, error) {
	access, err := e.codec.SignAccessToken(user)
	if err != nil {
		return "", "", internalError(err)
	}
	refresh, err := e.codec.NewOpaqueToken()
	if err != nil {
		return "", "", internalError(err)
	}

	now := e.now()
	ttl := e.config.Session.TTL
	sess := &session.Session{
		UserID:    user.ID,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	if err := e.sessions.Save(ctx, e.codec.HashToken(refresh), sess, ttl); err != nil {
		return "", "", sessionStoreUnavailable(err)
	}
	e.metricInc(MetricSessionCreated)

	return access, refresh, nil
}

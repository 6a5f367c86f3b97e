package goIdentity

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/internal/guard"
)

// Login authenticates email and password and starts a session.
//
// Unknown emails and wrong passwords produce the same error, and an unknown
// email still runs a password verification so both paths cost about the same.
// A locked account is rejected before any password check, with the remaining
// lock time in the message.
func (e *Engine) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, validationError("password", "is required")
	}
	if len(password) > maxPasswordBytes {
		return nil, validationError("password", "must be at most 128 bytes")
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	user, err := e.store.UserByEmail(sctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, storeUnavailable(err)
		}
		e.codec.burnVerify(password)
		return nil, e.loginFailed(ctx, "")
	}

	now := e.now()
	decision := guard.Evaluate(lockState(user), now)
	if decision.Locked {
		lockErr := accountLocked(guard.RemainingMinutes(decision.Remaining))
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, user.ID, "", lockErr, nil)
		return nil, lockErr
	}

	if user.PasswordHash == "" {
		e.codec.burnVerify(password)
		return nil, e.loginFailed(ctx, user.ID)
	}

	start := time.Now()
	ok, err := e.codec.VerifyPassword(password, user.PasswordHash)
	e.metrics.Observe(MetricPasswordVerifyLatency, time.Since(start))
	if err != nil {
		e.logger.Error("stored password hash unusable", zap.String("user_id", user.ID), zap.Error(err))
		return nil, e.loginFailed(ctx, user.ID)
	}

	if !ok {
		outcome, gerr := e.guard.RecordFailure(sctx, user.ID, now)
		if gerr != nil {
			return nil, storeUnavailable(gerr)
		}
		failErr := e.loginFailed(ctx, user.ID)
		if outcome.Locked {
			e.metricInc(MetricAccountLocked)
			e.emitAudit(ctx, auditEventAccountLocked, true, user.ID, "", nil, func() map[string]string {
				return map[string]string{
					"attempts":     strconv.Itoa(outcome.Attempts),
					"locked_until": outcome.LockedUntil.UTC().Format(time.RFC3339),
				}
			})
		}
		return nil, failErr
	}

	if err := e.guard.RecordSuccess(sctx, user.ID, now); err != nil {
		return nil, storeUnavailable(err)
	}
	user.FailedLoginAttempts = 0
	user.LastFailedLoginAt = nil
	user.LockedUntil = nil
	stamp := now.UTC()
	user.LastLoginAt = &stamp

	if e.config.Password.UpgradeOnLogin && e.codec.NeedsRehash(user.PasswordHash) {
		e.upgradePasswordHash(sctx, user.ID, password, now)
	}

	access, refresh, err := e.startSession(sctx, user, clientIPFromContext(ctx), userAgentFromContext(ctx))
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, "", nil, nil)

	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user.Projection(),
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, userID string) error {
	err := invalidCredentials()
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", err, nil)
	return err
}

// upgradePasswordHash rewrites a legacy or weaker hash after a successful
// login. Best-effort: the login already succeeded.
func (e *Engine) upgradePasswordHash(ctx context.Context, userID, password string, now time.Time) {
	hash, err := e.codec.HashPassword(password)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := e.store.UpdatePassword(ctx, userID, hash, now.UTC()); err != nil {
		e.logger.Warn("password rehash not stored", zap.String("user_id", userID), zap.Error(err))
	}
}

func lockState(u User) guard.State {
	st := guard.State{FailedAttempts: u.FailedLoginAttempts}
	if u.LockedUntil != nil {
		st.LockedUntil = *u.LockedUntil
	}
	return st
}

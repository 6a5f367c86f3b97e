package goIdentity

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"
)

// ForgotPassword starts a password reset. It returns nil whether or not the
// email is registered; a reset row and an email exist only when it is.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	e.metricInc(MetricPasswordResetRequest)

	user, err := e.store.UserByEmail(sctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
				return map[string]string{"account": "unknown"}
			})
			return nil
		}
		return storeUnavailable(err)
	}

	token, err := e.codec.NewOpaqueToken()
	if err != nil {
		return internalError(err)
	}

	now := e.now().UTC()
	ttl := e.config.Tokens.ResetTTL
	row := PasswordReset{
		ID:        e.newID(),
		UserID:    user.ID,
		TokenHash: e.codec.HashToken(token),
		ExpiresAt: now.Add(ttl),
		IP:        clientIPFromContext(ctx),
		CreatedAt: now,
	}
	if err := e.store.CreatePasswordReset(sctx, row); err != nil {
		return storeUnavailable(err)
	}

	// Never enforced: an error here would tell the caller the address is registered.
	msg := e.composer.PasswordReset(user.Email, user.Name, token, ttl)
	_ = e.deliver(ctx, user.ID, mailKindPasswordReset, msg, false)

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, row.ID, nil, nil)
	return nil
}

// ResetPassword redeems a reset token and sets a new password. The token
// works once. The lock and failed-attempt counter are cleared and every
// session of the user is ended.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if !validateOpaqueToken(token) {
		return e.resetFailed(ctx, "", oneTimeTokenInvalid())
	}

	// Hash before redeeming so the token is not burned by a hashing failure.
	hash, err := e.codec.HashPassword(newPassword)
	if err != nil {
		return internalError(err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	now := e.now().UTC()
	// The token is spent only if the password update commits with it.
	row, err := e.store.RedeemPasswordReset(sctx, e.codec.HashToken(token), hash, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return e.resetFailed(ctx, "", oneTimeTokenInvalid())
		}
		return storeUnavailable(err)
	}

	// The password is already changed; a Redis failure here leaves stale
	// sessions that die with their TTL.
	removed, err := e.sessions.DeleteAllForUser(sctx, row.UserID)
	if err != nil {
		e.logger.Error("sessions not invalidated after password reset",
			zap.String("user_id", row.UserID),
			zap.Int("removed", removed),
			zap.Error(err),
		)
	}
	if removed > 0 {
		e.metrics.Add(MetricSessionInvalidated, uint64(removed))
	}

	if user, uerr := e.store.UserByID(sctx, row.UserID); uerr == nil {
		_ = e.deliver(ctx, user.ID, mailKindPasswordChanged, e.composer.PasswordChanged(user.Email, user.Name, now), false)
	} else {
		e.logger.Warn("password changed notice skipped", zap.String("user_id", row.UserID), zap.Error(uerr))
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, row.UserID, row.ID, nil, func() map[string]string {
		return map[string]string{"sessions_removed": strconv.Itoa(removed)}
	})
	return nil
}

func (e *Engine) resetFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricPasswordResetFailure)
	e.emitAudit(ctx, auditEventPasswordResetInvalid, false, userID, "", err, nil)
	return err
}

package goIdentity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/notify"
)

const (
	mailKindVerification    = "verification"
	mailKindPasswordReset   = "password_reset"
	mailKindPasswordChanged = "password_changed"
)

// deliver sends msg under the notify timeout. Failures are always logged,
// counted and audited. They are returned only when enforce is set and the
// policy is fail-closed.
func (e *Engine) deliver(ctx context.Context, userID, kind string, msg notify.Message, enforce bool) error {
	sendCtx, cancel := context.WithTimeout(ctx, e.config.Notify.Timeout)
	defer cancel()

	err := e.mailer.Send(sendCtx, msg)
	if err == nil {
		return nil
	}

	e.metricInc(MetricNotificationFailure)
	e.logger.Warn("email delivery failed",
		zap.String("kind", kind),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	e.emitAudit(ctx, auditEventNotificationFailed, false, userID, kind, fmt.Errorf("%w: %v", ErrNotificationFailed, err), nil)

	if enforce && e.config.Notify.Policy == NotifyFailClosed {
		return &Error{
			Kind:    KindTransient,
			Message: "email could not be sent, try again later",
			Err:     fmt.Errorf("%w: %v", ErrNotificationFailed, err),
		}
	}
	return nil
}

// sendVerification creates a pending verification row for user and mails
// the link.
func (e *Engine) sendVerification(ctx, sctx context.Context, user User) error {
	token, err := e.codec.NewOpaqueToken()
	if err != nil {
		return internalError(err)
	}

	now := e.now().UTC()
	ttl := e.config.Tokens.VerificationTTL
	row := EmailVerification{
		ID:        e.newID(),
		UserID:    user.ID,
		Email:     user.Email,
		TokenHash: e.codec.HashToken(token),
		ExpiresAt: now.Add(ttl),
		IP:        clientIPFromContext(ctx),
		CreatedAt: now,
	}
	if err := e.store.CreateEmailVerification(sctx, row); err != nil {
		return storeUnavailable(err)
	}

	msg := e.composer.Verification(user.Email, user.Name, token, ttl)
	if err := e.deliver(ctx, user.ID, mailKindVerification, msg, true); err != nil {
		return err
	}

	e.metricInc(MetricEmailVerificationSent)
	e.emitAudit(ctx, auditEventEmailVerificationSent, true, user.ID, row.ID, nil, nil)
	return nil
}

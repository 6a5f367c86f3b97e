package goIdentity

import (
	"context"
	"errors"
)

// VerifyEmail redeems a verification token and marks the address verified.
// Tokens work once and only before they expire.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !validateOpaqueToken(token) {
		return e.verifyFailed(ctx, "", oneTimeTokenInvalid())
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	now := e.now().UTC()
	row, err := e.store.ConsumeEmailVerification(sctx, e.codec.HashToken(token), now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return e.verifyFailed(ctx, "", oneTimeTokenInvalid())
		}
		return storeUnavailable(err)
	}

	if err := e.store.MarkEmailVerified(sctx, row.UserID, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return e.verifyFailed(ctx, row.UserID, oneTimeTokenInvalid())
		}
		return storeUnavailable(err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerified, true, row.UserID, row.ID, nil, nil)
	return nil
}

// ResendVerification issues another verification token for userID. Older
// pending tokens stay valid until they expire.
func (e *Engine) ResendVerification(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	user, err := e.userByID(sctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return &Error{Kind: KindBadRequest, Message: "email already verified", Err: ErrEmailAlreadyVerified}
	}

	return e.sendVerification(ctx, sctx, user)
}

func (e *Engine) verifyFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricEmailVerificationFailure)
	e.emitAudit(ctx, auditEventEmailVerificationInvalid, false, userID, "", err, nil)
	return err
}

package goIdentity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/internal/guard"
	"github.com/MrEthical07/goIdentity/session"
)

// Logout ends the session identified by refreshToken if it belongs to
// userID. It succeeds when the session is already gone.
func (e *Engine) Logout(ctx context.Context, userID, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" {
		return validationError("userId", "is required")
	}

	removed := false
	if validateOpaqueToken(refreshToken) {
		sctx, cancel := e.storeCtx(ctx)
		defer cancel()

		var err error
		removed, err = e.sessions.Delete(sctx, userID, e.codec.HashToken(refreshToken))
		if err != nil {
			return sessionStoreUnavailable(err)
		}
	}

	if removed {
		e.metricInc(MetricSessionInvalidated)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, "", nil, func() map[string]string {
		if removed {
			return map[string]string{"session": "removed"}
		}
		return map[string]string{"session": "absent"}
	})
	return nil
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// access and refresh pair is issued. Of concurrent calls with the same token
// exactly one succeeds. The new session keeps the IP and user agent of the
// one it replaces.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !validateOpaqueToken(refreshToken) {
		return nil, e.refreshFailed(ctx, "", refreshInvalid())
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	hash := e.codec.HashToken(refreshToken)
	current, err := e.sessions.Get(sctx, hash)
	if err != nil {
		return nil, e.refreshFailed(ctx, "", e.mapSessionErr(err))
	}

	user, err := e.store.UserByID(sctx, current.UserID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, storeUnavailable(err)
		}
		if _, derr := e.sessions.Delete(sctx, current.UserID, hash); derr != nil {
			e.logger.Warn("orphaned session not removed", zap.String("user_id", current.UserID), zap.Error(derr))
		}
		return nil, e.refreshFailed(ctx, current.UserID, refreshInvalid())
	}

	if decision := guard.Evaluate(lockState(user), e.now()); decision.Locked {
		return nil, e.refreshFailed(ctx, user.ID, accountLocked(guard.RemainingMinutes(decision.Remaining)))
	}

	// Take is the compare-and-delete: only one caller gets the session.
	taken, err := e.sessions.Take(sctx, hash)
	if err != nil {
		return nil, e.refreshFailed(ctx, user.ID, e.mapSessionErr(err))
	}
	e.metricInc(MetricSessionInvalidated)

	access, refresh, err := e.startSession(sctx, user, taken.IP, taken.UserAgent)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, "", nil, nil)

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) refreshFailed(ctx context.Context, userID string, err error) error {
	if KindOf(err) == KindTransient {
		return err
	}
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", err, nil)
	return err
}

// mapSessionErr turns a session store error into the engine taxonomy.
// Corrupt blobs are unusable and count as invalid tokens.
func (e *Engine) mapSessionErr(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return refreshInvalid()
	case errors.Is(err, session.ErrSessionCorrupt):
		e.logger.Warn("corrupt session blob", zap.Error(err))
		return refreshInvalid()
	default:
		return sessionStoreUnavailable(err)
	}
}

package goIdentity

import (
	"context"
	"errors"
	"strings"
)

// Signup registers a user, starts a session and sends the first
// verification email.
//
// A duplicate email fails with KindConflict. This is the one operation that
// reveals whether an address is registered.
func (e *Engine) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	currency := strings.ToUpper(strings.TrimSpace(in.CurrencyCode))
	if currency == "" {
		currency = e.config.DefaultCurrency
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := validateCurrency(currency); err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	// Checked up front so a taken address does not pay for a password hash.
	// The unique constraint still decides races.
	if _, err := e.store.UserByEmail(sctx, email); err == nil {
		return nil, e.signupConflict(ctx)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, storeUnavailable(err)
	}

	hash, err := e.codec.HashPassword(in.Password)
	if err != nil {
		return nil, internalError(err)
	}

	user, err := e.store.CreateUser(sctx, NewUser{
		ID:           e.newID(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CurrencyCode: currency,
		CreatedAt:    e.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, e.signupConflict(ctx)
		}
		return nil, storeUnavailable(err)
	}

	if err := e.sendVerification(ctx, sctx, user); err != nil {
		e.emitAudit(ctx, auditEventSignup, false, user.ID, "", err, nil)
		return nil, err
	}

	access, refresh, err := e.startSession(sctx, user, clientIPFromContext(ctx), userAgentFromContext(ctx))
	if err != nil {
		e.emitAudit(ctx, auditEventSignup, false, user.ID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignup, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"currency": user.CurrencyCode}
	})

	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user.Projection(),
	}, nil
}

func (e *Engine) signupConflict(ctx context.Context) error {
	err := emailTaken()
	e.metricInc(MetricSignupConflict)
	e.emitAudit(ctx, auditEventSignup, false, "", "", err, nil)
	return err
}

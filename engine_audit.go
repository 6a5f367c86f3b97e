package goIdentity

import (
	"context"
	"errors"
)

const (
	auditEventSignup                   = "signup"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventAccountLocked            = "account_locked"
	auditEventLoginLocked              = "login_locked"
	auditEventLogout                   = "logout"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventPasswordResetInvalid     = "password_reset_invalid"
	auditEventEmailVerificationSent    = "email_verification_sent"
	auditEventEmailVerified            = "email_verified"
	auditEventEmailVerificationInvalid = "email_verification_invalid"
	auditEventNotificationFailed       = "notification_failed"
)

// AuditErrorCode is the short machine code written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrAlreadyVerified    AuditErrorCode = "already_verified"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrNotification       AuditErrorCode = "notification_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	action string,
	success bool,
	userID string,
	resource string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		Action:    action,
		UserID:    userID,
		Resource:  resource,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrOneTimeTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrEmailAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrEmailTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidInput):
		return auditErrValidation
	case errors.Is(err, ErrNotificationFailed):
		return auditErrNotification
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrSessionStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

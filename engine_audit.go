package phoneauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth/internal"
)

const (
	auditEventChallengeIssued   = "challenge_issued"
	auditEventChallengeRejected = "challenge_rejected"
	auditEventChallengeVerified = "challenge_verified"
	auditEventChallengeFailed   = "challenge_failed"
	auditEventDeliveryDropped   = "delivery_dropped"
	auditEventDeliveryFailed    = "delivery_failed"
	auditEventIdentityCreated   = "identity_created"
	auditEventLoginSuccess      = "login_success"
	auditEventLoginFailure      = "login_failure"
	auditEventLockoutRejected   = "lockout_rejected"
	auditEventRateLimited       = "rate_limit_triggered"
	auditEventRefreshSuccess    = "refresh_success"
	auditEventRefreshInvalid    = "refresh_invalid"
	auditEventLogout            = "logout"
	auditEventPasswordReset     = "password_reset"
	auditEventProfileUpdated    = "profile_updated"
)

// AuditErrorCode is the error label stored on failed audit events.
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrExpired            AuditErrorCode = "expired"
	auditErrAttemptsExhausted  AuditErrorCode = "attempts_exhausted"
	auditErrCodeMismatch       AuditErrorCode = "code_mismatch"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrConflict           AuditErrorCode = "conflict"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID string,
	phone string,
	purpose string,
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
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		Phone:      maskPhone(phone),
		Purpose:    purpose,
		IP:         clientIPFromContext(ctx),
		UserAgent:  userAgentFromContext(ctx),
		Success:    success,
		Metadata:   metadata,
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
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrAttemptsExhausted):
		return auditErrAttemptsExhausted
	case errors.Is(err, ErrCodeMismatch):
		return auditErrCodeMismatch
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrConflict):
		return auditErrConflict
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func maskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	return internal.MaskPhone(phone)
}

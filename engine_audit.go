package sessioncap

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/sessioncap/internal/audit"
)

const (
	auditEventLoginSuccess             = internalaudit.LoginSuccess
	auditEventLoginFailure             = internalaudit.LoginFailure
	auditEventLoginRateLimited         = "login_rate_limited"
	auditEventRefreshSuccess           = internalaudit.RefreshSuccess
	auditEventRefreshInvalid           = internalaudit.RefreshInvalid
	auditEventSessionEvicted           = internalaudit.SessionEvicted
	auditEventLogoutSession            = internalaudit.LogoutSession
	auditEventLogoutAll                = internalaudit.LogoutAll
	auditEventAccountCreationSuccess   = internalaudit.AccountCreationSuccess
	auditEventAccountCreationDuplicate = internalaudit.AccountCreationDuplicate
	auditEventAccountCreationFailure   = internalaudit.AccountCreationFailure
	auditEventAuthorizationDenied      = internalaudit.AuthorizationDenied
)

// AuditErrorCode is the stable reason string recorded on failed events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrExpiredToken       AuditErrorCode = "expired_token"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrPermissionDenied   AuditErrorCode = "permission_denied"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *internalaudit.Dispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID int64,
	sessionID string,
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

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Reason:    string(auditErrorCode(err)),
		Metadata:  metadata,
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrExpiredToken):
		return auditErrExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrStorage):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

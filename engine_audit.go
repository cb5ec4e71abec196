package authcore

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginLocked          = "login_locked"
	auditEventAccountLocked        = "account_locked"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
	auditEventCodeIssued           = "code_issued"
	auditEventCodeVerify           = "code_verify"
	auditEventTokenRefresh         = "token_refresh"
	auditEventTokenRevoked         = "token_revoked"
	auditEventAccountInvalidated   = "account_invalidated"
	auditEventIdentityResolved     = "identity_resolved"
	auditEventIdentityConflict     = "identity_conflict"
	auditEventAccountCreated       = "account_created"
	auditEventAccountDuplicate     = "account_creation_duplicate"
	auditEventPasswordChange       = "password_change"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordReset        = "password_reset"
	auditEventSocialUnbind         = "social_unbind"
	auditEventAccountStatusChange  = "account_status_change"
)

const auditReasonUnavailable = "backend_unavailable"

type auditEntry struct {
	eventType string
	success   bool
	accountID string
	subject   string
	provider  string
	reason    string
	metadata  func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, entry auditEntry) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if entry.metadata != nil {
		metadata = entry.metadata()
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: entry.eventType,
		AccountID: entry.accountID,
		Subject:   entry.subject,
		Provider:  entry.provider,
		IP:        clientIPFromContext(ctx),
		Success:   entry.success,
		Reason:    entry.reason,
		Metadata:  metadata,
	})
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, subject string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventRateLimitTriggered,
		subject:   subject,
		reason:    OutcomeRateLimited.String(),
		metadata: func() map[string]string {
			return map[string]string{"scope": scope}
		},
	})
}

// auditReason names err for audit records without leaking its text.
func auditReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInfrastructureUnavailable) {
		return auditReasonUnavailable
	}
	if o, ok := OutcomeOf(err); ok {
		return o.String()
	}
	return "internal_error"
}

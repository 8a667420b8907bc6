package boxumco

import "context"

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventMFARequired           = "mfa_required"
	auditEventMFASuccess            = "mfa_success"
	auditEventMFAFailure            = "mfa_failure"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshFailure        = "refresh_failure"
	auditEventRegistrationSuccess   = "registration_success"
	auditEventRegistrationFailure   = "registration_failure"
	auditEventVerificationEmailSent = "verification_email_sent"
	auditEventVerificationQueued    = "verification_email_queued"
	auditEventEmailConfirmed        = "email_confirmed"
	auditEventEmailConfirmFailure   = "email_confirm_failure"
	auditEventTOTPEnrollmentStarted = "totp_enrollment_started"
	auditEventTOTPEnabled           = "totp_enabled"
	auditEventTOTPFailure           = "totp_failure"
	auditEventTOTPDisabled          = "totp_disabled"
	auditEventPasswordChanged       = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventProfileUpdated        = "profile_updated"
	auditEventAccountDeleted        = "account_deleted"
)

// emitAudit is a no-op unless auditing is enabled. metadata is only built
// when an event will actually be dispatched.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	u auditSubject,
	err error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	origin := RequestOriginFrom(ctx)
	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		UserID:      u.userID,
		AccountType: u.accountType,
		IP:          origin.IP,
		UserAgent:   origin.UserAgent,
		Success:     success,
	}
	if u.userID == "" {
		event.Email = u.email
	}
	if err != nil {
		event.Error = ErrorCode(err)
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}

type auditSubject struct {
	userID      string
	accountType string
	email       string
}

func auditUser(u User) auditSubject {
	return auditSubject{userID: u.ID, accountType: u.AccountType().String()}
}

func auditID(userID string) auditSubject {
	return auditSubject{userID: userID}
}

func auditEmail(email string) auditSubject {
	return auditSubject{email: email}
}

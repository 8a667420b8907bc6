package boxumco

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const emailKindVerification = "email_verification"

// Register creates an inactive account and sends the verification email.
//
// The user row and its profile are created atomically by the store; a
// concurrent registration of the same email gets ErrDuplicateEmail. If the
// email cannot be sent the account still exists, the message goes to the
// retry queue and RegisterResult.VerificationQueued is set.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer e.metricObserve(MetricRegistrationLatency, start)

	email, err := validateEmail(req.Email)
	if err != nil {
		e.emitAudit(ctx, auditEventRegistrationFailure, false, auditEmail(req.Email), err, nil)
		return nil, err
	}
	if err := validateProfile(req.Profile); err != nil {
		e.emitAudit(ctx, auditEventRegistrationFailure, false, auditEmail(email), err, nil)
		return nil, err
	}
	if err := e.checkPasswordPolicy(req.Password, email); err != nil {
		e.emitAudit(ctx, auditEventRegistrationFailure, false, auditEmail(email), err, nil)
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := e.credentials.Create(ctx, NewUser{
		Email:        email,
		PasswordHash: hash,
		Active:       false,
		Profile:      req.Profile,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegistrationDuplicate)
			e.emitAudit(ctx, auditEventRegistrationFailure, false, auditEmail(email), ErrDuplicateEmail, nil)
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	result := &RegisterResult{
		UserID:      u.ID,
		AccountType: u.AccountType(),
	}
	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventRegistrationSuccess, true, auditUser(u), nil, nil)

	queued, err := e.sendVerification(ctx, u)
	if err != nil {
		return nil, err
	}
	result.VerificationQueued = queued
	return result, nil
}

// ConfirmEmail activates the account identified by uid if token is a valid
// verification token for it. Confirming an active account again succeeds.
func (e *Engine) ConfirmEmail(ctx context.Context, uid, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	resolved, err := e.verifications.Resolve(token)
	if err != nil {
		mapped := mapTokenError(err)
		e.metricInc(MetricEmailConfirmFailure)
		e.emitAudit(ctx, auditEventEmailConfirmFailure, false, auditID(uid), mapped, nil)
		return mapped
	}
	if resolved != uid {
		e.metricInc(MetricEmailConfirmFailure)
		e.emitAudit(ctx, auditEventEmailConfirmFailure, false, auditID(uid), ErrInvalidToken, func() map[string]string {
			return map[string]string{"reason": "uid_mismatch"}
		})
		return ErrInvalidToken
	}

	u, err := e.lookupByID(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if u.Active {
		return nil
	}
	if err := e.credentials.SetActive(ctx, u.ID, true); err != nil {
		return fmt.Errorf("activate user: %w", err)
	}

	e.metricInc(MetricEmailConfirmed)
	e.emitAudit(ctx, auditEventEmailConfirmed, true, auditUser(u), nil, nil)
	return nil
}

// RequestEmailVerification resends the verification email to an inactive
// account. It returns nil for unknown and already active emails so callers
// cannot discover which addresses are registered; only a malformed address is
// rejected, with ErrInvalidEmail.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email, err := validateEmail(email)
	if err != nil {
		return err
	}
	u, err := e.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if u.Active {
		return nil
	}
	_, err = e.sendVerification(ctx, u)
	return err
}

// ChangePassword replaces the password after checking the current one. The
// new password must satisfy the policy and differ from the current one.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}

	u, err := e.lookupByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(current, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		e.metricInc(MetricPasswordChangeWrongPassword)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, auditUser(u), ErrWrongPassword, nil)
		return ErrWrongPassword
	}
	if current == next {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, auditUser(u), ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}
	if err := e.checkPasswordPolicy(next, u.Email); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, auditUser(u), err, nil)
		return err
	}

	if err := e.setPassword(ctx, u.ID, next); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChanged, true, auditUser(u), nil, nil)
	return nil
}

// GetUser returns the account with its profile.
func (e *Engine) GetUser(ctx context.Context, userID string) (User, error) {
	if err := e.ready(); err != nil {
		return User{}, err
	}
	return e.lookupByID(ctx, userID)
}

// UpdateProfile replaces the profile. The variant must match the account
// type, which never changes after registration.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, profile Profile) (User, error) {
	if err := e.ready(); err != nil {
		return User{}, err
	}
	if err := validateProfile(profile); err != nil {
		return User{}, err
	}

	u, err := e.lookupByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if u.AccountType() != profile.AccountType() {
		return User{}, ErrAccountTypeMismatch
	}

	updated, err := e.credentials.UpdateProfile(ctx, u.ID, profile)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("update profile: %w", err)
	}

	e.metricInc(MetricProfileUpdated)
	e.emitAudit(ctx, auditEventProfileUpdated, true, auditUser(updated), nil, nil)
	return updated, nil
}

// DeleteAccount removes the user, its profile and its second-factor device.
// Outstanding tokens stay valid until they expire, but Refresh stops
// accepting them.
func (e *Engine) DeleteAccount(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	u, err := e.lookupByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.credentials.Delete(ctx, u.ID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, auditUser(u), nil, nil)
	return nil
}

// sendVerification mails a fresh verification link. A delivery failure is
// not returned: the message is handed to the retry queue and queued is true.
// If queueing fails too the message is dropped and logged.
func (e *Engine) sendVerification(ctx context.Context, u User) (queued bool, err error) {
	token, err := e.verifications.Sign(u.ID)
	if err != nil {
		return false, fmt.Errorf("sign verification token: %w", err)
	}

	msg := Email{
		Kind:    emailKindVerification,
		To:      u.Email,
		UserID:  u.ID,
		Subject: e.config.EmailVerification.Subject,
		Body:    verificationBody(u, e.verificationLink(u.ID, token)),
		Created: e.now().UTC(),
	}

	sendErr := e.mailer.Send(ctx, msg)
	if sendErr == nil {
		e.metricInc(MetricVerificationEmailSent)
		e.emitAudit(ctx, auditEventVerificationEmailSent, true, auditUser(u), nil, nil)
		return false, nil
	}

	e.logger.Warn("verification email send failed",
		zap.String("user_id", u.ID),
		zap.Error(sendErr),
	)
	if e.retryQueue == nil {
		e.logger.Error("verification email dropped: no retry queue", zap.String("user_id", u.ID))
		return false, nil
	}

	msg.Attempts = 1
	if err := e.retryQueue.Enqueue(ctx, msg); err != nil {
		e.logger.Error("verification email enqueue failed", zap.String("user_id", u.ID), zap.Error(err))
		return false, nil
	}

	e.metricInc(MetricVerificationEmailQueued)
	e.emitAudit(ctx, auditEventVerificationQueued, true, auditUser(u), nil, nil)
	return true, nil
}

func (e *Engine) verificationLink(uid, token string) string {
	q := url.Values{}
	q.Set("uid", uid)
	q.Set("token", token)

	base := e.config.EmailVerification.ConfirmURL
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

func verificationBody(u User, link string) string {
	name := ""
	if u.Profile != nil {
		name = strings.TrimSpace(u.Profile.ContactInfo().FirstName)
	}
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	b.WriteString("Thanks for signing up. Please confirm your email address by opening the link below:\n\n")
	b.WriteString(link)
	b.WriteString("\n\nIf you did not create an account you can ignore this message.\n")
	return b.String()
}

// setPassword hashes plaintext and persists it.
func (e *Engine) setPassword(ctx context.Context, userID, plaintext string) error {
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := e.credentials.UpdatePasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// checkPasswordPolicy enforces the minimum length, rejects entirely numeric
// passwords and rejects the local part of the account email.
func (e *Engine) checkPasswordPolicy(pw, email string) error {
	if len([]rune(pw)) < e.config.Password.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if isDigits(pw) {
		return fmt.Errorf("%w: must not be entirely numeric", ErrPasswordPolicy)
	}
	if local, _, ok := strings.Cut(email, "@"); ok && strings.EqualFold(pw, local) {
		return fmt.Errorf("%w: too similar to the email address", ErrPasswordPolicy)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail normalises email and requires a bare addr-spec.
func validateEmail(email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	if _, domain, _ := strings.Cut(email, "@"); !strings.Contains(domain, ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// validateProfile accepts the two value variants only.
func validateProfile(p Profile) error {
	switch v := p.(type) {
	case ClientProfile:
		return validateContact(v.Contact)
	case SupplierProfile:
		return validateSupplier(v)
	default:
		return ErrInvalidProfile
	}
}

func validateContact(c Contact) error {
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return fmt.Errorf("%w: first and last name are required", ErrInvalidProfile)
	}
	return nil
}

func validateSupplier(p SupplierProfile) error {
	if err := validateContact(p.Contact); err != nil {
		return err
	}
	if strings.TrimSpace(p.Company.Name) == "" {
		return fmt.Errorf("%w: company name is required", ErrInvalidProfile)
	}
	return nil
}

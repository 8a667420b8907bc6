package boxumco

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yellowatch/boxumco/internal/limiter"
	"go.uber.org/zap"
)

// Login runs the password leg of authentication.
//
// An unknown email and a wrong password both fail with ErrInvalidCredentials.
// An existing account whose email is not verified fails with
// ErrAccountInactive. When the user has a confirmed TOTP device, no session is
// issued: the result carries MFARequired and a challenge token that only
// CompleteMFA can redeem within Config.Challenge.TTL.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer e.metricObserve(MetricLoginLatency, start)

	email = normalizeEmail(email)
	ip := RequestOriginFrom(ctx).IP

	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, email, ip); err != nil {
			if errors.Is(err, limiter.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, auditEmail(email), ErrRateLimited, nil)
				return nil, ErrRateLimited
			}
			return nil, fmt.Errorf("login throttle: %w", err)
		}
	}

	u, err := e.credentials.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("find user: %w", err)
		}
		// Same hashing cost as a real account.
		_, _ = e.hasher.Verify(password, e.dummyHash)
		e.loginFailed(ctx, email, auditEmail(email), ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if !u.Active {
		e.metricInc(MetricLoginInactive)
		e.emitAudit(ctx, auditEventLoginFailure, false, auditUser(u), ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	ok, err := e.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		e.loginFailed(ctx, email, auditUser(u), ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	if e.limiter != nil {
		if err := e.limiter.ResetLogin(ctx, email); err != nil {
			e.logger.Warn("login throttle reset failed", zap.Error(err))
		}
	}
	e.maybeRehash(ctx, u, password)

	hasFactor, err := e.HasSecondFactor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if hasFactor {
		challenge, err := e.challenges.Sign(u.ID)
		if err != nil {
			return nil, fmt.Errorf("issue challenge: %w", err)
		}
		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventMFARequired, true, auditUser(u), nil, nil)
		return &LoginResult{
			UserID:         u.ID,
			AccountType:    u.AccountType(),
			MFARequired:    true,
			ChallengeToken: challenge,
		}, nil
	}

	tokens, err := e.issueSession(u)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, auditUser(u), nil, nil)
	return &LoginResult{
		UserID:      u.ID,
		AccountType: u.AccountType(),
		Tokens:      tokens,
	}, nil
}

// CompleteMFA redeems a challenge token from Login together with a TOTP code.
// An expired challenge fails with ErrExpired, a forged or malformed one with
// ErrInvalidToken, and a wrong code with ErrInvalidCode. None of these alter
// the device.
func (e *Engine) CompleteMFA(ctx context.Context, challengeToken, code string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	userID, err := e.challenges.Resolve(challengeToken)
	if err != nil {
		mapped := mapTokenError(err)
		if errors.Is(mapped, ErrExpired) {
			e.metricInc(MetricMFAChallengeExpired)
		}
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, auditSubject{}, mapped, nil)
		return nil, mapped
	}

	u, err := e.lookupByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.CheckMFA(ctx, u.ID); err != nil {
			if errors.Is(err, limiter.ErrRateLimited) {
				e.metricInc(MetricMFAFailure)
				return nil, ErrRateLimited
			}
			return nil, fmt.Errorf("mfa throttle: %w", err)
		}
	}

	ok, err := e.VerifySecondFactor(ctx, u.ID, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		if e.limiter != nil {
			if err := e.limiter.RecordMFAFailure(ctx, u.ID); err != nil {
				e.logger.Warn("mfa throttle update failed", zap.Error(err))
			}
		}
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, auditUser(u), ErrInvalidCode, nil)
		return nil, ErrInvalidCode
	}

	if e.limiter != nil {
		if err := e.limiter.ResetMFA(ctx, u.ID); err != nil {
			e.logger.Warn("mfa throttle reset failed", zap.Error(err))
		}
	}

	tokens, err := e.issueSession(u)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, auditUser(u), nil, nil)
	return &LoginResult{
		UserID:      u.ID,
		AccountType: u.AccountType(),
		Tokens:      tokens,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, email string, subject auditSubject, cause error) {
	if e.limiter != nil {
		if err := e.limiter.RecordLoginFailure(ctx, email, RequestOriginFrom(ctx).IP); err != nil {
			e.logger.Warn("login throttle update failed", zap.Error(err))
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, subject, cause, nil)
}

// maybeRehash upgrades a stored hash produced with weaker parameters. Failure
// is logged and does not affect the login.
func (e *Engine) maybeRehash(ctx context.Context, u User, password string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	if err := e.setPassword(ctx, u.ID, password); err != nil {
		e.logger.Warn("password rehash failed", zap.String("user_id", u.ID), zap.Error(err))
		return
	}
	e.metricInc(MetricPasswordRehashed)
}

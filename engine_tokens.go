package boxumco

import (
	"context"
	"errors"
	"fmt"
)

// Refresh exchanges a refresh token for a new access token. The refresh token
// itself is not rotated. The user is reloaded so that deleted or deactivated
// accounts stop receiving access tokens.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		mapped := mapTokenError(err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, auditSubject{}, mapped, nil)
		return nil, mapped
	}

	u, err := e.lookupByID(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, auditID(claims.UserID), ErrInvalidToken, nil)
		return nil, ErrInvalidToken
	}
	if !u.Active {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, auditUser(u), ErrInvalidToken, nil)
		return nil, ErrInvalidToken
	}

	access, exp, err := e.tokens.CreateAccess(subjectOf(u))
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, auditUser(u), nil, nil)
	return &RefreshResult{Access: access, AccessExpiresAt: exp}, nil
}

// ValidateAccess verifies an access token without touching storage.
func (e *Engine) ValidateAccess(_ context.Context, token string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, mapTokenError(err)
	}
	accountType, err := ParseAccountType(claims.AccountType)
	if err != nil {
		return nil, ErrInvalidToken
	}

	res := &AuthResult{
		UserID:      claims.UserID,
		AccountType: accountType,
		Email:       claims.Email,
		FirstName:   claims.FirstName,
		LastName:    claims.LastName,
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}
	return res, nil
}

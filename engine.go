package boxumco

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yellowatch/boxumco/internal/audit"
	"github.com/Yellowatch/boxumco/internal/limiter"
	"github.com/Yellowatch/boxumco/jwt"
	"github.com/Yellowatch/boxumco/signer"
	"go.uber.org/zap"
)

// Engine is the authentication core: login with an optional TOTP second
// factor, session token issue and refresh, registration with email
// verification, and account maintenance. It holds no per-user state of its
// own and is safe for concurrent use.
type Engine struct {
	config        Config
	credentials   CredentialStore
	devices       DeviceStore
	hasher        PasswordHasher
	dummyHash     string
	mailer        Mailer
	retryQueue    RetryQueue
	qr            QRRenderer
	tokens        *jwt.Manager
	challenges    *signer.Signer
	verifications *signer.Signer
	totp          *totpManager
	limiter       *limiter.Limiter
	audit         *audit.Dispatcher
	metrics       *Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
	_ = e.logger.Sync()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

func (e *Engine) ready() error {
	if e == nil || e.credentials == nil || e.devices == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

// issueSession mints a token pair for u.
func (e *Engine) issueSession(u User) (*SessionTokens, error) {
	pair, err := e.tokens.Issue(subjectOf(u))
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &SessionTokens{
		Access:           pair.Access,
		Refresh:          pair.Refresh,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

func subjectOf(u User) jwt.Subject {
	var contact Contact
	if u.Profile != nil {
		contact = u.Profile.ContactInfo()
	}
	return jwt.Subject{
		UserID:      u.ID,
		AccountType: u.AccountType().String(),
		Email:       u.Email,
		FirstName:   contact.FirstName,
		LastName:    contact.LastName,
	}
}

// mapTokenError folds codec errors into the public taxonomy.
func mapTokenError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, signer.ErrExpired), errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrInvalidToken
	}
}

// lookupByID loads a user and reports storage faults separately from absence.
func (e *Engine) lookupByID(ctx context.Context, userID string) (User, error) {
	u, err := e.credentials.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

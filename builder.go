package boxumco

import (
	"errors"
	"strings"
	"time"

	"github.com/Yellowatch/boxumco/internal/audit"
	"github.com/Yellowatch/boxumco/internal/limiter"
	"github.com/Yellowatch/boxumco/jwt"
	"github.com/Yellowatch/boxumco/password"
	"github.com/Yellowatch/boxumco/signer"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	purposeChallenge    = "mfa-challenge"
	purposeVerification = "email-verification"
)

// Builder assembles an Engine. A Builder is single use.
//
//	engine, err := boxumco.New().
//		WithConfig(cfg).
//		WithCredentialStore(store).
//		WithDeviceStore(store).
//		WithMailer(mailer).
//		Build()
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	devices     DeviceStore
	hasher      PasswordHasher
	mailer      Mailer
	retryQueue  RetryQueue
	qr          QRRenderer
	auditSink   AuditSink
	logger      *zap.Logger
	now         func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithCredentialStore sets the user store. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithDeviceStore sets the second-factor device store. Required.
func (b *Builder) WithDeviceStore(store DeviceStore) *Builder {
	b.devices = store
	return b
}

// WithPasswordHasher overrides the Argon2id hasher built from Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithMailer sets the verification email transport. Required.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithRetryQueue sets where undeliverable verification emails go.
func (b *Builder) WithRetryQueue(q RetryQueue) *Builder {
	b.retryQueue = q
	return b
}

// WithQRRenderer sets the enrollment QR image renderer.
func (b *Builder) WithQRRenderer(r QRRenderer) *Builder {
	b.qr = r
	return b
}

// WithRedis enables Redis-backed features (the login and MFA throttle).
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the audit destination; Config.Audit.Enabled must be true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source for tokens and TOTP.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.devices == nil {
		return nil, errors.New("device store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if cfg.Throttle.Enabled && b.redis == nil {
		return nil, errors.New("throttle requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:      cfg,
		credentials: b.credentials,
		devices:     b.devices,
		mailer:      b.mailer,
		retryQueue:  b.retryQueue,
		qr:          b.qr,
		logger:      logger.Named("boxumco"),
		now:         now,
		totp:        newTOTPManager(cfg.TOTP),
		metrics:     NewMetrics(cfg.Metrics),
		audit:       audit.NewDispatcher(audit.Config(cfg.Audit), b.auditSink),
	}

	if cfg.Throttle.Enabled {
		engine.limiter = limiter.New(b.redis, limiter.Config{
			Prefix:           cfg.Throttle.Prefix,
			EnableIPThrottle: cfg.Throttle.EnableIPThrottle,
			MaxLoginAttempts: cfg.Throttle.MaxLoginAttempts,
			LoginCooldown:    cfg.Throttle.LoginCooldown,
			MaxMFAAttempts:   cfg.Throttle.MaxMFAAttempts,
			MFACooldown:      cfg.Throttle.MFACooldown,
		})
	}

	engine.hasher = b.hasher
	if engine.hasher == nil {
		ph, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		engine.hasher = ph
	}
	dummy, err := engine.hasher.Hash("boxumco-unknown-account")
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = jm

	secret := cfg.challengeSecret()
	engine.challenges, err = signer.New(secret, purposeChallenge, cfg.Challenge.TTL, signer.WithClock(now))
	if err != nil {
		return nil, err
	}
	engine.verifications, err = signer.New(secret, purposeVerification, cfg.EmailVerification.TTL, signer.WithClock(now))
	if err != nil {
		return nil, err
	}

	b.built = true
	return engine, nil
}

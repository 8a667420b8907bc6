package boxumco

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds every engine setting. Build a value with DefaultConfig, adjust
// it, and pass it to Builder.WithConfig; the engine treats it as immutable.
type Config struct {
	JWT               JWTConfig
	Challenge         ChallengeConfig
	EmailVerification EmailVerificationConfig
	TOTP              TOTPConfig
	Password          PasswordConfig
	Throttle          ThrottleConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

/*
====================================
TOKENS
====================================
*/

// JWTConfig configures session tokens.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// ChallengeConfig configures the MFA challenge token issued between the
// password leg and the code leg of a login.
type ChallengeConfig struct {
	// Secret keys the challenge and verification signers. When empty and the
	// session tokens are HS256, the session secret is reused; each signer
	// derives its own purpose-bound key from it.
	Secret []byte
	TTL    time.Duration
}

// EmailVerificationConfig configures registration emails.
type EmailVerificationConfig struct {
	TTL time.Duration
	// ConfirmURL is the absolute URL of the confirm-email endpoint; uid and
	// token are appended as query parameters.
	ConfirmURL string
	// RedirectURL is where the confirm-email endpoint sends the browser.
	RedirectURL string
	Subject     string
}

// TOTPConfig configures second-factor codes.
type TOTPConfig struct {
	Issuer                  string
	Digits                  int
	Period                  int
	Algorithm               string
	Skew                    int
	EnforceReplayProtection bool
}

// PasswordConfig carries hashing cost and policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

// ThrottleConfig enables the optional Redis throttle on failed logins and
// failed MFA codes. It requires Builder.WithRedis.
type ThrottleConfig struct {
	Enabled          bool
	Prefix           string
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	MaxMFAAttempts   int
	MFACooldown      time.Duration
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. Keys are left empty and must be
// supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "boxumco",
			Leeway:        30 * time.Second,
		},
		Challenge: ChallengeConfig{
			TTL: 300 * time.Second,
		},
		EmailVerification: EmailVerificationConfig{
			TTL:         72 * time.Hour,
			ConfirmURL:  "http://localhost:8000/api/users/auth/registration/account-confirm-email",
			RedirectURL: "http://localhost:5173/login?email_confirmed=1",
			Subject:     "Please confirm your email address",
		},
		TOTP: TOTPConfig{
			Issuer:    "Boxum",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      9,
			UpgradeOnLogin: true,
		},
		Throttle: ThrottleConfig{
			Prefix:           "boxum:rl",
			MaxLoginAttempts: 5,
			LoginCooldown:    15 * time.Minute,
			MaxMFAAttempts:   5,
			MFACooldown:      15 * time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func (c *Config) challengeSecret() []byte {
	if len(c.Challenge.Secret) > 0 {
		return c.Challenge.Secret
	}
	if strings.EqualFold(c.JWT.SigningMethod, "hs256") {
		return c.JWT.PrivateKey
	}
	return nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt: access and refresh TTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("jwt: refresh TTL must be >= access TTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("jwt: leeway must be between 0 and 2m")
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("jwt: hs256 secret must be at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("jwt: ed25519 requires a private key")
		}
	default:
		return fmt.Errorf("jwt: unsupported signing method %q", c.JWT.SigningMethod)
	}

	if len(c.challengeSecret()) < 32 {
		return errors.New("challenge: secret must be at least 32 bytes")
	}
	if c.Challenge.TTL <= 0 {
		return errors.New("challenge: TTL must be > 0")
	}

	if c.EmailVerification.TTL <= 0 {
		return errors.New("email verification: TTL must be > 0")
	}
	if u, err := url.Parse(c.EmailVerification.ConfirmURL); err != nil || !u.IsAbs() || u.Host == "" {
		return errors.New("email verification: ConfirmURL must be an absolute URL")
	}

	if c.TOTP.Issuer == "" || strings.Contains(c.TOTP.Issuer, ":") {
		return errors.New("totp: issuer must be non-empty and must not contain ':'")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("totp: digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("totp: period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 3 {
		return errors.New("totp: skew must be between 0 and 3")
	}
	if _, ok := totpHashes[strings.ToUpper(c.TOTP.Algorithm)]; !ok && c.TOTP.Algorithm != "" {
		return fmt.Errorf("totp: unsupported algorithm %q", c.TOTP.Algorithm)
	}

	if c.Password.MinLength < 8 {
		return errors.New("password: min length must be >= 8")
	}

	if c.Throttle.Enabled && (c.Throttle.MaxLoginAttempts <= 0 || c.Throttle.MaxMFAAttempts <= 0) {
		return errors.New("throttle: attempt limits must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit: buffer size must be > 0")
	}

	return nil
}

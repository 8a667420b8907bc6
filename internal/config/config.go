// Package config loads process settings for the boxum binaries from the
// environment, after merging an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Yellowatch/boxumco"
	"github.com/Yellowatch/boxumco/mail"
	"github.com/Yellowatch/boxumco/media"
	"github.com/joho/godotenv"
)

const confirmPath = "/api/users/auth/registration/account-confirm-email"

// Config contains runtime configuration values.
type Config struct {
	Environment     string
	HTTPAddr        string
	ShutdownTimeout time.Duration

	StoreBackend string // "postgres" or "memory"
	DatabaseURL  string
	RedisURL     string

	JWTSecret            string
	JWTIssuer            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	ChallengeTTL         time.Duration
	VerificationTTL      time.Duration
	PublicBaseURL        string
	ConfirmRedirectURL   string
	TOTPIssuer           string
	TOTPReplayProtection bool
	ThrottleEnabled      bool
	AuditEnabled         bool
	LatencyHistograms    bool

	CORSAllowedOrigins []string

	MailBackend string // "log" or "smtp"
	SMTP        mail.SMTPConfig
	MailRetries int
	MailBackoff time.Duration

	// OTelMetricsExporter selects the meter provider the server installs:
	// "none" leaves the global no-op provider for an embedder to replace,
	// "stdout" exports periodically as JSON to stderr.
	OTelMetricsExporter string
	OTelMetricsInterval time.Duration

	S3 media.S3Config
}

// Load merges files (default ".env") into the environment, skipping missing
// ones, and reads the configuration.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv reads the configuration from environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		Environment:     getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8000"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),

		JWTSecret:            os.Getenv("JWT_SECRET"),
		JWTIssuer:            getEnv("JWT_ISSUER", "boxumco"),
		AccessTokenTTL:       getDuration("ACCESS_TOKEN_TTL", 5*time.Minute),
		RefreshTokenTTL:      getDuration("REFRESH_TOKEN_TTL", 24*time.Hour),
		ChallengeTTL:         getDuration("MFA_CHALLENGE_TTL", 300*time.Second),
		VerificationTTL:      getDuration("EMAIL_VERIFICATION_TTL", 72*time.Hour),
		PublicBaseURL:        strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8000"), "/"),
		ConfirmRedirectURL:   getEnv("CONFIRM_REDIRECT_URL", "http://localhost:5173/login?email_confirmed=1"),
		TOTPIssuer:           getEnv("TOTP_ISSUER", "Boxum"),
		TOTPReplayProtection: getBool("TOTP_REPLAY_PROTECTION", false),
		ThrottleEnabled:      getBool("THROTTLE_ENABLED", false),
		AuditEnabled:         getBool("AUDIT_ENABLED", true),
		LatencyHistograms:    getBool("METRICS_LATENCY_HISTOGRAMS", true),

		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		MailBackend: strings.ToLower(getEnv("MAIL_BACKEND", "log")),
		SMTP: mail.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("MAIL_FROM", "noreply@boxum.co"),
		},
		MailRetries: getInt("MAIL_MAX_ATTEMPTS", 5),
		MailBackoff: getDuration("MAIL_RETRY_BACKOFF", 30*time.Second),

		OTelMetricsExporter: strings.ToLower(getEnv("METRICS_EXPORTER", "none")),
		OTelMetricsInterval: getDuration("METRICS_EXPORT_INTERVAL", time.Minute),

		S3: media.S3Config{
			Region:          getEnv("S3_REGION", "eu-west-2"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			Bucket:          os.Getenv("S3_BUCKET"),
			UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
			MaxLogoBytes:    int64(getInt("S3_MAX_LOGO_BYTES", 2<<20)),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes")
	}
	switch c.StoreBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.MailBackend {
	case "log":
	case "smtp":
		if c.SMTP.Host == "" {
			return errors.New("SMTP_HOST is required for MAIL_BACKEND=smtp")
		}
	default:
		return fmt.Errorf("unknown MAIL_BACKEND %q", c.MailBackend)
	}
	switch c.OTelMetricsExporter {
	case "none":
	case "stdout":
		if c.OTelMetricsInterval <= 0 {
			return errors.New("METRICS_EXPORT_INTERVAL must be > 0")
		}
	default:
		return fmt.Errorf("unknown METRICS_EXPORTER %q", c.OTelMetricsExporter)
	}
	if c.ThrottleEnabled && c.RedisURL == "" {
		return errors.New("THROTTLE_ENABLED requires REDIS_URL")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// LogoUploadsEnabled reports whether an S3 bucket is configured.
func (c Config) LogoUploadsEnabled() bool {
	return c.S3.Bucket != ""
}

// EngineConfig maps the process settings onto the engine configuration.
func (c Config) EngineConfig() boxumco.Config {
	ec := boxumco.DefaultConfig()
	ec.JWT.PrivateKey = []byte(c.JWTSecret)
	ec.JWT.Issuer = c.JWTIssuer
	ec.JWT.AccessTTL = c.AccessTokenTTL
	ec.JWT.RefreshTTL = c.RefreshTokenTTL
	ec.Challenge.TTL = c.ChallengeTTL
	ec.EmailVerification.TTL = c.VerificationTTL
	ec.EmailVerification.ConfirmURL = c.PublicBaseURL + confirmPath
	ec.EmailVerification.RedirectURL = c.ConfirmRedirectURL
	ec.TOTP.Issuer = c.TOTPIssuer
	ec.TOTP.EnforceReplayProtection = c.TOTPReplayProtection
	ec.Throttle.Enabled = c.ThrottleEnabled
	ec.Audit.Enabled = c.AuditEnabled
	ec.Metrics.EnableLatencyHistograms = c.LatencyHistograms
	return ec
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		var cleaned []string
		for _, p := range strings.Split(v, ",") {
			if trimmed := strings.TrimRight(strings.TrimSpace(p), "/"); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}

package boxumco

import "time"

// SecurityReport summarises the security-relevant settings of a built
// engine. Servers log it at startup.
type SecurityReport struct {
	SigningAlgorithm        string
	KeyID                   string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	ChallengeTTL            time.Duration
	VerificationTTL         time.Duration
	Argon2                  PasswordConfigReport
	MinPasswordLength       int
	TOTPDigits              int
	TOTPSkew                int
	TOTPReplayProtection    bool
	ThrottleActive          bool
	AuditActive             bool
	VerificationRetryActive bool
	QRCodeActive            bool
}

// PasswordConfigReport mirrors the Argon2id cost parameters.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm: e.config.JWT.SigningMethod,
		KeyID:            e.config.JWT.KeyID,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		ChallengeTTL:     e.challenges.MaxAge(),
		VerificationTTL:  e.verifications.MaxAge(),
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		MinPasswordLength:       e.config.Password.MinLength,
		TOTPDigits:              e.config.TOTP.Digits,
		TOTPSkew:                e.config.TOTP.Skew,
		TOTPReplayProtection:    e.config.TOTP.EnforceReplayProtection,
		ThrottleActive:          e.limiter != nil,
		AuditActive:             e.audit != nil,
		VerificationRetryActive: e.retryQueue != nil,
		QRCodeActive:            e.qr != nil,
	}
}

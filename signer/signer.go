package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired is returned when a token is authentic but older than the signer's max age.
	ErrExpired = errors.New("signer: token expired")
	// ErrInvalid is returned for bad signatures, foreign purposes and malformed payloads.
	ErrInvalid = errors.New("signer: token invalid")
)

const keyNamespace = "boxumco/signer/"

// Option customises a Signer.
type Option func(*Signer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLeeway tolerates issued_at values slightly in the future.
func WithLeeway(d time.Duration) Option {
	return func(s *Signer) {
		s.leeway = d
	}
}

// Signer is a stateless codec for short-lived, purpose-bound user tokens.
type Signer struct {
	key     []byte
	purpose string
	maxAge  time.Duration
	leeway  time.Duration
	now     func() time.Time
}

type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// New returns a Signer for purpose. The signing key is derived from secret and
// purpose, so two signers sharing a secret never accept each other's tokens.
func New(secret []byte, purpose string, maxAge time.Duration, opts ...Option) (*Signer, error) {
	purpose = strings.TrimSpace(purpose)
	if len(secret) < 32 {
		return nil, errors.New("signer: secret must be at least 32 bytes")
	}
	if purpose == "" {
		return nil, errors.New("signer: purpose is required")
	}
	if maxAge <= 0 {
		return nil, errors.New("signer: max age must be > 0")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(keyNamespace + purpose))

	s := &Signer{
		key:     mac.Sum(nil),
		purpose: purpose,
		maxAge:  maxAge,
		leeway:  5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MaxAge returns the validity window, or zero for a nil Signer.
func (s *Signer) MaxAge() time.Duration {
	if s == nil {
		return 0
	}
	return s.maxAge
}

// Sign encodes {user_id, issued_at}.
func (s *Signer) Sign(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("signer: empty user id")
	}

	c := claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience: jwt.ClaimStrings{s.purpose},
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signer: sign: %w", err)
	}
	return token, nil
}

// Resolve verifies token and returns the user id it was issued for.
func (s *Signer) Resolve(token string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(s.purpose),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuedAt(),
	)

	var c claims
	parsed, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalid
	}
	if c.UserID == "" || c.IssuedAt == nil {
		return "", ErrInvalid
	}

	// iat has whole-second precision; compare at the same precision.
	if s.now().Truncate(time.Second).Sub(c.IssuedAt.Time) > s.maxAge {
		return "", ErrExpired
	}
	return c.UserID, nil
}

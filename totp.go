package boxumco

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// totpSecretBytes matches the 160-bit key length RFC 4226 recommends.
const totpSecretBytes = 20

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

type totpManager struct {
	config TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	return &totpManager{config: cfg}
}

func (m *totpManager) generateSecret() ([]byte, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("totp secret: %w", err)
	}
	return raw, nil
}

func encodeSecret(secret []byte) string {
	return base32NoPad.EncodeToString(secret)
}

// provisioningURI renders the Key URI Format understood by authenticator apps:
// otpauth://totp/Issuer:account?secret=...&issuer=...&algorithm=...&digits=...&period=...
func (m *totpManager) provisioningURI(secret []byte, account string) string {
	issuer := m.config.Issuer
	v := url.Values{}
	v.Set("secret", encodeSecret(secret))
	v.Set("issuer", issuer)
	v.Set("algorithm", strings.ToUpper(m.config.Algorithm))
	v.Set("digits", strconv.Itoa(m.config.Digits))
	v.Set("period", strconv.Itoa(m.config.Period))

	return "otpauth://totp/" + url.PathEscape(issuer+":"+account) + "?" + v.Encode()
}

// verify checks code against the time steps now-skew..now+skew and returns the
// matching counter.
func (m *totpManager) verify(secret []byte, code string, now time.Time) (bool, int64, error) {
	code = normalizeCode(code)
	if len(code) != m.config.Digits || !isDigits(code) {
		return false, 0, nil
	}
	if len(secret) == 0 {
		return false, 0, errors.New("empty totp secret")
	}

	base := now.Unix() / int64(m.config.Period)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		want, err := hotpCode(secret, counter, m.config.Digits, m.config.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

// TOTPCode computes the code an authenticator would show at t for a base32
// secret as returned in TOTPEnrollment.Secret.
func TOTPCode(secret string, cfg TOTPConfig, t time.Time) (string, error) {
	key, err := base32NoPad.DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil {
		return "", fmt.Errorf("totp secret: %w", err)
	}
	if cfg.Period <= 0 {
		return "", errors.New("totp period must be positive")
	}
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = "SHA1"
	}
	return hotpCode(key, t.Unix()/int64(cfg.Period), cfg.Digits, algorithm)
}

var totpHashes = map[string]func() hash.Hash{
	"SHA1":   sha1.New,
	"SHA256": sha256.New,
	"SHA512": sha512.New,
}

// hotpCode is RFC 4226 HOTP with dynamic truncation.
func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	if algorithm == "" {
		algorithm = "SHA1"
	}
	newHash, ok := totpHashes[strings.ToUpper(algorithm)]
	if !ok {
		return "", fmt.Errorf("unsupported totp algorithm %q", algorithm)
	}
	if digits < 1 || digits > 9 {
		return "", fmt.Errorf("totp digits %d out of range", digits)
	}

	mac := hmac.New(newHash, secret)
	_ = binary.Write(mac, binary.BigEndian, counter)
	sum := mac.Sum(nil)

	off := int(sum[len(sum)-1] & 0x0f)
	truncated := binary.BigEndian.Uint32(sum[off:]) &^ (1 << 31)
	code := strconv.FormatUint(uint64(truncated), 10)
	if len(code) > digits {
		code = code[len(code)-digits:]
	}
	return strings.Repeat("0", digits-len(code)) + code, nil
}

// normalizeCode drops the spaces and dashes users copy from authenticator apps.
func normalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(code))
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	require.NoError(t, err)
	return h
}

func cheap() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestDefaultHashRoundTrip(t *testing.T) {
	h := newHasher(t, DefaultConfig())

	encoded, err := h.Hash("pw12345678")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=3,p=2$"), encoded)

	ok, err := h.Verify("pw12345678", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("pw12345679", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := newHasher(t, cheap())
	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHashRejectsEmpty(t *testing.T) {
	_, err := newHasher(t, cheap()).Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newHasher(t, cheap())
	encoded, err := weak.Hash("test-password")
	require.NoError(t, err)

	up, err := newHasher(t, DefaultConfig()).NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.True(t, up, "stronger config upgrades weaker hash")

	up, err = weak.NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.False(t, up, "same config keeps hash")

	longer := cheap()
	longer.KeyLength = 64
	up, err = newHasher(t, longer).NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.True(t, up, "key length change upgrades")
}

func TestLegacyBcrypt(t *testing.T) {
	h := newHasher(t, cheap())
	legacy, err := bcrypt.GenerateFromPassword([]byte("imported-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := h.Verify("imported-pass", string(legacy))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("other-pass", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)

	up, err := h.NeedsUpgrade(string(legacy))
	require.NoError(t, err)
	assert.True(t, up)
}

func TestVerifyRejectsBadEncodings(t *testing.T) {
	h := newHasher(t, cheap())
	good, err := h.Hash("version-test")
	require.NoError(t, err)

	cases := map[string]struct {
		encoded string
		want    error
	}{
		"not phc":          {"not-a-phc-hash", ErrMalformedHash},
		"other algorithm":  {"$scrypt$v=1$m=1,t=1,p=1$c2FsdA$aGFzaA", ErrUnsupportedHash},
		"old version":      {strings.Replace(good, "$v=19$", "$v=18$", 1), ErrUnsupportedHash},
		"reordered params": {strings.Replace(good, "m=8192,t=1,p=1", "t=1,m=8192,p=1", 1), ErrMalformedHash},
		"trailing params":  {strings.Replace(good, "m=8192,t=1,p=1", "m=8192,t=1,p=1,x=2", 1), ErrMalformedHash},
		"weak memory":      {strings.Replace(good, "m=8192", "m=1024", 1), ErrMalformedHash},
		"short salt":       {"$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA", ErrMalformedHash},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.Verify("version-test", tc.encoded)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestVerifyAcceptsPaddedBase64(t *testing.T) {
	h := newHasher(t, cheap())
	encoded, err := h.Hash("padded-pass")
	require.NoError(t, err)

	fields := strings.Split(encoded, "$")
	// 16-byte salt and 32-byte key both need padding in standard base64.
	fields[4] += "=="
	fields[5] += "="
	ok, err := h.Verify("padded-pass", strings.Join(fields, "$"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
	} {
		cfg := cheap()
		mutate(&cfg)
		_, err := NewArgon2(cfg)
		assert.Errorf(t, err, name)
	}
}

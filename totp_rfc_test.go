package boxumco

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rfcSeed = []byte("12345678901234567890")

func totpWith(digits, skew int, algorithm string) *totpManager {
	return newTOTPManager(TOTPConfig{Issuer: "Boxum", Digits: digits, Period: 30, Algorithm: algorithm, Skew: skew})
}

// RFC 6238 appendix B. The seed is repeated to the hash block size.
func TestTOTPAppendixBVectors(t *testing.T) {
	times := []int64{59, 1111111109, 1111111111, 1234567890, 2000000000, 20000000000}
	vectors := map[string]struct {
		seedLen int
		codes   []string
	}{
		"SHA1":   {20, []string{"94287082", "07081804", "14050471", "89005924", "69279037", "65353130"}},
		"SHA256": {32, []string{"46119246", "68084774", "67062674", "91819424", "90698825", "77737706"}},
		"SHA512": {64, []string{"90693936", "25091201", "99943326", "93441116", "38618901", "47863826"}},
	}

	for alg, v := range vectors {
		t.Run(alg, func(t *testing.T) {
			seed := make([]byte, v.seedLen)
			for i := range seed {
				seed[i] = rfcSeed[i%len(rfcSeed)]
			}
			m := totpWith(8, 0, alg)
			for i, ts := range times {
				ok, counter, err := m.verify(seed, v.codes[i], time.Unix(ts, 0))
				require.NoError(t, err)
				assert.Truef(t, ok, "t=%d", ts)
				assert.Equal(t, ts/30, counter)
			}
		})
	}
}

func TestTOTPWindow(t *testing.T) {
	m := totpWith(6, 1, "SHA1")
	now := time.Unix(1234567890, 0)
	base := now.Unix() / 30

	at := func(step int64) string {
		c, err := hotpCode(rfcSeed, base+step, 6, "SHA1")
		require.NoError(t, err)
		return c
	}

	for _, step := range []int64{-1, 0, 1} {
		ok, counter, err := m.verify(rfcSeed, at(step), now)
		require.NoError(t, err)
		assert.Truef(t, ok, "step %d", step)
		assert.Equal(t, base+step, counter)
	}

	outside := at(2)
	for _, step := range []int64{-1, 0, 1} {
		if at(step) == outside {
			t.Skip("code collision inside window")
		}
	}
	ok, _, err := m.verify(rfcSeed, outside, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTOTPCodeFormatting(t *testing.T) {
	m := totpWith(6, 0, "SHA1")
	now := time.Unix(1234567890, 0)
	code, err := hotpCode(rfcSeed, now.Unix()/30, 6, "SHA1")
	require.NoError(t, err)

	for _, input := range []string{code, " " + code + " ", code[:3] + " " + code[3:], code[:3] + "-" + code[3:]} {
		ok, _, err := m.verify(rfcSeed, input, now)
		require.NoError(t, err)
		assert.Truef(t, ok, "%q", input)
	}
	for _, input := range []string{"", "abcdef", code[:5], code + "0", "12345678"} {
		ok, _, err := m.verify(rfcSeed, input, now)
		require.NoError(t, err)
		assert.Falsef(t, ok, "%q", input)
	}
}

func TestTOTPEmptySecretIsAnError(t *testing.T) {
	_, _, err := totpWith(6, 0, "SHA1").verify(nil, "123456", time.Now())
	assert.Error(t, err)
}

func TestProvisioningURIEscapesAccount(t *testing.T) {
	uri := totpWith(6, 0, "SHA1").provisioningURI(rfcSeed, "first last@x.com")
	assert.Equal(t,
		"otpauth://totp/Boxum:first%20last@x.com?algorithm=SHA1&digits=6&issuer=Boxum&period=30&secret=GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ",
		uri)
}

func TestTOTPCodeMatchesVerifier(t *testing.T) {
	cfg := TOTPConfig{Issuer: "Boxum", Digits: 6, Period: 30}
	now := time.Unix(1234567890, 0)

	code, err := TOTPCode(encodeSecret(rfcSeed), cfg, now)
	require.NoError(t, err)
	ok, _, err := newTOTPManager(cfg).verify(rfcSeed, code, now)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = TOTPCode("not base32!", cfg, now)
	assert.Error(t, err)
	_, err = TOTPCode(encodeSecret(rfcSeed), TOTPConfig{Digits: 6}, now)
	assert.Error(t, err)
}

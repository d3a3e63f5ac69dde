package authcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func totpTestConfig() TOTPConfig {
	return TOTPConfig{
		Issuer:          "Pennyledger",
		Period:          30,
		Digits:          6,
		Algorithm:       "SHA1",
		Window:          2,
		BackupCodeCount: 10,
	}
}

func TestTOTPVerifyWithinWindow(t *testing.T) {
	m := newTOTPManager(totpTestConfig())
	secret, _, err := m.GenerateSecret()
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for _, offset := range []int64{-2, -1, 0, 1, 2} {
		code, err := hotpCode(secret, now.Unix()/30+offset, 6, "SHA1")
		require.NoError(t, err)
		ok, _, err := m.VerifyCode(secret, code, now)
		require.NoError(t, err)
		assert.True(t, ok, "offset %d steps must verify", offset)
	}

	for _, offset := range []int64{-3, 3} {
		code, err := hotpCode(secret, now.Unix()/30+offset, 6, "SHA1")
		require.NoError(t, err)
		ok, _, err := m.VerifyCode(secret, code, now)
		require.NoError(t, err)
		assert.False(t, ok, "offset %d steps must not verify", offset)
	}
}

func TestTOTPRejectsMalformedCodes(t *testing.T) {
	m := newTOTPManager(totpTestConfig())
	secret, _, err := m.GenerateSecret()
	require.NoError(t, err)

	now := time.Now()
	for _, code := range []string{"", "12345", "1234567", "12a456", "······"} {
		ok, _, err := m.VerifyCode(secret, code, now)
		require.NoError(t, err)
		assert.False(t, ok, "code %q", code)
	}
}

func TestTOTPProvisionURI(t *testing.T) {
	m := newTOTPManager(totpTestConfig())
	_, secret, err := m.GenerateSecret()
	require.NoError(t, err)

	uri := m.ProvisionURI(secret, "alice@example.com")
	assert.Contains(t, uri, "otpauth://totp/Pennyledger:alice@example.com")
	assert.Contains(t, uri, "secret="+secret)
	assert.Contains(t, uri, "issuer=Pennyledger")
	assert.Contains(t, uri, "digits=6")
	assert.Contains(t, uri, "period=30")
}

// Appendix B test vector from RFC 4226 pins the HOTP truncation.
func TestHOTPReferenceVector(t *testing.T) {
	secret := []byte("12345678901234567890")
	want := []string{"755224", "287082", "359152", "969429", "338314"}
	for counter, expected := range want {
		code, err := hotpCode(secret, int64(counter), 6, "SHA1")
		require.NoError(t, err)
		assert.Equal(t, expected, code, "counter %d", counter)
	}
}

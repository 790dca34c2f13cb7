package twofactor

import (
	"net/url"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	en, err := Generate("doc@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, en.Secret)

	u, err := url.Parse(en.URL)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", u.Scheme)
	assert.Equal(t, "totp", u.Host)
	assert.Equal(t, Issuer, u.Query().Get("issuer"))
	assert.Equal(t, en.Secret, u.Query().Get("secret"))
}

func TestValidateAt(t *testing.T) {
	t.Parallel()

	en, err := Generate("nurse@example.com")
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code, err := totp.GenerateCode(en.Secret, now)
	require.NoError(t, err)

	assert.True(t, ValidateAt(code, en.Secret, now))
	assert.True(t, ValidateAt(" "+code+" ", en.Secret, now))
	assert.True(t, ValidateAt(code, en.Secret, now.Add(60*time.Second)), "within skew")
	assert.False(t, ValidateAt(code, en.Secret, now.Add(5*time.Minute)), "outside skew")
	assert.False(t, ValidateAt("", en.Secret, now))
	assert.False(t, ValidateAt(code, "", now))

	other, err := Generate("nurse@example.com")
	require.NoError(t, err)
	assert.False(t, ValidateAt(code, other.Secret, now))
}

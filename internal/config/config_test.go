package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSV(t *testing.T) {
	t.Parallel()

	assert.Nil(t, CSV(""))
	assert.Equal(t, []string{"a:9092", "b:9092"}, CSV(" a:9092, ,b:9092 "))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("HC_TEST_INT", "42")
	t.Setenv("HC_TEST_BAD_INT", "x")
	t.Setenv("HC_TEST_DUR", "90s")
	t.Setenv("HC_TEST_BOOL", "true")

	assert.Equal(t, 42, EnvIntDefault("HC_TEST_INT", 1))
	assert.Equal(t, 1, EnvIntDefault("HC_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, EnvDurationDefault("HC_TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, EnvDurationDefault("HC_TEST_MISSING", time.Minute))
	assert.True(t, EnvBool("HC_TEST_BOOL", false))
	assert.Equal(t, "def", EnvDefault("HC_TEST_MISSING", "def"))
}

func TestLoadPolicy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[lockout]
max_attempts = 3
lock_duration = "30m"

[otp]
login_ttl = "5m"
`), 0o600))

	p, err := LoadPolicy(path, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, 3, p.Lockout.MaxAttempts)
	assert.Equal(t, 30*time.Minute, p.Lockout.LockDuration.Duration)
	assert.Equal(t, 15*time.Minute, p.Lockout.Window.Duration)
	assert.Equal(t, 5*time.Minute, p.OTP.LoginTTL.Duration)
	assert.Equal(t, 15*time.Minute, p.OTP.ResetTTL.Duration)
}

func TestLoadPolicy_Rejects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"unknown key":   "[lockout]\nmax_tries = 3\n",
		"zero attempts": "[lockout]\nmax_attempts = 0\n",
		"bad duration":  "[otp]\nlogin_ttl = \"soon\"\n",
	}
	for name, body := range tests {
		path := filepath.Join(t.TempDir(), "policy.toml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := LoadPolicy(path, DefaultPolicy())
		assert.Error(t, err, name)
	}
}

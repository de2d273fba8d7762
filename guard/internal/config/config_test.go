package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahnavardnetwork/sos/guard/internal/ratelimit"
	"github.com/rahnavardnetwork/sos/guard/internal/requestguard"
)

const secrets = `
token:
  secret: test-token-secret
events:
  identity_salt: test-salt
  signing_key: test-signing-key
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, secrets))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, BackendMemory, cfg.Database.Type)

	policies := cfg.RateLimit.Policies()
	assert.Equal(t, ratelimit.DefaultPolicies(), policies)

	assert.Equal(t, 10, cfg.IPBlock.MaxFailedAttempts)
	assert.Equal(t, 24*time.Hour, cfg.IPBlock.BlockDuration)
	assert.Zero(t, cfg.IPBlock.PermanentBlockAfter)

	assert.Equal(t, time.Hour, cfg.Session.RotationInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.AbsoluteTimeout)
	assert.Equal(t, "HS512", cfg.Token.Algorithm)
	assert.Equal(t, "rahnavard-app", cfg.Token.Audience)

	assert.True(t, cfg.MFA.Enabled)
	assert.False(t, cfg.MFA.Required)
	assert.Equal(t, 6, cfg.MFA.CodeLength)
	assert.Equal(t, 5*time.Minute, cfg.MFA.Expiry)
	assert.Equal(t, time.Hour, cfg.CSRF.TokenTTL)

	assert.True(t, cfg.Guard.BlockOnDetection)
	assert.Equal(t, int64(1<<20), cfg.Guard.MaxBodyBytes)
	assert.Equal(t, requestguard.LocaleFA, cfg.Guard.Locale)
	assert.True(t, cfg.Threat.SQLInjection)
	assert.True(t, cfg.Threat.PathTraversal)

	assert.Equal(t, 10000, cfg.Events.Capacity)
	assert.Equal(t, 90*24*time.Hour, cfg.Events.Retention)
	assert.Equal(t, 5*time.Minute, cfg.Sweeps.MFA)
	assert.Equal(t, 30*time.Minute, cfg.Sweeps.CSRF)
	assert.Equal(t, 12, cfg.Validation.Password.MinLength)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, secrets+`
rate_limit:
  auth:
    quota: 3
guard:
  locale: en
`)
	t.Setenv("GUARD_STORE_BACKEND", "redis")
	t.Setenv("GUARD_IP_BLOCK_PERMANENT_BLOCK_AFTER", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.RateLimit.Auth.Quota)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Auth.Window)
	assert.Equal(t, requestguard.LocaleEN, cfg.Guard.Locale)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, 3, cfg.IPBlock.PermanentBlockAfter)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing secrets", "logging:\n  level: info\n", "token.secret is required"},
		{"zero quota", secrets + "rate_limit:\n  general:\n    quota: 0\n", "rate_limit.general.quota"},
		{"bad backend", secrets + "store:\n  backend: etcd\n", "store.backend"},
		{"rotation beyond timeout", secrets + "session:\n  rotation_interval: 200h\n", "rotation_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

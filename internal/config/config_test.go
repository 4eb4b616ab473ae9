package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"minilibrary/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "minilibrary", cfg.Auth.Issuer)
	assert.Equal(t, "minilibrary", cfg.Auth.Audience)
	assert.Equal(t, "user", cfg.Auth.User)
	assert.Equal(t, 10*time.Minute, cfg.Auth.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Telemetry.Metrics)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MINILIBRARY_LISTEN", ":8080")
	t.Setenv("MINILIBRARY_STORE_DRIVER", "MEMORY")
	t.Setenv("MINILIBRARY_AUTH_TTL", "90s")
	t.Setenv("MINILIBRARY_AUTH_LOGIN_BURST", "9")
	t.Setenv("MINILIBRARY_TELEMETRY_OTLP_ENDPOINT", "collector:4318")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 90*time.Second, cfg.Auth.TTL)
	assert.Equal(t, 9, cfg.Auth.LoginBurst)
	assert.Equal(t, "collector:4318", cfg.Telemetry.OTLPEndpoint)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minilibrary.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":7000"
store:
  driver: postgres
  dsn: postgres://library@localhost/library?sslmode=disable
log:
  format: json
`), 0o600))

	v := New()
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, ReadFile(New(), ""))
	assert.Error(t, ReadFile(New(), filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestValidateReportsEveryProblem(t *testing.T) {
	v := New()
	v.Set("store.driver", "mongodb")
	v.Set("auth.secret", "")
	v.Set("auth.ttl", "0s")
	v.Set("auth.password-hash", "pass")
	v.Set("log.format", "xml")

	_, err := Load(v)
	require.Error(t, err)
	for _, want := range []string{"store.driver", "auth.secret", "auth.ttl", "auth.password-hash", "log.format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestMemoryDriverNeedsNoDSN(t *testing.T) {
	v := New()
	v.Set("store.driver", "memory")
	v.Set("store.dsn", "")
	_, err := Load(v)
	assert.NoError(t, err)
}

func TestDefaultPasswordHashAcceptsStockPassword(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, DefaultPasswordHash, cfg.Auth.PasswordHash)

	ok, err := auth.VerifyPassword("pass", cfg.Auth.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPasswordHashFromEnv(t *testing.T) {
	hash, err := auth.HashPasswordWith("s3cret", auth.HashParams{Memory: 64, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32})
	require.NoError(t, err)
	t.Setenv("MINILIBRARY_AUTH_PASSWORD_HASH", hash)

	cfg, err := Load(New())
	require.NoError(t, err)
	ok, err := auth.VerifyPassword("s3cret", cfg.Auth.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

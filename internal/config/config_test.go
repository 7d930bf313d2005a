package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"COOKIE_HASH_KEY", "COOKIE_BLOCK_KEY", "CRED_ENC_KEY", "SCHED_POLL_SECONDS",
		"LIBSEAT_TIMEZONE", "RESERVE_MAX_ATTEMPTS", "RESERVE_MAX_UNCLASSIFIED", "REDIS_DB"} {
		t.Setenv(k, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, "Asia/Shanghai", cfg.Location.String())
	assert.Equal(t, 500, cfg.MaxAttempts)
	assert.Equal(t, 3, cfg.MaxUnclassified)
	assert.Error(t, cfg.RequireServer())
}

func TestFromEnv_ServerKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "cred.key")
	require.NoError(t, os.WriteFile(path, []byte(key(32)+"\n"), 0o600))

	t.Setenv("COOKIE_HASH_KEY", key(32))
	t.Setenv("COOKIE_BLOCK_KEY", key(32))
	t.Setenv("CRED_ENC_KEY", path)
	t.Setenv("RESERVE_MAX_ATTEMPTS", "20")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Len(t, cfg.CredEncKey, 32)
	assert.Equal(t, 20, cfg.MaxAttempts)
	assert.NoError(t, cfg.RequireServer())
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	cases := map[string]string{
		"SCHED_POLL_SECONDS":   "0",
		"LIBSEAT_TIMEZONE":     "Mars/Olympus",
		"RESERVE_MAX_ATTEMPTS": "many",
		"CRED_ENC_KEY":         "%%%",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LISTEN_ADDR=:9999\nREDIS_ADDR=localhost:6380\n"), 0o600))
	t.Chdir(dir)
	// t.Setenv restores the originals; godotenv only fills unset variables.
	for _, k := range []string{"LISTEN_ADDR", "REDIS_ADDR"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "localhost:6380", cfg.RedisAddr)
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestParseJSON(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"endpoint_addr_http":              "www.example:9000",
		"database_dsn":                    "notes.db",
		"secret_key":                      "my_secret_key",
		"access_token_validity_duration":  "1m",
		"refresh_token_validity_duration": "3m",
		"keystore_backend":                "s3",
		"keystore_dir":                    "/var/keys",
		"s3_bucket":                       "bucket",
		"rsa_key_bits":                    3072,
		"reaper_interval":                 "10s",
		"admin_key":                       "adm",
		"base_url":                        "https://n.example",
		"recovery_code_validity_duration": "5m",
	})

	t.Run("loads from json", func(t *testing.T) {
		cfg := &Config{}
		require.NoError(t, parseJSON(cfg, []string{"-config", path}))

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "notes.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 1*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 3*time.Minute, cfg.RefreshTokenValidityDuration)
		assert.Equal(t, "s3", cfg.KeyStoreBackend)
		assert.Equal(t, "/var/keys", cfg.KeyStoreDir)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, 3072, cfg.RSAKeyBits)
		assert.Equal(t, 10*time.Second, cfg.ReaperInterval)
		assert.Equal(t, "adm", cfg.AdminKey)
		assert.Equal(t, "https://n.example", cfg.BaseURL)
		assert.Equal(t, 5*time.Minute, cfg.RecoveryCodeValidityDuration)
	})

	t.Run("no config flag leaves values alone", func(t *testing.T) {
		cfg := &Config{SecretKey: "key", ReaperInterval: time.Hour}
		require.NoError(t, parseJSON(cfg, nil))
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, time.Hour, cfg.ReaperInterval)
	})

	t.Run("invalid json", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ not json`), 0o600))
		assert.Error(t, parseJSON(&Config{}, []string{"-c", bad}))
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, parseJSON(&Config{}, []string{"-c", "/does/not/exist.json"}))
	})
}

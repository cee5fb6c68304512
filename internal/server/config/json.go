package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/notekeeper/internal/flagx"
	"github.com/dmitrijs2005/notekeeper/internal/timex"
)

// JsonConfig mirrors Config for JSON decoding. Durations use timex.Duration so
// both "15m" and integer nanoseconds are accepted. Zero values leave the
// corresponding Config field untouched.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	KeyStoreBackend              string         `json:"keystore_backend"`
	KeyStoreDir                  string         `json:"keystore_dir"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	RSAKeyBits                   int            `json:"rsa_key_bits"`
	ReaperInterval               timex.Duration `json:"reaper_interval"`
	AdminKey                     string         `json:"admin_key"`
	BaseURL                      string         `json:"base_url"`
	RecoveryCodeValidityDuration timex.Duration `json:"recovery_code_validity_duration"`
	NotifyWebhookURL             string         `json:"notify_webhook_url"`
	LogLevel                     string         `json:"log_level"`
}

// parseJSON overlays values from the file named by -c/-config, if any.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.KeyStoreBackend, c.KeyStoreBackend)
	setString(&config.KeyStoreDir, c.KeyStoreDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.AdminKey, c.AdminKey)
	setString(&config.BaseURL, c.BaseURL)
	setString(&config.NotifyWebhookURL, c.NotifyWebhookURL)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.ReaperInterval.Duration > 0 {
		config.ReaperInterval = c.ReaperInterval.Duration
	}
	if c.RecoveryCodeValidityDuration.Duration > 0 {
		config.RecoveryCodeValidityDuration = c.RecoveryCodeValidityDuration.Duration
	}
	if c.RSAKeyBits > 0 {
		config.RSAKeyBits = c.RSAKeyBits
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

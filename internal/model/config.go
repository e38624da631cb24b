package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AccountConfig is the static, user-editable part of an account. Runtime
// state (policy key, sync cursors) lives in the store, not here.
type AccountConfig struct {
	Name string `mapstructure:"name" yaml:"name"`

	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// TLSMode is "system", "pinned", or "insecure".
	TLSMode string `mapstructure:"tls_mode" yaml:"tls_mode"`

	Username string `mapstructure:"username" yaml:"username"`

	// CredentialKey names the password entry in the system keyring.
	CredentialKey string `mapstructure:"credential_key" yaml:"credential_key"`

	// PinnedCertKey names the keyring entry holding the pinned server
	// certificate (PEM) when tls_mode is "pinned".
	PinnedCertKey string `mapstructure:"pinned_cert_key" yaml:"pinned_cert_key"`

	DeviceID   string `mapstructure:"device_id" yaml:"device_id"`
	DeviceType string `mapstructure:"device_type" yaml:"device_type"`

	// SyncMode is "push" or "scheduled".
	SyncMode     string `mapstructure:"sync_mode" yaml:"sync_mode"`
	HeartbeatSec int    `mapstructure:"heartbeat_sec" yaml:"heartbeat_sec"`
	IntervalSec  int    `mapstructure:"interval_sec" yaml:"interval_sec"`
}

// AppConfig is the top-level configuration.
type AppConfig struct {
	StorePath string          `mapstructure:"store_path" yaml:"store_path"`
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level"`
	Accounts  []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
}

// DefaultConfigPath returns ~/.config/easclient/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "easclient", "config.yaml")
}

// defaultStorePath returns ~/.local/share/easclient/cache.db.
func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "cache.db")
	}
	return filepath.Join(home, ".local", "share", "easclient", "cache.db")
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		StorePath: defaultStorePath(),
		LogLevel:  "info",
	}
}

// LoadConfig reads configuration from a YAML file using Viper. A missing
// file yields the defaults rather than an error.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("store_path", defaultStorePath())
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Accounts {
		a := &cfg.Accounts[i]
		if a.Port == 0 {
			a.Port = 443
		}
		if a.TLSMode == "" {
			a.TLSMode = string(TLSSystem)
		}
		if a.DeviceType == "" {
			a.DeviceType = "EasClient"
		}
		if a.SyncMode == "" {
			a.SyncMode = string(SyncModePush)
		}
		if a.HeartbeatSec == 0 {
			a.HeartbeatSec = 480
		}
		if a.IntervalSec == 0 {
			a.IntervalSec = 300
		}
	}

	return cfg, nil
}

// SaveConfig writes the configuration as YAML, creating parent
// directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("store_path", cfg.StorePath)
	v.Set("log_level", cfg.LogLevel)
	v.Set("accounts", cfg.Accounts)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

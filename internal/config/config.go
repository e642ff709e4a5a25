package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Ledger    LedgerConfig
	Alerts    AlertsConfig
	Retention RetentionConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string
}

// LedgerConfig holds mutation retry settings.
type LedgerConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// AlertsConfig holds budget alert settings.
type AlertsConfig struct {
	Cooldown time.Duration
}

// RetentionConfig holds audit log retention settings.
type RetentionConfig struct {
	AuditDays int `mapstructure:"audit_days"`
}

// Load reads configuration from file and env. Env var overrides use prefix BUDGETME_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "budgetme", "ledger.db"))
	v.SetDefault("server.addr", ":8085")
	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("ledger.retry_backoff", "25ms")
	v.SetDefault("alerts.cooldown", "1h")
	v.SetDefault("retention.audit_days", 30)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("BUDGETME_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "budgetme"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("BUDGETME")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

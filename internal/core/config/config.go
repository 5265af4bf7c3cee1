package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/devarena-lab/project-devarena/internal/core/reward"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config represents the top-level application config plus the resolved
// tier rate table.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Rewards      RewardsConfig      `koanf:"rewards"`
	Verification VerificationConfig `koanf:"verification"`
	Partner      PartnerConfig      `koanf:"partner"`
	Notify       NotifyConfig       `koanf:"notify"`

	// Rates is populated by Load after parsing rewards.tier_values.
	Rates reward.RateTable `koanf:"-"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// RewardsConfig carries the streak window and the tier→value table.
// Values are decimal strings so rates like "2.5" survive config round trips.
type RewardsConfig struct {
	WindowDays int               `koanf:"window_days"`
	TierValues map[string]string `koanf:"tier_values"`
}

// VerificationConfig bounds the external first-contribution double-check.
type VerificationConfig struct {
	Enabled bool   `koanf:"enabled"`
	BaseURL string `koanf:"base_url"`
	Timeout string `koanf:"timeout"`
}

// PartnerConfig points at the file-per-partner rate rule directory.
type PartnerConfig struct {
	RulesDir string `koanf:"rules_dir"`
}

type NotifyConfig struct {
	Timeout string `koanf:"timeout"`
}

func (v VerificationConfig) EffectiveTimeout() time.Duration {
	d, err := time.ParseDuration(v.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

func (n NotifyConfig) EffectiveTimeout() time.Duration {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if c.Rewards.WindowDays <= 0 {
		return fmt.Errorf("rewards.window_days must be > 0")
	}

	if c.Verification.Timeout != "" {
		if _, err := time.ParseDuration(c.Verification.Timeout); err != nil {
			return fmt.Errorf("invalid verification.timeout %q: %w", c.Verification.Timeout, err)
		}
	}
	if c.Verification.Enabled && strings.TrimSpace(c.Verification.BaseURL) == "" {
		return fmt.Errorf("verification.base_url is required when verification is enabled")
	}

	if c.Notify.Timeout != "" {
		if _, err := time.ParseDuration(c.Notify.Timeout); err != nil {
			return fmt.Errorf("invalid notify.timeout %q: %w", c.Notify.Timeout, err)
		}
	}

	return nil
}

// rateTable parses rewards.tier_values into the injected rate table.
func (c *Config) rateTable() (reward.RateTable, error) {
	values := make(map[reward.Tier]decimal.Decimal, len(c.Rewards.TierValues))
	for tier, raw := range c.Rewards.TierValues {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return reward.RateTable{}, fmt.Errorf("invalid rewards.tier_values.%s %q: %w", tier, raw, err)
		}
		if v.IsNegative() {
			return reward.RateTable{}, fmt.Errorf("rewards.tier_values.%s must not be negative", tier)
		}
		values[reward.Tier(tier)] = v
	}
	return reward.NewRateTable(values)
}

// Load parses config from file + env, validates it, then resolves the tier
// rate table.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.max_body_size_mb": 1,
		"server.mode":             "release",
		"database.dsn":            "",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,
		"rewards.window_days":     reward.DefaultWindowDays,
		"rewards.tier_values": map[string]string{
			string(reward.TierFirstPR):             "10",
			string(reward.TierThirdPRInStreak):     "5",
			string(reward.TierRegularPR):           "3",
			string(reward.TierRegularPRUnreviewed): "1",
		},
		"verification.enabled":  true,
		"verification.base_url": "https://api.github.com",
		"verification.timeout":  "5s",
		"partner.rules_dir":     "./config/partners",
		"notify.timeout":        "3s",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("DEVARENA_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "DEVARENA_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rates, err := cfg.rateTable()
	if err != nil {
		return nil, err
	}
	cfg.Rates = rates

	return &cfg, nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime settings. Every key can be set from the environment
// under the upper-case name, e.g. DATABASE_PATH.
type Config struct {
	Port                     string
	DatabasePath             string
	TelegramBotToken         string
	AdminTelegramID          int64
	WebAppURL                string
	LogFile                  string
	LogMaxSizeMB             int
	LogMaxBackups            int
	ArenaID                  string
	PenaltyRatio             int64
	WithdrawTimeout          time.Duration
	WithdrawMaxResponseBytes int64
	PayoutWebhookURL         string
	WelcomeBonus             int64
	ExpiryScanInterval       time.Duration
	Running                  bool
	TerminalGameCacheSize    int
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_path", "/app/data/rps.db")
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("admin_telegram_id", 0)
	v.SetDefault("web_app_url", "")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 50)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("arena_id", "rpsledger")
	v.SetDefault("penalty_ratio", 2)
	v.SetDefault("withdraw_timeout", "2s")
	v.SetDefault("withdraw_max_response_bytes", 4096)
	v.SetDefault("payout_webhook_url", "")
	v.SetDefault("welcome_bonus", 0)
	v.SetDefault("expiry_scan_interval", "1m")
	v.SetDefault("running", true)
	v.SetDefault("terminal_game_cache_size", 256)
}

// New returns a viper instance with defaults and environment binding set up
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v and builds a validated Config
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Port:                     v.GetString("port"),
		DatabasePath:             v.GetString("database_path"),
		TelegramBotToken:         v.GetString("telegram_bot_token"),
		AdminTelegramID:          v.GetInt64("admin_telegram_id"),
		WebAppURL:                v.GetString("web_app_url"),
		LogFile:                  v.GetString("log_file"),
		LogMaxSizeMB:             v.GetInt("log_max_size_mb"),
		LogMaxBackups:            v.GetInt("log_max_backups"),
		ArenaID:                  v.GetString("arena_id"),
		PenaltyRatio:             v.GetInt64("penalty_ratio"),
		WithdrawTimeout:          v.GetDuration("withdraw_timeout"),
		WithdrawMaxResponseBytes: v.GetInt64("withdraw_max_response_bytes"),
		PayoutWebhookURL:         v.GetString("payout_webhook_url"),
		WelcomeBonus:             v.GetInt64("welcome_bonus"),
		ExpiryScanInterval:       v.GetDuration("expiry_scan_interval"),
		Running:                  v.GetBool("running"),
		TerminalGameCacheSize:    v.GetInt("terminal_game_cache_size"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	if c.PenaltyRatio < 1 {
		return fmt.Errorf("penalty_ratio must be at least 1, got %d", c.PenaltyRatio)
	}
	if c.WithdrawTimeout <= 0 {
		return fmt.Errorf("withdraw_timeout must be positive, got %s", c.WithdrawTimeout)
	}
	if c.WithdrawMaxResponseBytes <= 0 {
		return fmt.Errorf("withdraw_max_response_bytes must be positive, got %d", c.WithdrawMaxResponseBytes)
	}
	if c.ArenaID == "" {
		return fmt.Errorf("arena_id can't be empty")
	}
	if c.WelcomeBonus < 0 {
		return fmt.Errorf("welcome_bonus can't be negative, got %d", c.WelcomeBonus)
	}
	if c.ExpiryScanInterval <= 0 {
		return fmt.Errorf("expiry_scan_interval must be positive, got %s", c.ExpiryScanInterval)
	}
	if c.TerminalGameCacheSize < 1 {
		return fmt.Errorf("terminal_game_cache_size must be at least 1, got %d", c.TerminalGameCacheSize)
	}
	return nil
}

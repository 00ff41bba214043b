package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string         `mapstructure:"app_env"`
	Bot      BotConfig      `mapstructure:"bot"`
	Database DatabaseConfig `mapstructure:"database"`
	API      APIConfig      `mapstructure:"api"`
}

type BotConfig struct {
	Token string `mapstructure:"token"`
	// Default number of history days shown on a timesheet. Capped at 31.
	HistoryDays int `mapstructure:"history_days"`
	// Minimum seconds between punches from the same member.
	PunchCooldown int `mapstructure:"punch_cooldown"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	// DSN is the sqlite file path or the postgres connection string.
	DSN string `mapstructure:"dsn"`
}

type APIConfig struct {
	Port int `mapstructure:"port"`
}

// Load reads config.yaml (optional) and the environment. Every key is
// overridable via TIMECLOCK_* variables, e.g. TIMECLOCK_BOT_TOKEN.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("timeclock")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_env", "development")
	v.SetDefault("bot.history_days", 7)
	v.SetDefault("bot.punch_cooldown", 3)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/timeclock.db")
	v.SetDefault("api.port", 8080)

	if err := v.ReadInConfig(); err != nil {
		// A config file is optional; only a malformed one is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind explicitly so env vars work without a config file present.
	for _, key := range []string{
		"app_env",
		"bot.token", "bot.history_days", "bot.punch_cooldown",
		"database.driver", "database.dsn",
		"api.port",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Bot.HistoryDays > 31 {
		cfg.Bot.HistoryDays = 31
	}

	return &cfg, nil
}

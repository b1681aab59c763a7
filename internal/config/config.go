package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the full server configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	DataDir     string `mapstructure:"data_dir"`
	Store       string `mapstructure:"store"`
}

// AuthConfig configures registry authentication. When disabled, every
// request runs as the anonymous identity and all scopes are granted.
type AuthConfig struct {
	Enabled bool                  `mapstructure:"enabled"`
	Realm   string                `mapstructure:"realm"`
	Users   map[string]UserConfig `mapstructure:"users"`
}

// UserConfig is a single static credential with its granted actions.
// Actions are scope actions: pull, push, overwrite-tag, base, catalog,
// or "*" for all of them.
type UserConfig struct {
	Password string   `mapstructure:"password"`
	Actions  []string `mapstructure:"actions"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var validStores = []string{"filesystem", "memory", "starskey"}

// Load reads configuration from viper (config file plus environment).
func Load() (*Config, error) {
	var cfg Config

	viper.SetDefault("server.addr", ":5000")
	viper.SetDefault("server.metrics_addr", "")
	viper.SetDefault("server.store", "filesystem")
	viper.SetDefault("server.data_dir", defaultDataDir())
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.realm", "Stevedore Registry")
	viper.SetDefault("log.level", "info")

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.Server.DataDir == "" {
		cfg.Server.DataDir = defaultDataDir()
		log.Debug().Str("data_dir", cfg.Server.DataDir).Msg("Config had empty data_dir, using default")
	}

	isValid := false
	for _, valid := range validStores {
		if cfg.Server.Store == valid {
			isValid = true
			break
		}
	}
	if !isValid {
		return nil, fmt.Errorf("server.store must be one of: %s", strings.Join(validStores, ", "))
	}

	if cfg.Auth.Enabled && len(cfg.Auth.Users) == 0 {
		return nil, fmt.Errorf("auth.enabled is set but no auth.users are configured")
	}

	return &cfg, nil
}

// SetupLogging applies the configured log level to the global logger.
func SetupLogging(cfg *Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func defaultDataDir() string {
	if os.Geteuid() == 0 {
		return "/var/lib/stevedore"
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "stevedore")
	}
	return "./data"
}

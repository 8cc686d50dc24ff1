package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds the admin client configuration.
type Config struct {
	// ServerURL is the base URL of the PTT platform API.
	ServerURL string `mapstructure:"server_url"`
	// Home is the directory where the client stores local state
	// (credentials, client id).
	Home string `mapstructure:"home"`
	// LogLevel is the zerolog level name (trace|debug|info|warn|error).
	LogLevel string `mapstructure:"log_level"`
	// Debug enables verbose logging regardless of LogLevel.
	Debug bool `mapstructure:"debug"`
}

// Load loads configuration from defaults, an optional config.yaml in the
// home directory, and PTTADMIN_* environment variables. The home
// directory is created if it does not exist.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("PTTADMIN")
	v.AutomaticEnv()

	v.SetDefault("server_url", "http://localhost:5000")
	v.SetDefault("home", filepath.Join(homeDir, ".pttadmin"))
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)

	// Env vars bind to the underscored keys.
	for _, key := range []string{"server_url", "home", "log_level", "debug"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	home := v.GetString("home")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(home)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := os.MkdirAll(cfg.Home, 0700); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}

	return &cfg, nil
}

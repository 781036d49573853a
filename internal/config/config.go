// Package config loads application configuration from a TOML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	State StateConfig
	API   APIConfig
	Log   LogConfig
}

// StateConfig holds where tracker data lives on disk.
type StateConfig struct {
	Path     string `mapstructure:"path"`
	CacheDir string `mapstructure:"cache_dir"`
}

// APIConfig holds remote API settings.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// LogConfig holds log output settings.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// Load reads configuration from file and env. Env var overrides use
// prefix GW2GAINS_. On first run the default config file is written so
// the knobs are discoverable; a failure to write it is not fatal.
func Load() (Config, error) {
	v := viper.New()

	home := os.Getenv("HOME")
	dataDir := filepath.Join(home, ".local", "share", "gw2gains")

	// default values
	v.SetDefault("state.path", filepath.Join(dataDir, "state.json"))
	v.SetDefault("state.cache_dir", filepath.Join(home, ".cache", "gw2gains", "icons"))
	v.SetDefault("api.base_url", "https://api.guildwars2.com/v2")
	v.SetDefault("log.path", filepath.Join(dataDir, "gw2gains.log"))
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("GW2GAINS_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "gw2gains"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("GW2GAINS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if missing {
		_ = Save(c)
	}
	return c, nil
}

// Save writes the config to disk, creating the config directory if
// needed. GW2GAINS_CONFIG selects the destination, as it does for Load.
func Save(cfg Config) error {
	path := os.Getenv("GW2GAINS_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "gw2gains", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("state.path", cfg.State.Path)
	v.Set("state.cache_dir", cfg.State.CacheDir)
	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("log.path", cfg.Log.Path)
	v.Set("log.level", cfg.Log.Level)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

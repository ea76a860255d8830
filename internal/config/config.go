package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Store    StoreConfig    `toml:"store"`
	Debounce DebounceConfig `toml:"debounce"`
	Log      LogConfig      `toml:"log"`
}

type StoreConfig struct {
	Path string `toml:"path"`
	// EntryCapacity is the advertised entry budget of the settings
	// partition; Stats() reports free entries against it.
	EntryCapacity int `toml:"entry_capacity"`
}

type DebounceConfig struct {
	// WindowMs is the quiet period after the last parameter change
	// before a dirty record is flushed to flash.
	WindowMs int `toml:"window_ms"`
	// FlushIntervalMs is the housekeeping cadence at which dirty
	// records are scanned for flushing.
	FlushIntervalMs int `toml:"flush_interval_ms"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Store: StoreConfig{
			Path:          "~/.lumen/settings.db",
			EntryCapacity: 1024,
		},
		Debounce: DebounceConfig{
			WindowMs:        3000,
			FlushIntervalMs: 500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads a TOML config file and returns the parsed Config.
// If path is empty, the default location is tried; if that does not
// exist either, only defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = expandHome("~/.lumen/config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Store.EntryCapacity <= 0 {
		return fmt.Errorf("store.entry_capacity must be positive, got %d", c.Store.EntryCapacity)
	}
	if c.Debounce.WindowMs <= 0 {
		return fmt.Errorf("debounce.window_ms must be positive, got %d", c.Debounce.WindowMs)
	}
	if c.Debounce.FlushIntervalMs <= 0 {
		return fmt.Errorf("debounce.flush_interval_ms must be positive, got %d", c.Debounce.FlushIntervalMs)
	}
	return nil
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Package config resolves client configuration from defaults, an optional
// YAML file, a .env file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ClientConfig holds configuration shared by the luna CLI and web front end.
type ClientConfig struct {
	ServerURL      string        `yaml:"server"`          // backend base URL, including the /api prefix
	PollInterval   time.Duration `yaml:"poll_interval"`   // negative disables polling
	RequestTimeout time.Duration `yaml:"request_timeout"` // per HTTP request
	SessionTTL     time.Duration `yaml:"session_ttl"`     // lifetime of a persisted session
	DBPath         string        `yaml:"db"`              // sqlite path (default ~/.luna/luna.db, ":memory:" for testing)
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	WebAddr        string        `yaml:"web_addr"`
	SecureCookies  bool          `yaml:"secure_cookies"`

	// SyncFriendRemovals sends deny/remove to the backend. When false the
	// entry is only dropped from the local cache until the next refresh.
	SyncFriendRemovals bool `yaml:"sync_friend_removals"`

	// Coordinates attached to outgoing alerts until real geolocation exists.
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL:      "http://localhost:5000/api",
		PollInterval:   5 * time.Second,
		RequestTimeout: 10 * time.Second,
		SessionTTL:     7 * 24 * time.Hour,
		LogLevel:       "info",
		LogFormat:      "text",
		WebAddr:        ":3000",
		Latitude:       40.7128,
		Longitude:      -74.0060,

		SyncFriendRemovals: true,
	}
}

// Dir returns ~/.luna.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".luna"), nil
}

// DefaultConfigPath returns ~/.luna/config.yaml.
func DefaultConfigPath() string {
	dir, err := Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load builds a ClientConfig. An explicit path must exist; when path is
// empty the default config file is read only if present.
func Load(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return cfg, err
			}
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *ClientConfig) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *ClientConfig) applyEnv() error {
	if v := os.Getenv("LUNA_SERVER"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("LUNA_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("LUNA_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LUNA_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("LUNA_WEB_ADDR"); v != "" {
		c.WebAddr = v
	}
	if v := os.Getenv("LUNA_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LUNA_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv("LUNA_SYNC_FRIEND_REMOVALS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LUNA_SYNC_FRIEND_REMOVALS: %w", err)
		}
		c.SyncFriendRemovals = b
	}
	return nil
}

// ResolveDBPath returns DBPath, defaulting to ~/.luna/luna.db and creating
// its directory.
func (c ClientConfig) ResolveDBPath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return filepath.Join(dir, "luna.db"), nil
}

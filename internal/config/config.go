// Package config handles the XDG configuration directory, the optional
// config.yaml file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppName is the application directory name.
	AppName = "todo"

	// ConfigFile is the optional settings filename inside the config directory.
	ConfigFile = "config.yaml"

	// TokenFile is the stored session token filename.
	TokenFile = "token.json"

	// GoogleClientFile is the OAuth client credentials filename for Google Tasks export.
	GoogleClientFile = "google_client.json"

	// GoogleTokenFile is the stored Google OAuth token filename.
	GoogleTokenFile = "google_token.json"

	// DefaultAPIURL is the remote store used when nothing else is configured.
	DefaultAPIURL = "http://localhost:7860"

	// SessionBackendFile keeps the token in TokenFile.
	SessionBackendFile = "file"

	// SessionBackendRedis keeps the token in Redis.
	SessionBackendRedis = "redis"
)

// Settings holds the values that may come from config.yaml or the environment.
type Settings struct {
	APIURL         string        `yaml:"api_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBase      time.Duration `yaml:"retry_base"`
	SessionBackend string        `yaml:"session_backend"`
	RedisURL       string        `yaml:"redis_url"`
}

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	Settings
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		APIURL:         DefaultAPIURL,
		RequestTimeout: 15 * time.Second,
		MaxRetries:     3,
		RetryBase:      time.Second,
		SessionBackend: SessionBackendFile,
	}
}

// New creates a Config for the default or specified config directory.
// If configDir is empty, uses XDG_CONFIG_HOME/todo or $HOME/.config/todo.
// Settings are layered: defaults, then config.yaml (if present), then environment.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	cfg := &Config{Dir: dir, Settings: DefaultSettings()}

	if err := cfg.loadFile(); err != nil {
		return nil, err
	}
	if err := cfg.Settings.overrideFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Settings.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

func (c *Config) loadFile() error {
	f, err := os.Open(c.FilePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", ConfigFile, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&c.Settings); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid %s: %w", ConfigFile, err)
	}
	return nil
}

func (s *Settings) overrideFromEnv() error {
	if v := os.Getenv("TODO_API_URL"); v != "" {
		s.APIURL = v
	}
	if v := os.Getenv("TODO_SESSION_BACKEND"); v != "" {
		s.SessionBackend = v
	}
	if v := os.Getenv("TODO_REDIS_URL"); v != "" {
		s.RedisURL = v
	}
	if v := os.Getenv("TODO_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TODO_REQUEST_TIMEOUT: %w", err)
		}
		s.RequestTimeout = d
	}
	if v := os.Getenv("TODO_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TODO_MAX_RETRIES: %w", err)
		}
		s.MaxRetries = n
	}
	if v := os.Getenv("TODO_RETRY_BASE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TODO_RETRY_BASE: %w", err)
		}
		s.RetryBase = d
	}
	return nil
}

func (s *Settings) validate() error {
	if s.APIURL == "" {
		return errors.New("api_url must not be empty")
	}
	if s.RequestTimeout <= 0 {
		return errors.New("request_timeout must be greater than zero")
	}
	if s.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}
	if s.RetryBase < 0 {
		return errors.New("retry_base must not be negative")
	}
	switch s.SessionBackend {
	case SessionBackendFile:
	case SessionBackendRedis:
		if s.RedisURL == "" {
			return errors.New("redis_url is required for the redis session backend")
		}
	default:
		return fmt.Errorf("unknown session_backend: %s", s.SessionBackend)
	}
	return nil
}

// FilePath returns the path to config.yaml.
func (c *Config) FilePath() string {
	return filepath.Join(c.Dir, ConfigFile)
}

// TokenPath returns the path to the stored session token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// GoogleClientPath returns the path to the Google OAuth client credentials file.
func (c *Config) GoogleClientPath() string {
	return filepath.Join(c.Dir, GoogleClientFile)
}

// GoogleTokenPath returns the path to the stored Google OAuth token file.
func (c *Config) GoogleTokenPath() string {
	return filepath.Join(c.Dir, GoogleTokenFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasGoogleClient checks if the Google OAuth client credentials file exists.
func (c *Config) HasGoogleClient() bool {
	_, err := os.Stat(c.GoogleClientPath())
	return err == nil
}

// HasGoogleToken checks if the Google token file exists.
func (c *Config) HasGoogleToken() bool {
	_, err := os.Stat(c.GoogleTokenPath())
	return err == nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvDB            = "GASTMETING_DB"
	EnvStorageEngine = "GASTMETING_STORAGE_ENGINE"
	EnvBackend       = "GASTMETING_BACKEND"
	EnvRemoteURL     = "GASTMETING_REMOTE_URL"
	EnvSigningKey    = "GASTMETING_SIGNING_KEY"
	EnvLogLevel      = "GASTMETING_LOG_LEVEL"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(path string) (*Config, error)

	// Path returns the file Load reads, or "" when none exists.
	Path() string
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, searches for config file in:
// 1. ./gastmeting.yaml (current directory)
// 2. ~/.config/gastmeting/config.yaml.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Path implements Loader.Path.
func (l *loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	return l.findConfigFile()
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg := Default()

	configPath := l.Path()
	if configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// An explicit path must load; a discovered one may be stale.
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		} else {
			cfg = l.mergeConfigs(cfg, fileCfg)
		}
	}

	cfg = l.applyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// findConfigFile searches for a config file in standard locations.
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./gastmeting.yaml",
		DefaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// mergeConfigs merges file configuration into default configuration.
//
// File values override defaults, but only if they are non-zero.
func (l *loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	// Kiosk
	setString(&result.Kiosk.ID, override.Kiosk.ID)
	if override.Kiosk.RecentCheckoutWindow > 0 {
		result.Kiosk.RecentCheckoutWindow = override.Kiosk.RecentCheckoutWindow
	}
	if override.Kiosk.DuplicateTapWindow > 0 {
		result.Kiosk.DuplicateTapWindow = override.Kiosk.DuplicateTapWindow
	}
	setString(&result.Kiosk.DefaultGuestType, override.Kiosk.DefaultGuestType)
	// A party is replaced as a whole so that "0 adults, 2 children" survives.
	if override.Kiosk.DefaultAdults > 0 || override.Kiosk.DefaultChildren > 0 {
		result.Kiosk.DefaultAdults = override.Kiosk.DefaultAdults
		result.Kiosk.DefaultChildren = override.Kiosk.DefaultChildren
	}

	// Storage
	setString(&result.Storage.Engine, override.Storage.Engine)
	setString(&result.Storage.Path, override.Storage.Path)
	if override.Storage.Timeout > 0 {
		result.Storage.Timeout = override.Storage.Timeout
	}

	// Sync
	if override.Sync.Interval > 0 {
		result.Sync.Interval = override.Sync.Interval
	}
	if override.Sync.RemoteTimeout > 0 {
		result.Sync.RemoteTimeout = override.Sync.RemoteTimeout
	}
	if override.Sync.MaxAttempts > 0 {
		result.Sync.MaxAttempts = override.Sync.MaxAttempts
	}

	// Remote
	r, o := &result.Remote, override.Remote
	setString(&r.Backend, o.Backend)
	setString(&r.HTTP.BaseURL, o.HTTP.BaseURL)
	if o.HTTP.Timeout > 0 {
		r.HTTP.Timeout = o.HTTP.Timeout
	}
	setString(&r.HTTP.SigningKey, o.HTTP.SigningKey)
	setString(&r.File.Path, o.File.Path)
	setString(&r.S3.Bucket, o.S3.Bucket)
	setString(&r.S3.Key, o.S3.Key)
	setString(&r.S3.Region, o.S3.Region)
	setString(&r.S3.Endpoint, o.S3.Endpoint)
	// UsePathStyle is a bool, so we always take the override value
	r.S3.UsePathStyle = o.S3.UsePathStyle
	setString(&r.Postgres.DSN, o.Postgres.DSN)
	setString(&r.Postgres.Table, o.Postgres.Table)
	if o.Postgres.MaxConns > 0 {
		r.Postgres.MaxConns = o.Postgres.MaxConns
	}
	setString(&r.Redis.URL, o.Redis.URL)
	setString(&r.Redis.Prefix, o.Redis.Prefix)

	// Network
	if override.Network.CheckInterval > 0 {
		result.Network.CheckInterval = override.Network.CheckInterval
	}
	if override.Network.CheckTimeout > 0 {
		result.Network.CheckTimeout = override.Network.CheckTimeout
	}

	// NFC
	setString(&result.NFC.Source, override.NFC.Source)
	setString(&result.NFC.SpoolDir, override.NFC.SpoolDir)
	if override.NFC.Debounce > 0 {
		result.NFC.Debounce = override.NFC.Debounce
	}

	// Display and logging
	setString(&result.Display.Format, override.Display.Format)
	setString(&result.Logging.Level, override.Logging.Level)
	setString(&result.Logging.Output, override.Logging.Output)
	setString(&result.Logging.Format, override.Logging.Format)

	return &result
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - GASTMETING_DB: local database path
//   - GASTMETING_STORAGE_ENGINE: bolt, badger or memory
//   - GASTMETING_BACKEND: remote backend name
//   - GASTMETING_REMOTE_URL: address for the selected backend (base URL,
//     file path, bucket, DSN or redis URL)
//   - GASTMETING_SIGNING_KEY: HS256 secret for the http backend
//   - GASTMETING_LOG_LEVEL: log level
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	setString(&result.Storage.Path, os.Getenv(EnvDB))

	if engine := os.Getenv(EnvStorageEngine); engine != "" {
		result.Storage.Engine = strings.ToLower(engine)
	}

	if backend := os.Getenv(EnvBackend); backend != "" {
		result.Remote.Backend = strings.ToLower(backend)
	}

	if url := os.Getenv(EnvRemoteURL); url != "" {
		switch result.Remote.Backend {
		case BackendHTTP:
			result.Remote.HTTP.BaseURL = url
		case BackendFile:
			result.Remote.File.Path = url
		case BackendS3:
			result.Remote.S3.Bucket = url
		case BackendPostgres:
			result.Remote.Postgres.DSN = url
		case BackendRedis:
			result.Remote.Redis.URL = url
		}
	}

	setString(&result.Remote.HTTP.SigningKey, os.Getenv(EnvSigningKey))

	if logLevel := os.Getenv(EnvLogLevel); logLevel != "" {
		result.Logging.Level = strings.ToLower(logLevel)
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions since it may hold credentials.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Package config provides configuration management for gastmeting.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("remote backend: %s\n", cfg.Remote.Backend)
package config

import (
	"time"

	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Remote backend names.
const (
	BackendMemory   = "memory"
	BackendHTTP     = "http"
	BackendFile     = "file"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// NFC source names.
const (
	SourceStdin = "stdin"
	SourceSpool = "spool"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Sync.Interval, Sync.RemoteTimeout and Sync.MaxAttempts must be > 0
// - Remote.Backend must name a known backend with its required settings
// - Kiosk.DefaultGuestType must be a known guest type.
type Config struct {
	Kiosk   KioskConfig   `yaml:"kiosk"`
	Storage StorageConfig `yaml:"storage"`
	Sync    SyncConfig    `yaml:"sync"`
	Remote  RemoteConfig  `yaml:"remote"`
	Network NetworkConfig `yaml:"network"`
	NFC     NFCConfig     `yaml:"nfc"`
	Display DisplayConfig `yaml:"display"`
	Logging LoggingConfig `yaml:"logging"`
}

// KioskConfig contains check-in desk settings.
type KioskConfig struct {
	// ID identifies this kiosk to the remote service.
	ID string `yaml:"id"`

	// How long a fresh checkout suppresses a new check-in on tap
	RecentCheckoutWindow time.Duration `yaml:"recent_checkout_window"`

	// Repeated reads of one tag within this window are a single tap
	DuplicateTapWindow time.Duration `yaml:"duplicate_tap_window"`

	// Visit recorded when a wristband is tapped without an active session
	DefaultGuestType string `yaml:"default_guest_type"`
	DefaultAdults    int    `yaml:"default_adults"`
	DefaultChildren  int    `yaml:"default_children"`
}

// StorageConfig contains local store settings.
type StorageConfig struct {
	// Engine is bolt, badger or memory
	Engine string `yaml:"engine"`

	// Path to the bolt file or badger directory
	Path string `yaml:"path"`

	// How long to wait for the database lock
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig contains sync engine settings.
type SyncConfig struct {
	Interval      time.Duration `yaml:"interval"`
	RemoteTimeout time.Duration `yaml:"remote_timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

// RemoteConfig selects and configures the remote session store.
type RemoteConfig struct {
	Backend  string         `yaml:"backend"`
	HTTP     HTTPConfig     `yaml:"http"`
	File     FileConfig     `yaml:"file"`
	S3       S3Config       `yaml:"s3"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// HTTPConfig configures the REST backend.
type HTTPConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// Shared HS256 secret; empty disables bearer tokens
	SigningKey string `yaml:"signing_key"`
}

// FileConfig configures the shared-file backend.
type FileConfig struct {
	Path string `yaml:"path"`
}

// S3Config configures the S3 object backend.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Key          string `yaml:"key"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// NetworkConfig contains connectivity check settings.
type NetworkConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	CheckTimeout  time.Duration `yaml:"check_timeout"`
}

// NFCConfig selects where wristband reads come from.
type NFCConfig struct {
	// Source is stdin (keyboard-wedge reader) or spool (one file per tap)
	Source   string        `yaml:"source"`
	SpoolDir string        `yaml:"spool_dir"`
	Debounce time.Duration `yaml:"debounce"`
}

// DisplayConfig contains display-related settings.
type DisplayConfig struct {
	// Default output format (table, json, simple)
	Format string `yaml:"format"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.Kiosk.RecentCheckoutWindow < 0 {
		return ErrInvalidCheckoutWindow
	}
	if c.Kiosk.DuplicateTapWindow < 0 {
		return ErrInvalidDuplicateTapWindow
	}
	if _, err := scan.ParseGuestType(c.Kiosk.DefaultGuestType); err != nil {
		return ErrInvalidGuestType
	}
	if c.Kiosk.DefaultAdults < 0 || c.Kiosk.DefaultChildren < 0 ||
		c.Kiosk.DefaultAdults+c.Kiosk.DefaultChildren == 0 {
		return ErrInvalidGuestCount
	}

	validEngines := map[string]bool{
		"bolt":   true,
		"badger": true,
		"memory": true,
	}
	if !validEngines[c.Storage.Engine] {
		return ErrInvalidStorageEngine
	}
	if c.Storage.Engine != "memory" && c.Storage.Path == "" {
		return ErrNoStoragePath
	}

	if c.Sync.Interval <= 0 {
		return ErrInvalidSyncInterval
	}
	if c.Sync.RemoteTimeout <= 0 {
		return ErrInvalidRemoteTimeout
	}
	if c.Sync.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	if err := c.Remote.validate(); err != nil {
		return err
	}

	if c.Network.CheckInterval <= 0 || c.Network.CheckTimeout <= 0 {
		return ErrInvalidHealthCheck
	}

	switch c.NFC.Source {
	case SourceStdin:
	case SourceSpool:
		if c.NFC.SpoolDir == "" {
			return ErrNoSpoolDir
		}
	default:
		return ErrInvalidNFCSource
	}

	validFormats := map[string]bool{
		"table":  true,
		"json":   true,
		"simple": true,
	}
	if !validFormats[c.Display.Format] {
		return ErrInvalidDisplayFormat
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

func (r *RemoteConfig) validate() error {
	switch r.Backend {
	case BackendMemory:
	case BackendHTTP:
		if r.HTTP.BaseURL == "" {
			return missingSetting("http.base_url")
		}
	case BackendFile:
		if r.File.Path == "" {
			return missingSetting("file.path")
		}
	case BackendS3:
		if r.S3.Bucket == "" {
			return missingSetting("s3.bucket")
		}
	case BackendPostgres:
		if r.Postgres.DSN == "" {
			return missingSetting("postgres.dsn")
		}
	case BackendRedis:
		if r.Redis.URL == "" {
			return missingSetting("redis.url")
		}
	default:
		return ErrInvalidBackend
	}
	return nil
}

// Default returns a configuration with sensible default values.
//
// The default remote is the in-process memory backend, so a fresh kiosk
// runs fully offline until a real backend is configured.
func Default() *Config {
	return &Config{
		Kiosk: KioskConfig{
			ID:                   defaultKioskID(),
			RecentCheckoutWindow: 5 * time.Minute,
			DuplicateTapWindow:   2 * time.Second,
			DefaultGuestType:     string(scan.GuestDay),
			DefaultAdults:        1,
		},
		Storage: StorageConfig{
			Engine:  "bolt",
			Path:    defaultDBPath(),
			Timeout: 1 * time.Second,
		},
		Sync: SyncConfig{
			Interval:      10 * time.Second,
			RemoteTimeout: 10 * time.Second,
			MaxAttempts:   5,
		},
		Remote: RemoteConfig{
			Backend: BackendMemory,
			HTTP: HTTPConfig{
				Timeout: 10 * time.Second,
			},
			File: FileConfig{
				Path: defaultRemoteFilePath(),
			},
			S3: S3Config{
				Key: "gastmeting/sessions.json",
			},
			Postgres: PostgresConfig{
				Table: "sessions",
			},
			Redis: RedisConfig{
				Prefix: "gastmeting",
			},
		},
		Network: NetworkConfig{
			CheckInterval: 15 * time.Second,
			CheckTimeout:  5 * time.Second,
		},
		NFC: NFCConfig{
			Source:   SourceStdin,
			SpoolDir: defaultSpoolDir(),
			Debounce: 50 * time.Millisecond,
		},
		Display: DisplayConfig{
			Format: "table",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}

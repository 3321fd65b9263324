package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every override so tests do not see the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvDB, EnvStorageEngine, EnvBackend, EnvRemoteURL, EnvSigningKey, EnvLogLevel} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}

	if cfg.Kiosk.RecentCheckoutWindow != 5*time.Minute {
		t.Errorf("RecentCheckoutWindow = %v, want 5m", cfg.Kiosk.RecentCheckoutWindow)
	}
	if cfg.Kiosk.DuplicateTapWindow != 2*time.Second {
		t.Errorf("DuplicateTapWindow = %v, want 2s", cfg.Kiosk.DuplicateTapWindow)
	}

	if cfg.Sync.Interval != 10*time.Second || cfg.Sync.RemoteTimeout != 10*time.Second {
		t.Errorf("Sync = %+v, want 10s interval and timeout", cfg.Sync)
	}

	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Sync.MaxAttempts)
	}

	if cfg.Remote.Backend != BackendMemory {
		t.Errorf("Backend = %s, want memory", cfg.Remote.Backend)
	}

	if filepath.Base(cfg.Storage.Path) != "kiosk.db" {
		t.Errorf("Storage.Path = %s, want .../kiosk.db", cfg.Storage.Path)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:   "valid default config",
			mutate: func(c *Config) {},
		},
		{
			name:    "negative checkout window",
			mutate:  func(c *Config) { c.Kiosk.RecentCheckoutWindow = -time.Second },
			wantErr: ErrInvalidCheckoutWindow,
		},
		{
			name:    "negative duplicate tap window",
			mutate:  func(c *Config) { c.Kiosk.DuplicateTapWindow = -time.Millisecond },
			wantErr: ErrInvalidDuplicateTapWindow,
		},
		{
			name:    "unknown guest type",
			mutate:  func(c *Config) { c.Kiosk.DefaultGuestType = "vip" },
			wantErr: ErrInvalidGuestType,
		},
		{
			name:    "empty party",
			mutate:  func(c *Config) { c.Kiosk.DefaultAdults = 0 },
			wantErr: ErrInvalidGuestCount,
		},
		{
			name: "children only",
			mutate: func(c *Config) {
				c.Kiosk.DefaultAdults = 0
				c.Kiosk.DefaultChildren = 2
			},
		},
		{
			name:    "unknown storage engine",
			mutate:  func(c *Config) { c.Storage.Engine = "sqlite" },
			wantErr: ErrInvalidStorageEngine,
		},
		{
			name:    "bolt without path",
			mutate:  func(c *Config) { c.Storage.Path = "" },
			wantErr: ErrNoStoragePath,
		},
		{
			name: "memory without path",
			mutate: func(c *Config) {
				c.Storage.Engine = "memory"
				c.Storage.Path = ""
			},
		},
		{
			name:    "zero sync interval",
			mutate:  func(c *Config) { c.Sync.Interval = 0 },
			wantErr: ErrInvalidSyncInterval,
		},
		{
			name:    "zero remote timeout",
			mutate:  func(c *Config) { c.Sync.RemoteTimeout = 0 },
			wantErr: ErrInvalidRemoteTimeout,
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Sync.MaxAttempts = 0 },
			wantErr: ErrInvalidMaxAttempts,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Remote.Backend = "ftp" },
			wantErr: ErrInvalidBackend,
		},
		{
			name:    "http without base url",
			mutate:  func(c *Config) { c.Remote.Backend = BackendHTTP },
			wantErr: ErrMissingRemoteSetting,
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Remote.Backend = BackendS3 },
			wantErr: ErrMissingRemoteSetting,
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Remote.Backend = BackendPostgres },
			wantErr: ErrMissingRemoteSetting,
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Remote.Backend = BackendRedis },
			wantErr: ErrMissingRemoteSetting,
		},
		{
			name: "file backend uses default path",
			mutate: func(c *Config) {
				c.Remote.Backend = BackendFile
			},
		},
		{
			name:    "zero check timeout",
			mutate:  func(c *Config) { c.Network.CheckTimeout = 0 },
			wantErr: ErrInvalidHealthCheck,
		},
		{
			name:    "unknown nfc source",
			mutate:  func(c *Config) { c.NFC.Source = "usb" },
			wantErr: ErrInvalidNFCSource,
		},
		{
			name: "spool without dir",
			mutate: func(c *Config) {
				c.NFC.Source = SourceSpool
				c.NFC.SpoolDir = ""
			},
			wantErr: ErrNoSpoolDir,
		},
		{
			name:    "invalid display format",
			mutate:  func(c *Config) { c.Display.Format = "xml" },
			wantErr: ErrInvalidDisplayFormat,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: ErrInvalidLogFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		missing bool
		wantErr error
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config file",
			content: `
kiosk:
  id: desk-1
  recent_checkout_window: 2m
  duplicate_tap_window: 500ms
  default_guest_type: zwembadgast
  default_adults: 0
  default_children: 2
storage:
  engine: badger
  path: /tmp/kiosk-badger
sync:
  interval: 30s
  max_attempts: 3
remote:
  backend: http
  http:
    base_url: https://checkin.example.com
    signing_key: s3cret
network:
  check_interval: 1m
nfc:
  source: spool
  spool_dir: /var/spool/nfc
display:
  format: simple
logging:
  level: debug
  output: stdout
  format: json
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Kiosk.ID != "desk-1" {
					t.Errorf("Kiosk.ID = %s, want desk-1", cfg.Kiosk.ID)
				}
				if cfg.Kiosk.RecentCheckoutWindow != 2*time.Minute {
					t.Errorf("RecentCheckoutWindow = %v, want 2m", cfg.Kiosk.RecentCheckoutWindow)
				}
				if cfg.Kiosk.DuplicateTapWindow != 500*time.Millisecond {
					t.Errorf("DuplicateTapWindow = %v, want 500ms", cfg.Kiosk.DuplicateTapWindow)
				}
				if cfg.Kiosk.DefaultAdults != 0 || cfg.Kiosk.DefaultChildren != 2 {
					t.Errorf("default party = %d+%d, want 0+2", cfg.Kiosk.DefaultAdults, cfg.Kiosk.DefaultChildren)
				}
				if cfg.Storage.Engine != "badger" {
					t.Errorf("Storage.Engine = %s, want badger", cfg.Storage.Engine)
				}
				if cfg.Sync.Interval != 30*time.Second {
					t.Errorf("Sync.Interval = %v, want 30s", cfg.Sync.Interval)
				}
				if cfg.Sync.RemoteTimeout != 10*time.Second {
					t.Errorf("Sync.RemoteTimeout = %v, want default 10s", cfg.Sync.RemoteTimeout)
				}
				if cfg.Sync.MaxAttempts != 3 {
					t.Errorf("MaxAttempts = %d, want 3", cfg.Sync.MaxAttempts)
				}
				if cfg.Remote.HTTP.BaseURL != "https://checkin.example.com" {
					t.Errorf("HTTP.BaseURL = %s", cfg.Remote.HTTP.BaseURL)
				}
				if cfg.Remote.HTTP.Timeout != 10*time.Second {
					t.Errorf("HTTP.Timeout = %v, want default 10s", cfg.Remote.HTTP.Timeout)
				}
				if cfg.Network.CheckTimeout != 5*time.Second {
					t.Errorf("CheckTimeout = %v, want default 5s", cfg.Network.CheckTimeout)
				}
				if cfg.NFC.Source != SourceSpool || cfg.NFC.SpoolDir != "/var/spool/nfc" {
					t.Errorf("NFC = %+v", cfg.NFC)
				}
				if cfg.Display.Format != "simple" {
					t.Errorf("Display.Format = %s, want simple", cfg.Display.Format)
				}
				if cfg.Logging.Level != "debug" {
					t.Errorf("LogLevel = %s, want debug", cfg.Logging.Level)
				}
			},
		},
		{
			name:    "invalid yaml",
			content: `invalid: yaml: content: [`,
			wantErr: ErrInvalidYAML,
		},
		{
			name: "invalid values",
			content: `
sync:
  max_attempts: -1
remote:
  backend: carrier-pigeon
`,
			wantErr: ErrInvalidBackend,
		},
		{
			name:    "non-existent file",
			missing: true,
			wantErr: ErrConfigNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := filepath.Join(tmpDir, "nonexistent.yaml")
			if !tt.missing {
				filePath = filepath.Join(tmpDir, tt.name+".yaml")
				if err := os.WriteFile(filePath, []byte(tt.content), 0600); err != nil {
					t.Fatalf("Failed to create test file: %v", err)
				}
			}

			cfg, err := NewLoader(filePath).Load()

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Load() error = %v, wantErr = false", err)
			}

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	loader := NewLoader("")
	if p := loader.Path(); p != "" {
		t.Errorf("Path() = %q, want empty without a config file", p)
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.Remote.Backend != BackendMemory {
		t.Errorf("Backend = %s, want memory", cfg.Remote.Backend)
	}
}

func TestLoad_FindsLocalFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())

	if err := os.WriteFile(filepath.Join(dir, "gastmeting.yaml"), []byte("kiosk:\n  id: local-desk\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := NewLoader("")
	if p := loader.Path(); p != "./gastmeting.yaml" {
		t.Errorf("Path() = %q, want ./gastmeting.yaml", p)
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Kiosk.ID != "local-desk" {
		t.Errorf("Kiosk.ID = %s, want local-desk", cfg.Kiosk.ID)
	}
}

func TestLoad_BrokenDiscoveredFileFallsBack(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())

	if err := os.WriteFile(filepath.Join(dir, "gastmeting.yaml"), []byte("kiosk: ["), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(); err != nil {
		t.Errorf("Load() error = %v, want defaults", err)
	}
}

func TestSave(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Remote.Backend = BackendRedis
	cfg.Remote.Redis.URL = "redis://localhost:6379/0"

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if loaded.Logging.Level != "debug" {
		t.Errorf("loaded level = %s, want debug", loaded.Logging.Level)
	}
	if loaded.Remote.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("loaded redis url = %s", loaded.Remote.Redis.URL)
	}
}

func TestSave_Invalid(t *testing.T) {
	cfg := Default()
	cfg.Sync.Interval = 0

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(cfg, path); !errors.Is(err, ErrInvalidSyncInterval) {
		t.Errorf("Save() error = %v, want ErrInvalidSyncInterval", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid config was written")
	}
}

func TestEnvVarOverrides(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	t.Setenv(EnvDB, "/env/kiosk.db")
	t.Setenv(EnvStorageEngine, "BADGER")
	t.Setenv(EnvBackend, "Postgres")
	t.Setenv(EnvRemoteURL, "postgres://kiosk@db/gastmeting")
	t.Setenv(EnvSigningKey, "env-secret")
	t.Setenv(EnvLogLevel, "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Path != "/env/kiosk.db" {
		t.Errorf("Storage.Path = %s, want /env/kiosk.db", cfg.Storage.Path)
	}
	if cfg.Storage.Engine != "badger" {
		t.Errorf("Storage.Engine = %s, want badger", cfg.Storage.Engine)
	}
	if cfg.Remote.Backend != BackendPostgres {
		t.Errorf("Backend = %s, want postgres", cfg.Remote.Backend)
	}
	if cfg.Remote.Postgres.DSN != "postgres://kiosk@db/gastmeting" {
		t.Errorf("Postgres.DSN = %s", cfg.Remote.Postgres.DSN)
	}
	if cfg.Remote.HTTP.SigningKey != "env-secret" {
		t.Errorf("SigningKey = %s, want env-secret", cfg.Remote.HTTP.SigningKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.Logging.Level)
	}
}

func TestEnvRemoteURL_FollowsBackend(t *testing.T) {
	tests := []struct {
		backend string
		get     func(c *Config) string
	}{
		{BackendHTTP, func(c *Config) string { return c.Remote.HTTP.BaseURL }},
		{BackendFile, func(c *Config) string { return c.Remote.File.Path }},
		{BackendS3, func(c *Config) string { return c.Remote.S3.Bucket }},
		{BackendRedis, func(c *Config) string { return c.Remote.Redis.URL }},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvBackend, tt.backend)
			t.Setenv(EnvRemoteURL, "target")

			cfg := (&loader{}).applyEnvVars(Default())
			if got := tt.get(cfg); got != "target" {
				t.Errorf("%s address = %q, want target", tt.backend, got)
			}
		})
	}
}

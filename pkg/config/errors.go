package config

import (
	"errors"
	"fmt"
)

// Common errors returned by the config package.
var (
	// ErrInvalidCheckoutWindow is returned when the recent checkout window is < 0.
	ErrInvalidCheckoutWindow = errors.New("invalid recent checkout window: must be >= 0")

	// ErrInvalidDuplicateTapWindow is returned when the duplicate tap window is < 0.
	ErrInvalidDuplicateTapWindow = errors.New("invalid duplicate tap window: must be >= 0")

	// ErrInvalidGuestType is returned when the default guest type is not recognized.
	ErrInvalidGuestType = errors.New("invalid default guest type: must be hotelgast, daggast, or zwembadgast")

	// ErrInvalidGuestCount is returned when the default party is empty or negative.
	ErrInvalidGuestCount = errors.New("invalid default guest count: need at least one guest")

	// ErrInvalidStorageEngine is returned when the storage engine is not recognized.
	ErrInvalidStorageEngine = errors.New("invalid storage engine: must be bolt, badger, or memory")

	// ErrNoStoragePath is returned when a durable engine has no path.
	ErrNoStoragePath = errors.New("no storage path specified")

	// ErrInvalidSyncInterval is returned when sync interval is <= 0.
	ErrInvalidSyncInterval = errors.New("invalid sync interval: must be > 0")

	// ErrInvalidRemoteTimeout is returned when remote timeout is <= 0.
	ErrInvalidRemoteTimeout = errors.New("invalid remote timeout: must be > 0")

	// ErrInvalidMaxAttempts is returned when max attempts is <= 0.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be > 0")

	// ErrInvalidBackend is returned when the remote backend is not recognized.
	ErrInvalidBackend = errors.New("invalid remote backend: must be memory, http, file, s3, postgres, or redis")

	// ErrMissingRemoteSetting is returned when the selected backend lacks a required setting.
	ErrMissingRemoteSetting = errors.New("missing remote setting")

	// ErrInvalidHealthCheck is returned when a check interval or timeout is <= 0.
	ErrInvalidHealthCheck = errors.New("invalid network check: interval and timeout must be > 0")

	// ErrInvalidNFCSource is returned when the NFC source is not recognized.
	ErrInvalidNFCSource = errors.New("invalid nfc source: must be stdin or spool")

	// ErrNoSpoolDir is returned when the spool source has no directory.
	ErrNoSpoolDir = errors.New("no spool directory specified")

	// ErrInvalidDisplayFormat is returned when display format is not recognized.
	ErrInvalidDisplayFormat = errors.New("invalid display format: must be table, json, or simple")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)

func missingSetting(name string) error {
	return fmt.Errorf("%w: remote.%s", ErrMissingRemoteSetting, name)
}

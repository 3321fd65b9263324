package config

import (
	"os"
	"path/filepath"
)

// appDir returns ~/.config/gastmeting, or "." when the home directory is
// not available.
func appDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".config", "gastmeting")
}

// defaultDBPath returns the default database file path.
//
// Returns: ~/.config/gastmeting/kiosk.db.
func defaultDBPath() string {
	return filepath.Join(appDir(), "kiosk.db")
}

// defaultRemoteFilePath returns the default shared-file backend path.
func defaultRemoteFilePath() string {
	return filepath.Join(appDir(), "remote.json")
}

// defaultSpoolDir returns the default NFC spool directory.
func defaultSpoolDir() string {
	return filepath.Join(appDir(), "spool")
}

// DefaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/gastmeting/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(appDir(), "config.yaml")
}

// defaultKioskID uses the host name, which is stable per kiosk device.
func defaultKioskID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "kiosk"
	}
	return host
}

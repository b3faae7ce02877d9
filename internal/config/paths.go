package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName     = "omnipkg"
	configFile  = "config.toml"
	historyFile = "history.db"

	// HomeEnv relocates every omnipkg directory under one root. Portable
	// installs and tests use it.
	HomeEnv = "OMNIPKG_HOME"
)

// kind selects one of the per-user base directories.
type kind int

const (
	configKind kind = iota
	dataKind
	cacheKind
)

// dir resolves a base directory. OMNIPKG_HOME wins, then the platform
// convention (XDG on Linux and the BSDs).
func dir(k kind) string {
	if home := os.Getenv(HomeEnv); home != "" {
		return filepath.Join(home, [...]string{"config", "data", "cache"}[k])
	}

	switch k {
	case configKind:
		if d, err := os.UserConfigDir(); err == nil {
			return filepath.Join(d, appName)
		}
	case cacheKind:
		if d, err := os.UserCacheDir(); err == nil {
			return filepath.Join(d, appName)
		}
	case dataKind:
		switch runtime.GOOS {
		case "windows":
			if d := os.Getenv("LOCALAPPDATA"); d != "" {
				return filepath.Join(d, appName)
			}
		case "darwin":
			if d, err := os.UserConfigDir(); err == nil {
				return filepath.Join(d, appName)
			}
		default:
			if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
				return filepath.Join(xdg, appName)
			}
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, ".local", "share", appName)
			}
		}
	}
	return filepath.Join(os.TempDir(), appName)
}

// ConfigDir returns the directory holding config.toml.
func ConfigDir() string { return dir(configKind) }

// DataDir returns the directory holding the operation history.
func DataDir() string { return dir(dataKind) }

// CacheDir returns the directory holding one listing cache file per
// manager. Its contents can be deleted at any time.
func CacheDir() string { return dir(cacheKind) }

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), configFile)
}

// HistoryPath returns the full path to the history database.
func HistoryPath() string {
	return filepath.Join(DataDir(), historyFile)
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	return os.MkdirAll(ConfigDir(), 0755)
}

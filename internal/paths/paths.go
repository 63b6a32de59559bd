package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tgram.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgram")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// CacheDir returns the media cache root directory.
func CacheDir() string {
	return filepath.Join(BaseDir(), "files")
}

// CacheDBPath returns the cache index database path.
func CacheDBPath() string {
	return filepath.Join(BaseDir(), "cache.db")
}

// LockPath returns the single-instance lock file path.
func LockPath() string {
	return filepath.Join(BaseDir(), "LOCK")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the client log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "tgram.log")
}

// EnsureDirs creates the data directory tree with owner-only permissions.
func EnsureDirs() error {
	dirs := []string{
		BaseDir(),
		CacheDir(),
		LogDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

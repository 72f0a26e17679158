// Package paths resolves the configuration, data and type-model
// directories of the patchcache CLI.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "patchcache"

// ModelsDirName is the type-model directory inside the config directory.
const ModelsDirName = "models"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "PATCHCACHE_CONFIG_DIR"
	EnvDataDir   = "PATCHCACHE_DATA_DIR"
	EnvModelsDir = "PATCHCACHE_MODELS_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	userCacheDir  func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	userCacheDir:  os.UserCacheDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/patchcache (fallback ~/.config/patchcache)
// macOS:   ~/Library/Application Support/patchcache
// Windows: %APPDATA%/patchcache
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", AppName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultDataDir returns the platform-specific default cache directory. The
// offline cache can always be rebuilt from the server, so it lives with
// other caches.
//
// Linux:   $XDG_CACHE_HOME/patchcache (fallback ~/.cache/patchcache)
// macOS:   ~/Library/Caches/patchcache
// Windows: %LocalAppData%/patchcache
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".cache", AppName), nil
	}
	dir, err := platformDir.userCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > PATCHCACHE_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > config value > PATCHCACHE_DATA_DIR env > DefaultDataDir().
func ResolveDataDir(flag, configValue string) (string, error) {
	return resolve(flag, configValue, EnvDataDir, DefaultDataDir)
}

// ResolveModelsDir returns the type-model directory following the
// precedence chain: flag > config value > PATCHCACHE_MODELS_DIR env >
// configDir/models.
func ResolveModelsDir(flag, configValue, configDir string) (string, error) {
	return resolve(flag, configValue, EnvModelsDir, func() (string, error) {
		return filepath.Join(configDir, ModelsDirName), nil
	})
}

func resolve(flag, configValue, env string, fallback func() (string, error)) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if v := os.Getenv(env); v != "" {
		return filepath.Abs(v)
	}
	return fallback()
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tgdrive/tgdrive/internal/constants"
)

// configDir returns the platform-appropriate config directory.
//   - Windows: %APPDATA%\tgdrive
//   - Unix: ~/.config/tgdrive
func configDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, constants.AppName)
		}
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			return filepath.Join(userProfile, "AppData", "Roaming", constants.AppName)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", constants.AppName)
	}
	return ""
}

// DefaultConfigPath returns the default INI config file path.
func DefaultConfigPath() string {
	dir := configDir()
	if dir == "" {
		return "config"
	}
	return filepath.Join(dir, "config")
}

// DefaultTokenPath returns the default token file path written by 'tgdrive login'.
func DefaultTokenPath() string {
	dir := configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "token")
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir := configDir()
	if dir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	return os.MkdirAll(dir, 0700)
}

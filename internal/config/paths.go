// Package config provides configuration management for the taxdesk client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/taxdesk/taxdesk/internal/constants"
)

// ConfigDirectory returns the per-user configuration directory.
//
// Locations:
//   - Windows: %USERPROFILE%\.config\taxdesk
//   - Unix: ~/.config/taxdesk
func ConfigDirectory() (string, error) {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", errors.New("USERPROFILE environment variable not set")
		}
		return filepath.Join(userProfile, ".config", constants.AppName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", constants.AppName), nil
}

// DefaultConfigPath returns the default path of the INI config file.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// DefaultPreviewDirectory is where upload previews are written when
// preview_dir is not configured. Lives under the OS temp dir so stray
// previews from a crashed session are eventually reclaimed.
func DefaultPreviewDirectory() string {
	return filepath.Join(os.TempDir(), constants.AppName+"-previews")
}

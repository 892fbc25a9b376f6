// Package settings persists user preferences across restarts,
// separate from the deployment configuration in internal/config.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Settings holds user preferences that persist across restarts.
type Settings struct {
	CrashReporting bool   `json:"crashReporting"` // Whether to send crash reports to Sentry
	DefaultScheme  string `json:"defaultScheme"`  // Scheme shown first in status displays
}

var (
	current *Settings
	mu      sync.RWMutex
)

// DefaultSettings returns the default settings.
func DefaultSettings() *Settings {
	return &Settings{
		CrashReporting: false, // Opt-in, disabled by default
		DefaultScheme:  "visa",
	}
}

// getSettingsPath returns the path to the settings file.
func getSettingsPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "emv-emulator", "settings.json"), nil
}

// Load reads settings from disk, or returns defaults if the file
// doesn't exist.
func Load() (*Settings, error) {
	mu.Lock()
	defer mu.Unlock()

	path, err := getSettingsPath()
	if err != nil {
		current = DefaultSettings()
		return current, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		current = DefaultSettings()
		if os.IsNotExist(err) {
			return current, nil
		}
		return current, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		current = DefaultSettings()
		return current, err
	}

	current = &s
	return current, nil
}

// Save writes the current settings to disk.
func Save() error {
	mu.Lock()
	defer mu.Unlock()

	if current == nil {
		current = DefaultSettings()
	}

	path, err := getSettingsPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Get returns the current settings (loads from disk if not yet loaded).
func Get() *Settings {
	mu.RLock()
	if current != nil {
		defer mu.RUnlock()
		return current
	}
	mu.RUnlock()

	s, _ := Load()
	return s
}

// SetCrashReporting updates the crash reporting preference and saves.
func SetCrashReporting(enabled bool) error {
	mu.Lock()
	if current == nil {
		current = DefaultSettings()
	}
	current.CrashReporting = enabled
	mu.Unlock()

	return Save()
}

// IsCrashReportingEnabled returns whether crash reporting is enabled.
func IsCrashReportingEnabled() bool {
	return Get().CrashReporting
}

// SetDefaultScheme updates the preferred card scheme and saves.
func SetDefaultScheme(scheme string) error {
	mu.Lock()
	if current == nil {
		current = DefaultSettings()
	}
	current.DefaultScheme = scheme
	mu.Unlock()

	return Save()
}

// GetDefaultScheme returns the preferred card scheme for displays.
func GetDefaultScheme() string {
	return Get().DefaultScheme
}

package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir returns the platform-appropriate data directory for the
// telemetry journal and any future on-disk state.
func DefaultDataDir() string {
	if v := os.Getenv("FREAQ_DATA_DIR"); v != "" {
		return v
	}
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, "Library", "Application Support", "freaq")
		}
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "freaq")
		}
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "freaq")
		}
		if os.Geteuid() == 0 {
			return "/var/lib/freaq"
		}
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, ".local", "share", "freaq")
		}
	}
	return filepath.Join(os.TempDir(), "freaq")
}

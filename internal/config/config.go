package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env. ReplayLimit and
// HeartbeatIntervalMs are immutable per broker instance once the runtime is
// built.
type Config struct {
	// DefaultWorkspaceName scopes publishes and subscriptions that omit a
	// workspace.
	DefaultWorkspaceName string `json:"defaultWorkspaceName" yaml:"defaultWorkspaceName"`
	// ReplayLimit is the number of events retained per (topic, resource) pair
	// for replay-from-last-seen.
	ReplayLimit int `json:"replayLimit" yaml:"replayLimit"`
	// HeartbeatIntervalMs is the idle heartbeat cadence per subscriber
	// connection, in milliseconds.
	HeartbeatIntervalMs int `json:"heartbeatIntervalMs" yaml:"heartbeatIntervalMs"`
	// LiveStreamingEnabled gates live review streaming; when false every
	// review session is served through fallback delivery.
	LiveStreamingEnabled bool `json:"liveStreamingEnabled" yaml:"liveStreamingEnabled"`
	// FallbackTokenPaceMs spaces synthesized fallback frames, in milliseconds.
	FallbackTokenPaceMs int `json:"fallbackTokenPaceMs" yaml:"fallbackTokenPaceMs"`
	// WatcherBufferLimit is the per-watcher frame buffer for review session
	// streams; a watcher that falls this far behind is detached and must
	// reconnect to replay.
	WatcherBufferLimit int `json:"watcherBufferLimit" yaml:"watcherBufferLimit"`
	// TelemetryJournalLimit caps journal records returned by list endpoints.
	TelemetryJournalLimit int `json:"telemetryJournalLimit" yaml:"telemetryJournalLimit"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DefaultWorkspaceName:  "default",
		ReplayLimit:           64,
		HeartbeatIntervalMs:   15000,
		LiveStreamingEnabled:  true,
		FallbackTokenPaceMs:   40,
		WatcherBufferLimit:    256,
		TelemetryJournalLimit: 500,
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

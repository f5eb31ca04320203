package config

import (
	"os"
	"strconv"
)

// FromEnv overlays environment variables onto cfg. Unset or malformed values
// leave the existing field untouched.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FREAQ_DEFAULT_WORKSPACE"); v != "" {
		cfg.DefaultWorkspaceName = v
	}
	overlayInt("FREAQ_REPLAY_LIMIT", &cfg.ReplayLimit)
	overlayInt("FREAQ_HEARTBEAT_MS", &cfg.HeartbeatIntervalMs)
	overlayInt("FREAQ_FALLBACK_PACE_MS", &cfg.FallbackTokenPaceMs)
	overlayInt("FREAQ_WATCHER_BUFFER", &cfg.WatcherBufferLimit)
	overlayInt("FREAQ_TELEMETRY_LIMIT", &cfg.TelemetryJournalLimit)
	overlayBool("FREAQ_LIVE_STREAMING", &cfg.LiveStreamingEnabled)
}

func overlayInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return
	}
	*dst = n
}

func overlayBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return
	}
	*dst = b
}

// Package config provides loading and environment overlay for the streaming
// coordination runtime configuration. It exposes a Default() baseline, file
// loading for JSON and YAML, and a FromEnv overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/freaq.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
package config

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/danwashusen/ctrl-freaq-sub008/internal/cmd/client"
	serverrun "github.com/danwashusen/ctrl-freaq-sub008/internal/cmd/server"
	cfgpkg "github.com/danwashusen/ctrl-freaq-sub008/internal/config"
	pebblestore "github.com/danwashusen/ctrl-freaq-sub008/internal/storage/pebble"
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

func main() {
	// Respect FREAQ_LOG_LEVEL for CLI output
	level := os.Getenv("FREAQ_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "freaq",
		Short: "freaq streaming coordination CLI",
		Long:  "freaq is the streaming coordination service for collaborative document authoring. This CLI manages the server and basic operations.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the freaq server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			configPath, _ := cmd.Flags().GetString("config")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			replayLimit, _ := cmd.Flags().GetInt("replay-limit")
			heartbeatMs, _ := cmd.Flags().GetInt("heartbeat-ms")

			mode := pebblestore.FsyncModeInterval
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)
			if replayLimit > 0 {
				cfg.ReplayLimit = replayLimit
			}
			if heartbeatMs > 0 {
				cfg.HeartbeatIntervalMs = heartbeatMs
			}
			if logLevel != "" {
				_ = os.Setenv("FREAQ_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("FREAQ_LOG_FORMAT", logFormat)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:  dataDir,
				HTTPAddr: httpAddr,
				Fsync:    mode,
				Config:   cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("config", "", "Config file path (JSON or YAML)")
	serverStartCmd.Flags().String("fsync", "interval", "Fsync mode for the telemetry journal: always|interval|never")
	serverStartCmd.Flags().String("log-level", os.Getenv("FREAQ_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("FREAQ_LOG_FORMAT"), "Log format: text|json (default text)")
	serverStartCmd.Flags().Int("replay-limit", 0, "Events retained per topic/resource for replay")
	serverStartCmd.Flags().Int("heartbeat-ms", 0, "Idle heartbeat cadence in ms")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewEventsCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewReviewsCommand(apiURL))
	rootCmd.AddCommand(clientcmd.NewTelemetryCommand(apiURL))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("FREAQ_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

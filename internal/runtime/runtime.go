package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/danwashusen/ctrl-freaq-sub008/internal/broker"
	cfgpkg "github.com/danwashusen/ctrl-freaq-sub008/internal/config"
	"github.com/danwashusen/ctrl-freaq-sub008/internal/review"
	pebblestore "github.com/danwashusen/ctrl-freaq-sub008/internal/storage/pebble"
	"github.com/danwashusen/ctrl-freaq-sub008/internal/telemetry"
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	// DataDir holds the telemetry journal; empty disables journal persistence.
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
	Logger  logpkg.Logger
}

// Runtime wires the broker, the review coordinator, and the telemetry
// journal into a single-node instance.
type Runtime struct {
	config  cfgpkg.Config
	logger  logpkg.Logger
	db      *pebblestore.DB
	journal *telemetry.Journal
	broker  *broker.Broker
	coord   *review.Coordinator
}

// Open builds the instance. The telemetry sink is the structured logger plus,
// when DataDir is set, the pebble journal.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	cfg := opts.Config

	rt := &Runtime{config: cfg, logger: logger}

	sinks := telemetry.MultiSink{telemetry.NewLoggerSink(logger)}
	if opts.DataDir != "" {
		db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
		if err != nil {
			return nil, err
		}
		rt.db = db
		rt.journal = telemetry.NewJournal(db, logger)
		sinks = append(sinks, rt.journal)
	}

	rt.broker = broker.New(broker.Config{
		ReplayLimit:       cfg.ReplayLimit,
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,
	}, clock.New(), logger)

	rt.coord = review.NewCoordinator(review.Config{
		LiveStreamingEnabled: cfg.LiveStreamingEnabled,
		FallbackTokenPace:    time.Duration(cfg.FallbackTokenPaceMs) * time.Millisecond,
		WatcherBufferLimit:   cfg.WatcherBufferLimit,
	},
		review.WithTelemetry(sinks),
		review.WithLogger(logger),
	)

	return rt, nil
}

// Close shuts down the coordinator, the broker, and the journal in dependency
// order.
func (r *Runtime) Close() error {
	if r.coord != nil {
		r.coord.Close()
	}
	if r.broker != nil {
		r.broker.Close()
	}
	if r.journal != nil {
		r.journal.Close()
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CheckHealth verifies the instance is serviceable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.broker == nil || r.coord == nil {
		return errors.New("runtime not open")
	}
	if r.db != nil {
		if err := r.db.ScanPrefix([]byte{0x00}, func([]byte, []byte) bool { return false }); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Broker returns the event broker.
func (r *Runtime) Broker() *broker.Broker { return r.broker }

// Reviews returns the review coordinator.
func (r *Runtime) Reviews() *review.Coordinator { return r.coord }

// Journal returns the telemetry journal, nil when persistence is disabled.
func (r *Runtime) Journal() *telemetry.Journal { return r.journal }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

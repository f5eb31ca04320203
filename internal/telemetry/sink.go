package telemetry

import (
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

// Sink receives disposition-change events. Implementations must not block.
type Sink interface {
	LogReview(ev Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) LogReview(Event) {}

// LoggerSink writes each event as a structured log line.
type LoggerSink struct {
	Logger logpkg.Logger
}

func NewLoggerSink(logger logpkg.Logger) *LoggerSink {
	return &LoggerSink{Logger: logger.WithComponent("telemetry")}
}

func (s *LoggerSink) LogReview(ev Event) {
	fields := []logpkg.Field{
		logpkg.Str("type", string(ev.Type)),
		logpkg.Str("session_id", ev.SessionID),
		logpkg.Str("resource_key", ev.ResourceKey),
	}
	if ev.Reason != "" {
		fields = append(fields, logpkg.Str("reason", ev.Reason))
	}
	if ev.ConcurrencySlot > 0 {
		fields = append(fields, logpkg.Int("concurrency_slot", ev.ConcurrencySlot))
	}
	if ev.RetryOf != "" {
		fields = append(fields, logpkg.Str("retry_of", ev.RetryOf))
	}
	s.Logger.Info("telemetry.review", fields...)
}

// MultiSink fans one event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) LogReview(ev Event) {
	for _, s := range m {
		s.LogReview(ev)
	}
}

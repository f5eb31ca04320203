// Package telemetry records review disposition changes. Every queue
// transition (queued, replaced, canceled, retried, completed, promoted)
// produces one Event delivered to a Sink. Sinks never block the caller: the
// pebble journal drains through a buffered channel and drops on overflow.
package telemetry

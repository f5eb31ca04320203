// Package broker is the in-process publish/subscribe hub for workspace
// notifications. Envelopes carry a per-(topic, resource) sequence that is
// strictly increasing and gapless; a bounded ring of recent envelopes per
// pair backs replay-from-last-seen for reconnecting subscribers, and idle
// connections receive heartbeat envelopes on a fixed cadence.
//
// Timers run on an injectable clock so tests advance virtual time instead of
// sleeping.
package broker

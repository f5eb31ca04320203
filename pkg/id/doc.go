// Package id generates 16-byte, time-ordered identifiers.
//
// An ID encodes [8 bytes millisecond timestamp][8 bytes counter], both
// big-endian, so comparing ids byte-wise compares them chronologically. That
// property is what the telemetry journal relies on: record keys written in
// id order scan back in write order.
//
// The Generator is safe for concurrent use and strictly monotonic per
// process. It pins to the highest millisecond observed, so a clock stepping
// backwards cannot reorder ids, and it waits out counter exhaustion within a
// single millisecond instead of wrapping.
//
//	g := id.NewGenerator()
//	key := g.Next().Bytes()
//	conn := g.Next().String()
package id

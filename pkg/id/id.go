package id

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// ID is a 16-byte, lexicographically sortable identifier. The first 8 bytes
// are the millisecond timestamp and the last 8 the per-millisecond counter,
// both big-endian, so byte order is chronological order. Journal record keys
// and connection ids are built from these.
type ID [16]byte

// Bytes returns the raw 16-byte representation, suitable as an ordered
// storage key.
func (i ID) Bytes() []byte {
	out := make([]byte, len(i))
	copy(out, i[:])
	return out
}

// String returns the 32-character lowercase hex form.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Time returns the timestamp half of the id.
func (i ID) Time() time.Time {
	ms := int64(binary.BigEndian.Uint64(i[0:8]))
	return time.UnixMilli(ms)
}

// Counter returns the per-millisecond counter half of the id.
func (i ID) Counter() uint64 { return binary.BigEndian.Uint64(i[8:16]) }

// Compare orders ids byte-wise, which is also chronological order.
func (i ID) Compare(other ID) int { return bytes.Compare(i[:], other[:]) }

// Parse decodes the hex form produced by String.
func Parse(s string) (ID, error) {
	var out ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("parse id: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("parse id: want %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// NowMs is the millisecond clock source, a variable so tests can pin it.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Generator hands out strictly increasing IDs within one process. A clock
// that runs backwards never produces an out-of-order id; the generator pins
// to the highest millisecond it has seen.
type Generator struct {
	mu      sync.Mutex
	ms      int64
	counter uint64
}

// NewGenerator returns a Generator starting from the current clock.
func NewGenerator() *Generator { return &Generator{} }

// Next returns the next id. When the counter for the current millisecond is
// exhausted it waits for the clock to advance rather than wrap.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := NowMs()
	switch {
	case now > g.ms:
		g.ms = now
		g.counter = 0
	case g.counter == ^uint64(0):
		g.ms = g.waitPast(g.ms)
		g.counter = 0
	default:
		g.counter++
	}

	var out ID
	binary.BigEndian.PutUint64(out[0:8], uint64(g.ms))
	binary.BigEndian.PutUint64(out[8:16], g.counter)
	return out
}

// waitPast blocks until the clock reads later than ms and returns the new
// reading.
func (g *Generator) waitPast(ms int64) int64 {
	for {
		now := NowMs()
		if now > ms {
			return now
		}
		time.Sleep(125 * time.Microsecond)
	}
}

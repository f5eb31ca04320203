package telemetry

import (
	"encoding/json"
	"sync"

	pebblestore "github.com/danwashusen/ctrl-freaq-sub008/internal/storage/pebble"
	"github.com/danwashusen/ctrl-freaq-sub008/pkg/id"
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

var journalPrefix = []byte("telemetry/review/")

// Journal persists disposition-change events to a pebble store. Writes go
// through a buffered channel drained by a single goroutine, so LogReview
// never blocks; when the buffer is full the event is dropped and counted.
type Journal struct {
	db     *pebblestore.DB
	gen    *id.Generator
	logger logpkg.Logger

	ch   chan Event
	done chan struct{}

	mu      sync.Mutex
	dropped int64
	closed  bool
}

// NewJournal starts the drain goroutine over an already-open store. The
// journal does not own the store; the caller closes it after Close returns.
func NewJournal(db *pebblestore.DB, logger logpkg.Logger) *Journal {
	j := &Journal{
		db:     db,
		gen:    id.NewGenerator(),
		logger: logger.WithComponent("telemetry.journal"),
		ch:     make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go j.drain()
	return j
}

// LogReview enqueues the event for persistence. Never blocks.
func (j *Journal) LogReview(ev Event) {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()

	select {
	case j.ch <- ev:
	default:
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
	}
}

// Dropped reports how many events were discarded due to backpressure.
func (j *Journal) Dropped() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// List returns the oldest persisted events up to limit, in write order.
func (j *Journal) List(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []Event
	err := j.db.ScanPrefix(journalPrefix, func(key, value []byte) bool {
		var ev Event
		if jsonErr := json.Unmarshal(value, &ev); jsonErr != nil {
			j.logger.Warn("telemetry.journal.decode", logpkg.Str("key", string(key)), logpkg.Err(jsonErr))
			return true
		}
		events = append(events, ev)
		return len(events) < limit
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ListRecent returns the newest persisted events up to limit, newest first.
func (j *Journal) ListRecent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	// Keys scan oldest first, so keep a sliding window holding the tail.
	var window []Event
	err := j.db.ScanPrefix(journalPrefix, func(key, value []byte) bool {
		var ev Event
		if jsonErr := json.Unmarshal(value, &ev); jsonErr != nil {
			j.logger.Warn("telemetry.journal.decode", logpkg.Str("key", string(key)), logpkg.Err(jsonErr))
			return true
		}
		if len(window) == limit {
			copy(window, window[1:])
			window = window[:limit-1]
		}
		window = append(window, ev)
		return true
	})
	if err != nil {
		return nil, err
	}
	for i, k := 0, len(window)-1; i < k; i, k = i+1, k-1 {
		window[i], window[k] = window[k], window[i]
	}
	return window, nil
}

// Close stops the drain goroutine after flushing queued events.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	j.mu.Unlock()

	close(j.ch)
	<-j.done
}

func (j *Journal) drain() {
	defer close(j.done)
	for ev := range j.ch {
		j.persist(ev)
	}
}

func (j *Journal) persist(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		j.logger.Warn("telemetry.journal.encode", logpkg.Err(err))
		return
	}
	key := append(append([]byte(nil), journalPrefix...), j.gen.Next().Bytes()...)
	if err := j.db.Set(key, b); err != nil {
		j.logger.Warn("telemetry.journal.write", logpkg.Err(err))
	}
}

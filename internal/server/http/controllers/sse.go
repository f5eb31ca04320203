package controllers

import (
	"context"
	"net/http"
	"sync"
)

// sseEvent is one Server-Sent Events frame.
type sseEvent struct {
	id    string
	event string
	data  []byte
}

// sseWriter decouples delivery callbacks from the HTTP connection with a
// buffered channel drained by the handler goroutine. enqueue never blocks;
// a connection that cannot keep up is failed and the handler returns, after
// which the client reconnects and replays.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	events  chan sseEvent
	failed  chan struct{}
	once    sync.Once
}

// newSSEWriter prepares the response for event streaming. Returns false when
// the ResponseWriter cannot flush.
func newSSEWriter(w http.ResponseWriter, buffer int) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if buffer <= 0 {
		buffer = 64
	}
	return &sseWriter{
		w:       w,
		flusher: flusher,
		events:  make(chan sseEvent, buffer),
		failed:  make(chan struct{}),
	}, true
}

// enqueue queues one event for the write loop. Overflow fails the connection.
func (s *sseWriter) enqueue(ev sseEvent) {
	select {
	case s.events <- ev:
	default:
		s.fail()
	}
}

func (s *sseWriter) fail() {
	s.once.Do(func() { close(s.failed) })
}

// run writes queued events until the context ends or the connection fails.
func (s *sseWriter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.failed:
			return
		case ev := <-s.events:
			if err := s.write(ev); err != nil {
				s.fail()
				return
			}
			s.flusher.Flush()
		}
	}
}

func (s *sseWriter) write(ev sseEvent) error {
	if ev.id != "" {
		if _, err := s.w.Write([]byte("id: " + ev.id + "\n")); err != nil {
			return err
		}
	}
	if ev.event != "" {
		if _, err := s.w.Write([]byte("event: " + ev.event + "\n")); err != nil {
			return err
		}
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(ev.data); err != nil {
		return err
	}
	_, err := s.w.Write([]byte("\n\n"))
	return err
}

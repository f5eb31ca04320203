package review

import (
	"sync"
)

// State is the lifecycle state of a review session.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCanceled  State = "canceled"
)

type watcher struct {
	ch     chan Frame
	closed bool
}

// Session is one admission attempt plus its ordered frame stream. Frames are
// retained for the session's lifetime so a watcher attaching late replays the
// full stream before receiving live frames.
type Session struct {
	ID          string
	ResourceKey string
	// RetryOf links this session to the one it retries, empty otherwise.
	RetryOf string

	mu          sync.Mutex
	state       State
	slot        int
	delivery    DeliveryMode
	cancelCause string
	nextSeq     uint64
	buffer      *progressBuffer
	delivered   []Frame
	watchers    map[*watcher]struct{}
	watcherCap  int
}

func newSession(id, resourceKey, retryOf string, delivery DeliveryMode, watcherCap int) *Session {
	return &Session{
		ID:          id,
		ResourceKey: resourceKey,
		RetryOf:     retryOf,
		state:       StatePending,
		delivery:    delivery,
		buffer:      newProgressBuffer(),
		watchers:    make(map[*watcher]struct{}),
		watcherCap:  watcherCap,
	}
}

// NextSequence allocates the next producer-side sequence number, starting
// at 1. Producers may submit allocated sequences in any order.
func (s *Session) NextSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	return s.nextSeq
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConcurrencySlot returns the slot assigned at activation, zero while pending.
func (s *Session) ConcurrencySlot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot
}

// Delivery returns the delivery mode the session streams under.
func (s *Session) Delivery() DeliveryMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivery
}

// CancelCause returns the reason recorded when the session was canceled.
func (s *Session) CancelCause() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCause
}

// degrade flips a live session into fallback delivery. Frames delivered so
// far keep the marker they were delivered under; frames from here on carry
// fallback. No-op for terminal sessions and sessions already in fallback.
func (s *Session) degrade() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivery == DeliveryFallback {
		return false
	}
	if s.state == StateCompleted || s.state == StateCanceled {
		return false
	}
	s.delivery = DeliveryFallback
	return true
}

func (s *Session) activate(slot int) {
	s.mu.Lock()
	s.state = StateActive
	s.slot = slot
	s.mu.Unlock()
}

// submit pushes one frame through the reorder buffer and fans any released
// contiguous run out to watchers. Returns the frames released, nil when the
// frame is held or the session is no longer active.
func (s *Session) submit(f Frame) []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil
	}
	run := s.buffer.accept(f)
	for _, out := range run {
		s.delivered = append(s.delivered, out)
		s.fanOutLocked(out)
	}
	return run
}

// fanOutLocked delivers one frame to every watcher. A watcher whose buffer is
// full is detached and its channel closed; the client reattaches and replays.
func (s *Session) fanOutLocked(f Frame) {
	for w := range s.watchers {
		select {
		case w.ch <- f:
		default:
			delete(s.watchers, w)
			w.closed = true
			close(w.ch)
		}
	}
}

// finish transitions the session to a terminal state and closes all watcher
// channels. Idempotent.
func (s *Session) finish(state State, cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCompleted || s.state == StateCanceled {
		return
	}
	s.state = state
	s.cancelCause = cause
	for w := range s.watchers {
		delete(s.watchers, w)
		w.closed = true
		close(w.ch)
	}
}

// Watch replays every frame delivered so far and then streams live frames.
// The channel is closed when the session reaches a terminal state or the
// watcher falls too far behind. The returned stop function detaches the
// watcher; it is safe to call more than once.
func (s *Session) Watch() (<-chan Frame, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &watcher{ch: make(chan Frame, s.watcherCap+len(s.delivered))}
	for _, f := range s.delivered {
		w.ch <- f
	}
	if s.state == StateCompleted || s.state == StateCanceled {
		w.closed = true
		close(w.ch)
		return w.ch, func() {}
	}
	s.watchers[w] = struct{}{}

	stop := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[w]; ok {
			delete(s.watchers, w)
			w.closed = true
			close(w.ch)
		}
	}
	return w.ch, stop
}

// Frames returns a copy of the frames delivered so far, in sequence order.
func (s *Session) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.delivered...)
}

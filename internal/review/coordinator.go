package review

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/danwashusen/ctrl-freaq-sub008/internal/admission"
	"github.com/danwashusen/ctrl-freaq-sub008/internal/telemetry"
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

// ReasonAuthorCancelled is the cancellation reason for an explicit author
// cancel request.
const ReasonAuthorCancelled = "author_cancelled"

// ReasonShutdown is used when the coordinator closes with sessions in flight.
const ReasonShutdown = "coordinator_shutdown"

var (
	ErrUnknownSession   = errors.New("review: unknown session")
	ErrSessionNotActive = errors.New("review: session not active")
	ErrClosed           = errors.New("review: coordinator closed")
)

// Config tunes the coordinator. Zero values fall back to safe defaults.
type Config struct {
	// LiveStreamingEnabled selects live delivery; when false every session
	// streams through the fallback synthesizer.
	LiveStreamingEnabled bool
	// FallbackTokenPace spaces synthesized token frames.
	FallbackTokenPace time.Duration
	// WatcherBufferLimit is the per-watcher channel capacity; a watcher that
	// falls this far behind is detached.
	WatcherBufferLimit int
}

// StartResult reports the admission outcome for a new review session.
type StartResult struct {
	SessionID         string                `json:"sessionId"`
	Disposition       admission.Disposition `json:"disposition"`
	ConcurrencySlot   int                   `json:"concurrencySlot,omitempty"`
	ReplacedSessionID string                `json:"replacedSessionId,omitempty"`
	Delivery          DeliveryMode          `json:"delivery"`
	RetryOf           string                `json:"retryOf,omitempty"`
}

// Coordinator gates review sessions through the admission queue and owns
// every session's ordered frame stream.
type Coordinator struct {
	cfg    Config
	queue  *admission.Queue
	sink   telemetry.Sink
	clk    clock.Clock
	logger logpkg.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock injects a clock, used by tests to drive fallback pacing.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clk = clk }
}

// WithTelemetry sets the sink receiving disposition-change events.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// WithLogger sets the coordinator logger.
func WithLogger(logger logpkg.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// NewCoordinator builds a Coordinator over a fresh admission queue.
func NewCoordinator(cfg Config, opts ...Option) *Coordinator {
	if cfg.FallbackTokenPace <= 0 {
		cfg.FallbackTokenPace = 40 * time.Millisecond
	}
	if cfg.WatcherBufferLimit <= 0 {
		cfg.WatcherBufferLimit = 256
	}
	c := &Coordinator{
		cfg:      cfg,
		sink:     telemetry.NopSink{},
		clk:      clock.New(),
		logger:   logpkg.NewLogger(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("review")
	c.queue = admission.NewQueue(c.handleCancel)
	return c
}

// StartReview admits a new session for resourceKey. The returned disposition
// is "started" when the resource was free, else "pending"; a pending request
// displaces any request already parked for the resource.
func (c *Coordinator) StartReview(resourceKey string) (StartResult, error) {
	return c.start(resourceKey, "")
}

// RetryReview starts a fresh session on the same resource as a previous one,
// carrying the link for telemetry continuity. The previous session must be
// known; it does not need to be active.
func (c *Coordinator) RetryReview(previousSessionID string) (StartResult, error) {
	c.mu.Lock()
	prev, ok := c.sessions[previousSessionID]
	c.mu.Unlock()
	if !ok {
		return StartResult{}, ErrUnknownSession
	}
	res, err := c.start(prev.ResourceKey, previousSessionID)
	if err != nil {
		return StartResult{}, err
	}
	c.sink.LogReview(telemetry.Event{
		Type:        telemetry.EventRetried,
		SessionID:   res.SessionID,
		ResourceKey: prev.ResourceKey,
		RetryOf:     previousSessionID,
		TimestampMs: c.clk.Now().UnixMilli(),
	})
	return res, nil
}

func (c *Coordinator) start(resourceKey, retryOf string) (StartResult, error) {
	delivery := DeliveryLive
	if !c.cfg.LiveStreamingEnabled {
		delivery = DeliveryFallback
	}
	sess := newSession(uuid.NewString(), resourceKey, retryOf, delivery, c.cfg.WatcherBufferLimit)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return StartResult{}, ErrClosed
	}
	c.sessions[sess.ID] = sess
	c.mu.Unlock()

	res := c.queue.Enqueue(admission.StreamRequest{
		SessionID:   sess.ID,
		ResourceKey: resourceKey,
		EnqueuedAt:  c.clk.Now(),
	})
	if res.Disposition == admission.DispositionStarted {
		sess.activate(res.ConcurrencySlot)
	}
	c.sink.LogReview(telemetry.Event{
		Type:            telemetry.EventQueued,
		SessionID:       sess.ID,
		ResourceKey:     resourceKey,
		ConcurrencySlot: res.ConcurrencySlot,
		TimestampMs:     c.clk.Now().UnixMilli(),
	})
	c.logger.Debug("review.start",
		logpkg.Str("session_id", sess.ID),
		logpkg.Str("resource_key", resourceKey),
		logpkg.Str("disposition", string(res.Disposition)),
		logpkg.Int("concurrency_slot", res.ConcurrencySlot),
	)
	return StartResult{
		SessionID:         sess.ID,
		Disposition:       res.Disposition,
		ConcurrencySlot:   res.ConcurrencySlot,
		ReplacedSessionID: res.ReplacedSessionID,
		Delivery:          delivery,
		RetryOf:           retryOf,
	}, nil
}

// Session returns the session for id, if known.
func (c *Coordinator) Session(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return s, ok
}

// NextSequence allocates the next frame sequence for an active session.
func (c *Coordinator) NextSequence(sessionID string) (uint64, error) {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return 0, ErrUnknownSession
	}
	if sess.State() != StateActive {
		return 0, ErrSessionNotActive
	}
	return sess.NextSequence(), nil
}

// Submit hands one produced frame to the session. Frames may arrive out of
// sequence order; they are held until the gap fills and only contiguous runs
// reach watchers. Returns the frames released by this submission.
func (c *Coordinator) Submit(sessionID string, seq uint64, kind FrameKind, payload []byte) ([]Frame, error) {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	if sess.State() != StateActive {
		return nil, ErrSessionNotActive
	}
	f := Frame{
		Sequence:    seq,
		Kind:        kind,
		Payload:     payload,
		Delivery:    sess.Delivery(),
		TimestampMs: c.clk.Now().UnixMilli(),
	}
	return sess.submit(f), nil
}

// DegradeToFallback flips the session into fallback delivery after a
// transport or streaming failure. The session keeps its slot, state, and
// sequence; only the delivery marker changes, so the remaining frames reach
// a reconnecting reader marked fallback instead of the failure propagating.
// Reports whether the mode changed.
func (c *Coordinator) DegradeToFallback(sessionID string) (bool, error) {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return false, ErrUnknownSession
	}
	if !sess.degrade() {
		return false, nil
	}
	c.sink.LogReview(telemetry.Event{
		Type:            telemetry.EventDegraded,
		SessionID:       sessionID,
		ResourceKey:     sess.ResourceKey,
		ConcurrencySlot: sess.ConcurrencySlot(),
		TimestampMs:     c.clk.Now().UnixMilli(),
	})
	c.logger.Warn("review.degrade",
		logpkg.Str("session_id", sessionID),
		logpkg.Str("resource_key", sess.ResourceKey),
	)
	return true, nil
}

// CancelReview removes the session from the queue with the given reason. The
// cancel handler finishes the session and emits telemetry; a promoted pending
// session is activated before this returns. Unknown ids are a no-op.
func (c *Coordinator) CancelReview(sessionID, reason string) admission.CancellationResult {
	if reason == "" {
		reason = ReasonAuthorCancelled
	}
	res := c.queue.Cancel(sessionID, reason)
	if res.Promoted != nil {
		c.promote(res.Promoted)
	}
	return res
}

// CompleteReview releases the active session and activates any pending
// session for the same resource, whose sequence starts fresh from 1. Unknown
// or already-finished ids return nil.
func (c *Coordinator) CompleteReview(sessionID string) *admission.CompletionResult {
	res := c.queue.Complete(sessionID)
	if res == nil {
		return nil
	}

	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if ok {
		sess.finish(StateCompleted, "")
		c.sink.LogReview(telemetry.Event{
			Type:            telemetry.EventCompleted,
			SessionID:       sessionID,
			ResourceKey:     sess.ResourceKey,
			ConcurrencySlot: sess.ConcurrencySlot(),
			TimestampMs:     c.clk.Now().UnixMilli(),
		})
	}
	if res.Activated != nil {
		c.promote(res.Activated)
	}
	return res
}

// QueueSnapshot exposes the admission queue's diagnostic view.
func (c *Coordinator) QueueSnapshot() (active, pending map[string]admission.Entry) {
	return c.queue.Snapshot()
}

// Close cancels every session still in the queue. StartReview fails with
// ErrClosed afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.queue.Cancel(id, ReasonShutdown)
	}
}

// promote activates a pending entry the queue just moved to active.
func (c *Coordinator) promote(entry *admission.Entry) {
	c.mu.Lock()
	sess, ok := c.sessions[entry.SessionID]
	c.mu.Unlock()
	if !ok {
		return
	}
	sess.activate(entry.ConcurrencySlot)
	c.sink.LogReview(telemetry.Event{
		Type:            telemetry.EventPromoted,
		SessionID:       entry.SessionID,
		ResourceKey:     entry.ResourceKey,
		ConcurrencySlot: entry.ConcurrencySlot,
		TimestampMs:     c.clk.Now().UnixMilli(),
	})
	c.logger.Debug("review.promote",
		logpkg.Str("session_id", entry.SessionID),
		logpkg.Str("resource_key", entry.ResourceKey),
		logpkg.Int("concurrency_slot", entry.ConcurrencySlot),
	)
}

// handleCancel observes queue removals. It runs outside the queue lock so it
// may take the coordinator lock safely.
func (c *Coordinator) handleCancel(n admission.CancelNotice) {
	c.mu.Lock()
	sess, ok := c.sessions[n.SessionID]
	c.mu.Unlock()

	evType := telemetry.EventCanceled
	if n.Reason == admission.ReasonReplaced {
		evType = telemetry.EventReplaced
	}
	ev := telemetry.Event{
		Type:        evType,
		SessionID:   n.SessionID,
		ResourceKey: n.ResourceKey,
		Reason:      n.Reason,
		TimestampMs: c.clk.Now().UnixMilli(),
	}
	if ok {
		sess.finish(StateCanceled, n.Reason)
		ev.ConcurrencySlot = sess.ConcurrencySlot()
	}
	c.sink.LogReview(ev)
	c.logger.Debug("review.cancel",
		logpkg.Str("session_id", n.SessionID),
		logpkg.Str("resource_key", n.ResourceKey),
		logpkg.Str("state", string(n.State)),
		logpkg.Str("reason", n.Reason),
	)
}

// RunFallback synthesizes the session's frame sequence through the fallback
// path and completes the session. See fallback.go.
func (c *Coordinator) RunFallback(ctx context.Context, sessionID string, script FallbackScript) error {
	return c.runFallback(ctx, sessionID, script)
}

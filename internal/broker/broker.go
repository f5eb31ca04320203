package broker

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

const defaultHeartbeatInterval = 15 * time.Second

// Config fixes a broker instance's retention and cadence. Immutable once the
// broker is constructed.
type Config struct {
	// ReplayLimit is the number of envelopes retained per (topic, resource)
	// pair for replay.
	ReplayLimit int
	// HeartbeatInterval is the idle heartbeat cadence per subscriber.
	HeartbeatInterval time.Duration
}

// SubscribeParams describes one long-lived subscriber connection.
type SubscribeParams struct {
	ConnectionID string
	UserID       string
	WorkspaceID  string
	Filters      []TopicFilter
	// LastEventID, when set, anchors synchronous replay before live delivery
	// begins. An unknown or expired anchor replays nothing.
	LastEventID string
	// Filter is an optional CEL expression gating delivery per envelope.
	Filter string
	// Send delivers one envelope to the transport. It runs on the broker's
	// delivery path and must not block; transports decouple slow writers with
	// their own buffering.
	Send func(Envelope) error
}

// PublishParams describes one published event.
type PublishParams struct {
	WorkspaceID string
	Topic       string
	ResourceID  string
	Payload     []byte
}

type streamKey struct {
	topic    string
	resource string
}

// stream holds the mutable per-(topic, resource) state: the last issued
// sequence and the bounded replay ring, oldest first.
type stream struct {
	lastSeq uint64
	ring    []Envelope
}

type subscription struct {
	params SubscribeParams
	filter celFilter

	// sendMu serializes transport writes so heartbeats cannot interleave with
	// a fan-out and already-decided sequence order is preserved.
	sendMu        sync.Mutex
	sentSinceTick bool

	done     chan struct{}
	stopOnce sync.Once
}

// deliver writes one envelope to the subscriber and marks the idle flag.
func (s *subscription) deliver(e Envelope) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.sentSinceTick = true
	_ = s.params.Send(e)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	b   *Broker
	sub *subscription
}

// Unsubscribe detaches the connection and stops its heartbeat timer.
// Idempotent.
func (h *Subscription) Unsubscribe() {
	h.sub.stopOnce.Do(func() {
		close(h.sub.done)
		h.b.remove(h.sub)
	})
}

// Broker is a topic+resource-scoped publish/subscribe hub. Sequence
// allocation, ring mutation, subscriber registration, and fan-out are all
// serialized behind one mutex; resource cardinality is small (sections of
// one document project), so a single lock is the whole concurrency story and
// it is what makes replay-then-live atomic.
type Broker struct {
	cfg    Config
	clk    clock.Clock
	logger logpkg.Logger

	mu      sync.Mutex
	streams map[streamKey]*stream
	subs    []*subscription
	closed  bool
}

// ErrClosed is returned by Subscribe and Publish after Close.
var ErrClosed = errors.New("broker: closed")

// New constructs a Broker. A nil clock means wall time; a nil logger means a
// default one.
func New(cfg Config, clk clock.Clock, logger logpkg.Logger) *Broker {
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = 64
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("broker"))
	}
	return &Broker{
		cfg:     cfg,
		clk:     clk,
		logger:  logger,
		streams: make(map[streamKey]*stream),
	}
}

// Subscribe registers the connection, replays buffered envelopes newer than
// the LastEventID anchor for matching filters, and starts the idle heartbeat
// timer. Replay and registration happen under the broker lock, so the
// transition from replayed to live envelopes has no gap and no duplicate.
func (b *Broker) Subscribe(p SubscribeParams) (*Subscription, error) {
	filter, err := newCELFilter(p.Filter)
	if err != nil {
		return nil, err
	}
	sub := &subscription{
		params: p,
		filter: filter,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	replayed := 0
	for _, e := range b.replayEnvelopes(p) {
		if sub.filter.Eval(e) {
			sub.deliver(e)
			replayed++
		}
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go b.heartbeatLoop(sub)

	b.logger.With(
		logpkg.Str("connection", p.ConnectionID),
		logpkg.Str("workspace", p.WorkspaceID),
		logpkg.Int("filters", len(p.Filters)),
		logpkg.Int("replayed", replayed),
	).Debug("broker.subscribe")
	return &Subscription{b: b, sub: sub}, nil
}

// replayEnvelopes collects buffered envelopes to redeliver for a new
// subscription, grouped by filter in ring (ascending sequence) order. The
// anchor's sequence threshold applies to the anchor's own pair; other
// matching pairs replay their full ring, since their sequences are
// independent of the anchor's. Replay enforces the same workspace match as
// live fan-out. Caller holds b.mu.
func (b *Broker) replayEnvelopes(p SubscribeParams) []Envelope {
	if p.LastEventID == "" {
		return nil
	}
	anchorTopic, anchorResource, anchorSeq, err := ParseEventID(p.LastEventID)
	if err != nil {
		// Malformed anchors mean "nothing to replay", not a failure.
		return nil
	}
	var out []Envelope
	for _, f := range p.Filters {
		st, ok := b.streams[streamKey{topic: f.Topic, resource: f.ResourceID}]
		if !ok {
			continue
		}
		after := uint64(0)
		if f.Topic == anchorTopic && f.ResourceID == anchorResource {
			after = anchorSeq
		}
		for _, e := range st.ring {
			if e.WorkspaceID != p.WorkspaceID {
				continue
			}
			if e.Sequence > after {
				out = append(out, e)
			}
		}
	}
	return out
}

// Publish allocates the next sequence for (topic, resource), appends the
// envelope to the pair's replay ring, and delivers it synchronously to every
// matching live subscriber in registration order.
func (b *Broker) Publish(p PublishParams) (Envelope, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Envelope{}, ErrClosed
	}
	key := streamKey{topic: p.Topic, resource: p.ResourceID}
	st, ok := b.streams[key]
	if !ok {
		st = &stream{}
		b.streams[key] = st
	}
	st.lastSeq++
	env := Envelope{
		Topic:       p.Topic,
		ResourceID:  p.ResourceID,
		Sequence:    st.lastSeq,
		Kind:        KindEvent,
		Payload:     append([]byte(nil), p.Payload...),
		WorkspaceID: p.WorkspaceID,
		TimestampMs: b.clk.Now().UnixMilli(),
	}
	st.ring = append(st.ring, env)
	if len(st.ring) > b.cfg.ReplayLimit {
		st.ring = st.ring[len(st.ring)-b.cfg.ReplayLimit:]
	}
	delivered := 0
	for _, sub := range b.subs {
		if sub.params.WorkspaceID != p.WorkspaceID {
			continue
		}
		for _, f := range sub.params.Filters {
			if f.matches(env) {
				if sub.filter.Eval(env) {
					sub.deliver(env)
					delivered++
				}
				break
			}
		}
	}
	b.mu.Unlock()

	b.logger.With(
		logpkg.Str("topic", p.Topic),
		logpkg.Str("resource", p.ResourceID),
		logpkg.Int64("seq", int64(env.Sequence)),
		logpkg.Int("delivered", delivered),
	).Debug("broker.publish")
	return env, nil
}

// Snapshot reports the last issued sequence per pair, for diagnostics.
func (b *Broker) Snapshot() map[string]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]uint64, len(b.streams))
	for k, st := range b.streams {
		out[k.topic+":"+k.resource] = st.lastSeq
	}
	return out
}

// Close detaches every subscriber and rejects further calls. The owner calls
// this once on shutdown.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		sub.stopOnce.Do(func() { close(sub.done) })
	}
}

func (b *Broker) remove(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// heartbeatLoop ticks at the configured cadence and emits a heartbeat
// envelope only when nothing else was sent since the previous tick.
func (b *Broker) heartbeatLoop(sub *subscription) {
	ticker := b.clk.Ticker(b.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			sub.sendMu.Lock()
			idle := !sub.sentSinceTick
			sub.sentSinceTick = false
			if idle {
				_ = sub.params.Send(Envelope{
					Kind:        KindHeartbeat,
					WorkspaceID: sub.params.WorkspaceID,
					TimestampMs: b.clk.Now().UnixMilli(),
				})
			}
			sub.sendMu.Unlock()
		}
	}
}

package review

import (
	"sync"
	"testing"
	"time"

	"github.com/danwashusen/ctrl-freaq-sub008/internal/admission"
	"github.com/danwashusen/ctrl-freaq-sub008/internal/telemetry"
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

type recordSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (s *recordSink) LogReview(ev telemetry.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) byType(t telemetry.EventType) []telemetry.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func quietLogger() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
}

func newTestCoordinator(t *testing.T, sink telemetry.Sink) *Coordinator {
	t.Helper()
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	c := NewCoordinator(Config{LiveStreamingEnabled: true, WatcherBufferLimit: 16},
		WithTelemetry(sink),
		WithLogger(quietLogger()),
	)
	t.Cleanup(c.Close)
	return c
}

func TestStartReviewFirstSessionStarts(t *testing.T) {
	c := newTestCoordinator(t, nil)

	res, err := c.StartReview("doc-1/sec-a")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Disposition != admission.DispositionStarted {
		t.Fatalf("disposition = %q", res.Disposition)
	}
	if res.ConcurrencySlot != 1 {
		t.Fatalf("slot = %d", res.ConcurrencySlot)
	}
	sess, ok := c.Session(res.SessionID)
	if !ok || sess.State() != StateActive {
		t.Fatalf("session missing or not active")
	}
}

func TestReplacePendingAndPromote(t *testing.T) {
	sink := &recordSink{}
	c := newTestCoordinator(t, sink)

	first, _ := c.StartReview("sec-a")
	second, _ := c.StartReview("sec-a")
	if second.Disposition != admission.DispositionPending || second.ReplacedSessionID != "" {
		t.Fatalf("second = %+v", second)
	}
	third, _ := c.StartReview("sec-a")
	if third.ReplacedSessionID != second.SessionID {
		t.Fatalf("third replaced %q, want %q", third.ReplacedSessionID, second.SessionID)
	}

	replaced := sink.byType(telemetry.EventReplaced)
	if len(replaced) != 1 || replaced[0].SessionID != second.SessionID {
		t.Fatalf("replaced events = %+v", replaced)
	}
	if s, _ := c.Session(second.SessionID); s.State() != StateCanceled {
		t.Fatalf("replaced session state = %q", s.State())
	}

	done := c.CompleteReview(first.SessionID)
	if done == nil || done.Activated == nil {
		t.Fatalf("complete = %+v", done)
	}
	if done.Activated.SessionID != third.SessionID || done.Activated.ConcurrencySlot != 1 {
		t.Fatalf("activated = %+v", done.Activated)
	}

	promoted := sink.byType(telemetry.EventPromoted)
	if len(promoted) != 1 || promoted[0].SessionID != third.SessionID {
		t.Fatalf("promoted events = %+v", promoted)
	}

	// The promoted session delivers a fresh sequence from 1.
	sess, _ := c.Session(third.SessionID)
	if sess.State() != StateActive {
		t.Fatalf("promoted session state = %q", sess.State())
	}
	seq, err := c.NextSequence(third.SessionID)
	if err != nil || seq != 1 {
		t.Fatalf("next sequence = %d, %v", seq, err)
	}
}

func TestConcurrencySlotsAcrossResources(t *testing.T) {
	c := newTestCoordinator(t, nil)

	a, _ := c.StartReview("sec-a")
	b, _ := c.StartReview("sec-b")
	if a.ConcurrencySlot != 1 || b.ConcurrencySlot != 2 {
		t.Fatalf("slots = %d, %d", a.ConcurrencySlot, b.ConcurrencySlot)
	}

	c.CompleteReview(a.SessionID)
	d, _ := c.StartReview("sec-c")
	if d.ConcurrencySlot != 2 {
		t.Fatalf("slot after release = %d, want 2", d.ConcurrencySlot)
	}
}

func TestSubmitOutOfOrderDeliversContiguous(t *testing.T) {
	c := newTestCoordinator(t, nil)
	res, _ := c.StartReview("sec-a")

	ch, stop := func() (<-chan Frame, func()) {
		sess, _ := c.Session(res.SessionID)
		return sess.Watch()
	}()
	defer stop()

	if run, err := c.Submit(res.SessionID, 2, KindToken, []byte(`{"text":"world"}`)); err != nil || run != nil {
		t.Fatalf("early frame: run=%v err=%v", run, err)
	}
	run, err := c.Submit(res.SessionID, 1, KindToken, []byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(run) != 2 {
		t.Fatalf("released %d frames, want 2", len(run))
	}

	for want := uint64(1); want <= 2; want++ {
		select {
		case f := <-ch:
			if f.Sequence != want {
				t.Fatalf("watcher saw sequence %d, want %d", f.Sequence, want)
			}
			if f.Delivery != DeliveryLive {
				t.Fatalf("delivery = %q", f.Delivery)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for sequence %d", want)
		}
	}
}

func TestWatchReplaysThenCloses(t *testing.T) {
	c := newTestCoordinator(t, nil)
	res, _ := c.StartReview("sec-a")

	for seq := uint64(1); seq <= 3; seq++ {
		if _, err := c.Submit(res.SessionID, seq, KindToken, nil); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	sess, _ := c.Session(res.SessionID)
	ch, stop := sess.Watch()
	defer stop()
	for want := uint64(1); want <= 3; want++ {
		f, ok := <-ch
		if !ok || f.Sequence != want {
			t.Fatalf("replay frame = %+v ok=%v want seq %d", f, ok, want)
		}
	}

	c.CompleteReview(res.SessionID)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel close after completion")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after completion")
	}

	// A watcher attaching after the terminal state still replays.
	ch2, stop2 := sess.Watch()
	defer stop2()
	count := 0
	for range ch2 {
		count++
	}
	if count != 3 {
		t.Fatalf("late watcher replayed %d frames, want 3", count)
	}
}

func TestCancelActivePromotesPending(t *testing.T) {
	sink := &recordSink{}
	c := newTestCoordinator(t, sink)

	first, _ := c.StartReview("sec-a")
	second, _ := c.StartReview("sec-a")

	res := c.CancelReview(first.SessionID, ReasonAuthorCancelled)
	if !res.Released || res.Promoted == nil {
		t.Fatalf("cancel = %+v", res)
	}
	if res.Promoted.SessionID != second.SessionID || res.Promoted.ConcurrencySlot != 1 {
		t.Fatalf("promoted = %+v", res.Promoted)
	}

	canceled := sink.byType(telemetry.EventCanceled)
	if len(canceled) != 1 || canceled[0].Reason != ReasonAuthorCancelled {
		t.Fatalf("canceled events = %+v", canceled)
	}

	// Submitting for the canceled session is rejected.
	if _, err := c.Submit(first.SessionID, 1, KindToken, nil); err != ErrSessionNotActive {
		t.Fatalf("submit after cancel: %v", err)
	}
}

func TestUnknownSessionOperationsAreNoops(t *testing.T) {
	c := newTestCoordinator(t, nil)

	if res := c.CompleteReview("nope"); res != nil {
		t.Fatalf("complete unknown = %+v", res)
	}
	if res := c.CancelReview("nope", "whatever"); res.Released {
		t.Fatalf("cancel unknown = %+v", res)
	}
	if _, err := c.Submit("nope", 1, KindToken, nil); err != ErrUnknownSession {
		t.Fatalf("submit unknown: %v", err)
	}
}

func TestRetryReviewLinksPrevious(t *testing.T) {
	sink := &recordSink{}
	c := newTestCoordinator(t, sink)

	first, _ := c.StartReview("sec-a")
	c.CancelReview(first.SessionID, ReasonAuthorCancelled)

	retry, err := c.RetryReview(first.SessionID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.RetryOf != first.SessionID {
		t.Fatalf("retry link = %q", retry.RetryOf)
	}
	if retry.Disposition != admission.DispositionStarted {
		t.Fatalf("retry disposition = %q", retry.Disposition)
	}

	retried := sink.byType(telemetry.EventRetried)
	if len(retried) != 1 || retried[0].RetryOf != first.SessionID {
		t.Fatalf("retried events = %+v", retried)
	}

	if _, err := c.RetryReview("nope"); err != ErrUnknownSession {
		t.Fatalf("retry unknown: %v", err)
	}
}

func TestTransportFailureDegradesToFallback(t *testing.T) {
	sink := &recordSink{}
	c := newTestCoordinator(t, sink)

	res, _ := c.StartReview("sec-a")
	if res.Delivery != DeliveryLive {
		t.Fatalf("delivery = %q", res.Delivery)
	}
	if _, err := c.Submit(res.SessionID, 1, KindToken, []byte(`{"text":"hello"}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	changed, err := c.DegradeToFallback(res.SessionID)
	if err != nil || !changed {
		t.Fatalf("degrade = %v, %v", changed, err)
	}
	sess, _ := c.Session(res.SessionID)
	if sess.Delivery() != DeliveryFallback {
		t.Fatalf("delivery after degrade = %q", sess.Delivery())
	}
	if sess.State() != StateActive {
		t.Fatalf("state after degrade = %q", sess.State())
	}

	// The session's sequence keeps running; only the marker changes.
	run, err := c.Submit(res.SessionID, 2, KindToken, []byte(`{"text":"world"}`))
	if err != nil || len(run) != 1 {
		t.Fatalf("submit after degrade: run=%v err=%v", run, err)
	}
	if run[0].Delivery != DeliveryFallback {
		t.Fatalf("frame delivery = %q", run[0].Delivery)
	}
	frames := sess.Frames()
	if frames[0].Delivery != DeliveryLive {
		t.Fatalf("earlier frame rewritten to %q", frames[0].Delivery)
	}

	degraded := sink.byType(telemetry.EventDegraded)
	if len(degraded) != 1 || degraded[0].SessionID != res.SessionID {
		t.Fatalf("degraded events = %+v", degraded)
	}

	// Degrading twice is a no-op, unknown sessions are an error.
	if changed, err := c.DegradeToFallback(res.SessionID); err != nil || changed {
		t.Fatalf("second degrade = %v, %v", changed, err)
	}
	if _, err := c.DegradeToFallback("nope"); err != ErrUnknownSession {
		t.Fatalf("degrade unknown: %v", err)
	}
}

func TestSlowWatcherDetached(t *testing.T) {
	c := NewCoordinator(Config{LiveStreamingEnabled: true, WatcherBufferLimit: 2},
		WithLogger(quietLogger()),
	)
	defer c.Close()

	res, _ := c.StartReview("sec-a")
	sess, _ := c.Session(res.SessionID)
	ch, stop := sess.Watch()
	defer stop()

	// Fill the watcher buffer without draining, then overflow it.
	for seq := uint64(1); seq <= 3; seq++ {
		if _, err := c.Submit(res.SessionID, seq, KindToken, nil); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	got := 0
	for range ch {
		got++
	}
	if got != 2 {
		t.Fatalf("slow watcher received %d frames before close, want 2", got)
	}

	// The stream itself keeps all frames for replay.
	if frames := sess.Frames(); len(frames) != 3 {
		t.Fatalf("retained %d frames, want 3", len(frames))
	}
}

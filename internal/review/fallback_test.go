package review

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestFallbackSynthesizesOrderedSequence(t *testing.T) {
	mock := clock.NewMock()
	c := NewCoordinator(Config{
		LiveStreamingEnabled: false,
		FallbackTokenPace:    50 * time.Millisecond,
		WatcherBufferLimit:   32,
	}, WithClock(mock), WithLogger(quietLogger()))
	defer c.Close()

	res, err := c.StartReview("sec-a")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Delivery != DeliveryFallback {
		t.Fatalf("delivery = %q", res.Delivery)
	}

	sess, _ := c.Session(res.SessionID)
	ch, stop := sess.Watch()
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- c.RunFallback(context.Background(), res.SessionID, FallbackScript{
			States: []string{"analyzing", "drafting"},
			Tokens: []string{"alpha", "beta", "gamma"},
		})
	}()

	// Each Add releases one paced token frame once the timer is armed.
	for i := 0; i < 2; i++ {
		time.Sleep(20 * time.Millisecond)
		mock.Add(50 * time.Millisecond)
	}

	if err := <-done; err != nil {
		t.Fatalf("fallback: %v", err)
	}

	var frames []Frame
	for f := range ch {
		frames = append(frames, f)
	}
	// 2 states + 3 tokens + terminal progress.
	if len(frames) != 6 {
		t.Fatalf("got %d frames, want 6", len(frames))
	}
	for i, f := range frames {
		if f.Sequence != uint64(i+1) {
			t.Fatalf("frame %d sequence = %d", i, f.Sequence)
		}
		if f.Delivery != DeliveryFallback {
			t.Fatalf("frame %d delivery = %q", i, f.Delivery)
		}
	}
	if frames[0].Kind != KindState || frames[2].Kind != KindToken {
		t.Fatalf("frame kinds = %q, %q", frames[0].Kind, frames[2].Kind)
	}

	last := frames[len(frames)-1]
	if last.Kind != KindProgress || !strings.Contains(string(last.Payload), "awaiting-approval") {
		t.Fatalf("terminal frame = %+v", last)
	}

	if sess.State() != StateCompleted {
		t.Fatalf("session state = %q, want completed", sess.State())
	}
}

func TestFallbackAbortsOnContextCancel(t *testing.T) {
	mock := clock.NewMock()
	c := NewCoordinator(Config{
		LiveStreamingEnabled: false,
		FallbackTokenPace:    50 * time.Millisecond,
		WatcherBufferLimit:   32,
	}, WithClock(mock), WithLogger(quietLogger()))
	defer c.Close()

	res, _ := c.StartReview("sec-a")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- c.RunFallback(ctx, res.SessionID, FallbackScript{
			Tokens: []string{"alpha", "beta"},
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-done; err != context.Canceled {
		t.Fatalf("fallback err = %v", err)
	}
	sess, _ := c.Session(res.SessionID)
	if sess.State() != StateActive {
		t.Fatalf("session state = %q, aborted run must not complete the session", sess.State())
	}
}

func TestFallbackRequiresActiveSession(t *testing.T) {
	c := newTestCoordinator(t, nil)

	first, _ := c.StartReview("sec-a")
	second, _ := c.StartReview("sec-a")
	_ = first

	err := c.RunFallback(context.Background(), second.SessionID, FallbackScript{Tokens: []string{"x"}})
	if err != ErrSessionNotActive {
		t.Fatalf("pending session fallback err = %v", err)
	}
	if err := c.RunFallback(context.Background(), "nope", FallbackScript{}); err != ErrUnknownSession {
		t.Fatalf("unknown session fallback err = %v", err)
	}
}

package admission

import (
	"testing"
	"time"
)

func req(session, resource string) StreamRequest {
	return StreamRequest{SessionID: session, ResourceKey: resource, EnqueuedAt: time.Now()}
}

func TestEnqueueStartsWhenResourceFree(t *testing.T) {
	q := NewQueue(nil)
	res := q.Enqueue(req("session-1", "section-a"))
	if res.Disposition != DispositionStarted {
		t.Fatalf("disposition: %s", res.Disposition)
	}
	if res.ConcurrencySlot != 1 {
		t.Fatalf("slot: %d", res.ConcurrencySlot)
	}
	if res.ReplacedSessionID != "" {
		t.Fatalf("unexpected replaced id: %q", res.ReplacedSessionID)
	}
}

func TestSecondEnqueueIsPending(t *testing.T) {
	q := NewQueue(nil)
	q.Enqueue(req("session-1", "section-a"))
	res := q.Enqueue(req("session-2", "section-a"))
	if res.Disposition != DispositionPending {
		t.Fatalf("disposition: %s", res.Disposition)
	}
	if res.ReplacedSessionID != "" {
		t.Fatalf("unexpected replaced id: %q", res.ReplacedSessionID)
	}
	active, pending := q.Snapshot()
	if len(active) != 1 || len(pending) != 1 {
		t.Fatalf("active=%d pending=%d", len(active), len(pending))
	}
}

func TestThirdEnqueueReplacesPending(t *testing.T) {
	var notices []CancelNotice
	q := NewQueue(func(n CancelNotice) { notices = append(notices, n) })
	q.Enqueue(req("session-1", "section-a"))
	q.Enqueue(req("session-2", "section-a"))
	res := q.Enqueue(req("session-3", "section-a"))
	if res.Disposition != DispositionPending {
		t.Fatalf("disposition: %s", res.Disposition)
	}
	if res.ReplacedSessionID != "session-2" {
		t.Fatalf("replaced id: %q", res.ReplacedSessionID)
	}
	if len(notices) != 1 {
		t.Fatalf("notices: %d", len(notices))
	}
	n := notices[0]
	if n.SessionID != "session-2" || n.Reason != ReasonReplaced || n.State != StatePending {
		t.Fatalf("notice: %+v", n)
	}
	_, pending := q.Snapshot()
	if pending["section-a"].SessionID != "session-3" {
		t.Fatalf("pending: %+v", pending)
	}
}

func TestConcurrencySlotCounting(t *testing.T) {
	q := NewQueue(nil)
	if res := q.Enqueue(req("a1", "section-a")); res.ConcurrencySlot != 1 {
		t.Fatalf("a slot: %d", res.ConcurrencySlot)
	}
	if res := q.Enqueue(req("b1", "section-b")); res.ConcurrencySlot != 2 {
		t.Fatalf("b slot: %d", res.ConcurrencySlot)
	}
	if out := q.Complete("a1"); out == nil || out.ReleasedSessionID != "a1" {
		t.Fatalf("complete a1: %+v", out)
	}
	// Slots count parallelism right now, so the freed number is reused.
	if res := q.Enqueue(req("c1", "section-c")); res.ConcurrencySlot != 2 {
		t.Fatalf("c slot: %d", res.ConcurrencySlot)
	}
}

func TestCompletePromotesPending(t *testing.T) {
	q := NewQueue(nil)
	q.Enqueue(req("session-1", "section-a"))
	q.Enqueue(req("session-2", "section-a"))
	out := q.Complete("session-1")
	if out == nil || out.Activated == nil {
		t.Fatalf("expected promotion, got %+v", out)
	}
	if out.Activated.SessionID != "session-2" || out.Activated.ConcurrencySlot != 1 {
		t.Fatalf("activated: %+v", out.Activated)
	}
	active, pending := q.Snapshot()
	if len(pending) != 0 {
		t.Fatalf("pending not drained: %+v", pending)
	}
	if active["section-a"].SessionID != "session-2" {
		t.Fatalf("active: %+v", active)
	}
}

func TestCompleteUnknownSessionIsNoop(t *testing.T) {
	q := NewQueue(nil)
	if out := q.Complete("ghost"); out != nil {
		t.Fatalf("expected nil, got %+v", out)
	}
	q.Enqueue(req("session-1", "section-a"))
	q.Complete("session-1")
	if out := q.Complete("session-1"); out != nil {
		t.Fatalf("second complete should be nil, got %+v", out)
	}
}

func TestCancelActivePromotesPending(t *testing.T) {
	var notices []CancelNotice
	q := NewQueue(func(n CancelNotice) { notices = append(notices, n) })
	q.Enqueue(req("session-1", "section-a"))
	q.Enqueue(req("session-2", "section-a"))
	out := q.Cancel("session-1", "author_cancelled")
	if !out.Released || out.Reason != "author_cancelled" {
		t.Fatalf("result: %+v", out)
	}
	if out.Promoted == nil || out.Promoted.SessionID != "session-2" || out.Promoted.ConcurrencySlot != 1 {
		t.Fatalf("promoted: %+v", out.Promoted)
	}
	if len(notices) != 1 || notices[0].State != StateActive {
		t.Fatalf("notices: %+v", notices)
	}
}

func TestCancelPendingRemovesWithoutPromotion(t *testing.T) {
	var notices []CancelNotice
	q := NewQueue(func(n CancelNotice) { notices = append(notices, n) })
	q.Enqueue(req("session-1", "section-a"))
	q.Enqueue(req("session-2", "section-a"))
	out := q.Cancel("session-2", "author_cancelled")
	if !out.Released || out.Promoted != nil {
		t.Fatalf("result: %+v", out)
	}
	if len(notices) != 1 || notices[0].State != StatePending {
		t.Fatalf("notices: %+v", notices)
	}
	active, pending := q.Snapshot()
	if len(active) != 1 || len(pending) != 0 {
		t.Fatalf("active=%d pending=%d", len(active), len(pending))
	}
}

func TestCancelUnknownSession(t *testing.T) {
	q := NewQueue(nil)
	out := q.Cancel("ghost", "author_cancelled")
	if out.Released {
		t.Fatalf("expected Released=false")
	}
}

func TestReplaceThenCompleteScenario(t *testing.T) {
	var notices []CancelNotice
	q := NewQueue(func(n CancelNotice) { notices = append(notices, n) })

	if res := q.Enqueue(req("session-1", "section-a")); res.Disposition != DispositionStarted || res.ConcurrencySlot != 1 {
		t.Fatalf("session-1: %+v", res)
	}
	if res := q.Enqueue(req("session-2", "section-a")); res.Disposition != DispositionPending || res.ReplacedSessionID != "" {
		t.Fatalf("session-2: %+v", res)
	}
	res := q.Enqueue(req("session-3", "section-a"))
	if res.Disposition != DispositionPending || res.ReplacedSessionID != "session-2" {
		t.Fatalf("session-3: %+v", res)
	}
	if len(notices) != 1 {
		t.Fatalf("notices: %d", len(notices))
	}
	if n := notices[0]; n.SessionID != "session-2" || n.Reason != ReasonReplaced || n.State != StatePending {
		t.Fatalf("notice: %+v", n)
	}
	out := q.Complete("session-1")
	if out == nil || out.Activated == nil {
		t.Fatalf("complete: %+v", out)
	}
	if out.Activated.SessionID != "session-3" || out.Activated.ConcurrencySlot != 1 {
		t.Fatalf("activated: %+v", out.Activated)
	}
}

package telemetry

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	pebblestore "github.com/danwashusen/ctrl-freaq-sub008/internal/storage/pebble"
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

func testLogger() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
}

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	j := NewJournal(db, testLogger())
	t.Cleanup(func() {
		j.Close()
		_ = db.Close()
	})
	return j
}

func TestJournalPersistsInOrder(t *testing.T) {
	j := newTestJournal(t)

	for i := 0; i < 5; i++ {
		j.LogReview(Event{
			Type:        EventQueued,
			SessionID:   fmt.Sprintf("session-%d", i),
			ResourceKey: "doc-1/sec-2",
			TimestampMs: time.Now().UnixMilli(),
		})
	}

	events := waitForEvents(t, j, 5)
	for i, ev := range events {
		want := fmt.Sprintf("session-%d", i)
		if ev.SessionID != want {
			t.Fatalf("event %d session = %q want %q", i, ev.SessionID, want)
		}
		if ev.Type != EventQueued {
			t.Fatalf("event %d type = %q", i, ev.Type)
		}
	}
}

func TestJournalListLimit(t *testing.T) {
	j := newTestJournal(t)

	for i := 0; i < 10; i++ {
		j.LogReview(Event{Type: EventCompleted, SessionID: fmt.Sprintf("s-%d", i)})
	}
	waitForEvents(t, j, 10)

	events, err := j.List(3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("listed %d events, want 3", len(events))
	}
	if events[0].SessionID != "s-0" {
		t.Fatalf("first = %q, want oldest", events[0].SessionID)
	}
}

func TestJournalListRecentReturnsNewestFirst(t *testing.T) {
	j := newTestJournal(t)

	for i := 0; i < 10; i++ {
		j.LogReview(Event{Type: EventCompleted, SessionID: fmt.Sprintf("s-%d", i)})
	}
	waitForEvents(t, j, 10)

	events, err := j.ListRecent(3)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("listed %d events, want 3", len(events))
	}
	for i, want := range []string{"s-9", "s-8", "s-7"} {
		if events[i].SessionID != want {
			t.Fatalf("event %d = %q, want %q", i, events[i].SessionID, want)
		}
	}

	// A limit wider than the journal returns everything, still newest first.
	events, err = j.ListRecent(50)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(events) != 10 || events[0].SessionID != "s-9" || events[9].SessionID != "s-0" {
		t.Fatalf("events = %+v", events)
	}
}

func TestJournalLogAfterCloseIsNoop(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	j := NewJournal(db, testLogger())
	j.LogReview(Event{Type: EventQueued, SessionID: "before"})
	j.Close()
	j.LogReview(Event{Type: EventQueued, SessionID: "after"})
	j.Close()

	events, err := j.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].SessionID != "before" {
		t.Fatalf("events = %+v", events)
	}
}

func waitForEvents(t *testing.T, j *Journal, want int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		events, err := j.List(want + 1)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(events) >= want {
			return events
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out with %d events, want %d", len(events), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLoggerSinkFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logpkg.NewLogger(
		logpkg.WithOutput(logpkg.NewWriterOutput(&buf)),
		logpkg.WithLevel(logpkg.DebugLevel),
	)
	sink := NewLoggerSink(logger)

	sink.LogReview(Event{
		Type:        EventReplaced,
		SessionID:   "session-2",
		ResourceKey: "doc-1/sec-2",
		Reason:      "replaced_by_new_request",
	})

	out := buf.String()
	for _, want := range []string{"telemetry.review", "session-2", "replaced_by_new_request"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q: %s", want, out)
		}
	}
}

func TestMultiSinkFanout(t *testing.T) {
	var a, b []Event
	sink := MultiSink{
		sinkFunc(func(ev Event) { a = append(a, ev) }),
		sinkFunc(func(ev Event) { b = append(b, ev) }),
	}
	sink.LogReview(Event{Type: EventCanceled, SessionID: "s-1"})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("fanout a=%d b=%d", len(a), len(b))
	}
}

type sinkFunc func(Event)

func (f sinkFunc) LogReview(ev Event) { f(ev) }

package id

import (
	"testing"
	"time"
)

func pinClock(t *testing.T, ms *int64) {
	t.Helper()
	prev := NowMs
	NowMs = func() int64 { return *ms }
	t.Cleanup(func() { NowMs = prev })
}

func TestNextIsStrictlyIncreasing(t *testing.T) {
	ms := int64(5000)
	pinClock(t, &ms)

	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 100; i++ {
		if i == 50 {
			ms = 5001
		}
		cur := g.Next()
		if prev.Compare(cur) >= 0 {
			t.Fatalf("id %d not increasing: %s then %s", i, prev, cur)
		}
		prev = cur
	}
}

func TestClockStepBackwardsStaysOrdered(t *testing.T) {
	ms := int64(5000)
	pinClock(t, &ms)

	g := NewGenerator()
	a := g.Next()
	ms = 4000
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected %s < %s after clock regression", a, b)
	}
	if b.Time().UnixMilli() != 5000 {
		t.Fatalf("expected pinned millisecond, got %d", b.Time().UnixMilli())
	}
}

func TestCounterExhaustionWaitsForClock(t *testing.T) {
	ms := int64(7000)
	pinClock(t, &ms)

	g := NewGenerator()
	g.ms = 7000
	g.counter = ^uint64(0)

	done := make(chan ID, 1)
	go func() { done <- g.Next() }()

	time.AfterFunc(10*time.Millisecond, func() { ms = 7001 })

	select {
	case got := <-done:
		if got.Time().UnixMilli() != 7001 || got.Counter() != 0 {
			t.Fatalf("expected fresh millisecond with zero counter, got %s", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("generator did not recover from counter exhaustion")
	}
}

func TestParseRoundTrip(t *testing.T) {
	ms := int64(9000)
	pinClock(t, &ms)

	g := NewGenerator()
	want := g.Next()
	got, err := Parse(want.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Compare(want) != 0 {
		t.Fatalf("round trip mismatch: %s vs %s", got, want)
	}
	if _, err := Parse("not-hex"); err == nil {
		t.Fatal("expected error for malformed input")
	}
	if _, err := Parse("abcd"); err == nil {
		t.Fatal("expected error for short input")
	}
}

package runtime

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/danwashusen/ctrl-freaq-sub008/internal/config"
	"github.com/danwashusen/ctrl-freaq-sub008/internal/telemetry"
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

func openTestRuntime(t *testing.T, dataDir string) *Runtime {
	t.Helper()
	rt, err := Open(Options{
		DataDir: dataDir,
		Config:  cfgpkg.Default(),
		Logger:  logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOpenCloseHealth(t *testing.T) {
	rt := openTestRuntime(t, t.TempDir())
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.Broker() == nil || rt.Reviews() == nil || rt.Journal() == nil {
		t.Fatal("components not wired")
	}
}

func TestOpenWithoutDataDir(t *testing.T) {
	rt := openTestRuntime(t, "")
	if rt.Journal() != nil {
		t.Fatal("journal should be nil without a data dir")
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestDispositionsReachJournal(t *testing.T) {
	rt := openTestRuntime(t, t.TempDir())

	res, err := rt.Reviews().StartReview("doc-1/sec-2")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	rt.Reviews().CompleteReview(res.SessionID)

	deadline := time.Now().Add(2 * time.Second)
	for {
		events, err := rt.Journal().List(10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(events) >= 2 {
			if events[0].Type != telemetry.EventQueued || events[1].Type != telemetry.EventCompleted {
				t.Fatalf("journal events = %+v", events)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal has %d events, want 2", len(events))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

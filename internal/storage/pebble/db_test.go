package pebblestore

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{
		DataDir:       t.TempDir(),
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCRUD(t *testing.T) {
	db := newTestDB(t)

	key := []byte("k1")
	val := []byte("v1")
	if err := db.Set(key, val); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(val) {
		t.Fatalf("got %q want %q", got, val)
	}

	if err := db.Delete(key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestScanPrefix(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("journal/%03d", i)
		if err := db.Set([]byte(key), []byte(fmt.Sprintf("rec-%d", i))); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := db.Set([]byte("other/000"), []byte("skip")); err != nil {
		t.Fatalf("set: %v", err)
	}

	var keys []string
	err := db.ScanPrefix([]byte("journal/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 5 {
		t.Fatalf("scanned %d keys, want 5", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys out of order: %q then %q", keys[i-1], keys[i])
		}
	}
}

func TestScanPrefixEarlyStop(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 5; i++ {
		if err := db.Set([]byte(fmt.Sprintf("j/%d", i)), []byte("v")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	visited := 0
	err := db.ScanPrefix([]byte("j/"), func(key, value []byte) bool {
		visited++
		return visited < 2
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if visited != 2 {
		t.Fatalf("visited %d, want 2", visited)
	}
}

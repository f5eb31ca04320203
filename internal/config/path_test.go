package config

import (
	"strings"
	"testing"
)

func TestDefaultDataDirEnvOverride(t *testing.T) {
	t.Setenv("FREAQ_DATA_DIR", "/tmp/freaq-test")
	if got := DefaultDataDir(); got != "/tmp/freaq-test" {
		t.Fatalf("data dir = %q", got)
	}
}

func TestDefaultDataDirNonEmpty(t *testing.T) {
	t.Setenv("FREAQ_DATA_DIR", "")
	got := DefaultDataDir()
	if got == "" {
		t.Fatal("empty data dir")
	}
	if !strings.Contains(got, "freaq") {
		t.Fatalf("data dir %q does not name the app", got)
	}
}

package config

import (
	"testing"
	"time"
)

func TestUTCOffset(t *testing.T) {
	t.Setenv("TEST_UTC_OFFSET", "+02:00")
	loc, err := UTCOffset("TEST_UTC_OFFSET", "+00:00")
	if err != nil {
		t.Fatalf("UTCOffset failed: %v", err)
	}
	at := time.Date(2026, 3, 5, 12, 0, 0, 0, loc)
	if got := at.UTC().Hour(); got != 10 {
		t.Fatalf("expected 10:00 UTC, got %d:00", got)
	}

	t.Setenv("TEST_UTC_OFFSET", "-05:30")
	loc, err = UTCOffset("TEST_UTC_OFFSET", "+00:00")
	if err != nil {
		t.Fatalf("UTCOffset failed: %v", err)
	}
	_, offset := time.Date(2026, 3, 5, 12, 0, 0, 0, loc).Zone()
	if offset != -(5*3600 + 30*60) {
		t.Fatalf("expected -19800s offset, got %d", offset)
	}

	t.Setenv("TEST_UTC_OFFSET", "somewhere/eastern")
	if _, err := UTCOffset("TEST_UTC_OFFSET", "+00:00"); err == nil {
		t.Fatal("expected error for malformed offset")
	}
}

func TestUTCOffset_Fallback(t *testing.T) {
	loc, err := UTCOffset("TEST_UTC_OFFSET_UNSET", "+02:00")
	if err != nil {
		t.Fatalf("UTCOffset failed: %v", err)
	}
	_, offset := time.Date(2026, 3, 5, 12, 0, 0, 0, loc).Zone()
	if offset != 2*3600 {
		t.Fatalf("expected 7200s offset, got %d", offset)
	}
}

func TestInt(t *testing.T) {
	t.Setenv("TEST_INT", "25")
	if got := Int("TEST_INT", 5); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
	t.Setenv("TEST_INT", "not a number")
	if got := Int("TEST_INT", 5); got != 5 {
		t.Fatalf("expected fallback 5, got %d", got)
	}
	if got := Int("TEST_INT_UNSET", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if got := Duration("TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	t.Setenv("TEST_DURATION", "-10s")
	if got := Duration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback 1m, got %s", got)
	}
}

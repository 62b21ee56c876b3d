package model

import (
	"errors"
	"testing"
	"time"
)

func TestScheduleTime_ResolvesUnderFixedOffset(t *testing.T) {
	loc := time.FixedZone("UTC+02:00", 2*3600)
	at, err := ScheduleTime("2026-03-05", "14:30", loc)
	if err != nil {
		t.Fatalf("ScheduleTime failed: %v", err)
	}
	want := time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC)
	if !at.UTC().Equal(want) {
		t.Fatalf("expected %s, got %s", want.Format(time.RFC3339), at.UTC().Format(time.RFC3339))
	}
}

func TestScheduleTime_MissingFields(t *testing.T) {
	loc := time.UTC
	_, err := ScheduleTime("", "14:30", loc)
	if err == nil {
		t.Fatal("expected error for missing date")
	}
	var serr *ScheduleError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *ScheduleError, got %T", err)
	}
	if serr.Reason != ReasonInvalidDateTime {
		t.Fatalf("expected reason %s, got %s", ReasonInvalidDateTime, serr.Reason)
	}

	_, err = ScheduleTime("2026-03-05", "   ", loc)
	if SkipReason(err) != ReasonInvalidDateTime {
		t.Fatalf("expected reason %s, got %s", ReasonInvalidDateTime, SkipReason(err))
	}
}

func TestScheduleTime_Unparseable(t *testing.T) {
	loc := time.UTC
	_, err := ScheduleTime("2026-03-05", "half past two", loc)
	if err == nil {
		t.Fatal("expected error for unparseable time")
	}
	if SkipReason(err) != ReasonInvalidDateParse {
		t.Fatalf("expected reason %s, got %s", ReasonInvalidDateParse, SkipReason(err))
	}

	_, err = ScheduleTime("05/03/2026", "14:30", loc)
	if SkipReason(err) != ReasonInvalidDateParse {
		t.Fatalf("expected reason %s, got %s", ReasonInvalidDateParse, SkipReason(err))
	}
}

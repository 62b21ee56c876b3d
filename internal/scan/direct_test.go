package scan

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/cuttime/reminder-service/internal/model"
	"github.com/cuttime/reminder-service/internal/push"
)

// captureHandler keeps every record so tests can assert on log attributes.
type captureHandler struct {
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

type fakeSender struct {
	sent   []push.Notification
	errFor map[string]error
}

func (f *fakeSender) Send(_ context.Context, n push.Notification) error {
	if err := f.errFor[n.UserID]; err != nil {
		return err
	}
	f.sent = append(f.sent, n)
	return nil
}

type fakeDirectStore struct {
	appts   []model.Appointment
	marked  [][]model.Appointment
	markErr error
}

// DueToday mimics the SQL filter on date and latch but not on status, so the
// scanner's own status re-check gets exercised.
func (f *fakeDirectStore) DueToday(_ context.Context, date string, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.appts {
		if a.Date == date && !a.OneHourReminderSent {
			out = append(out, a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeDirectStore) MarkOneHourReminderSent(_ context.Context, sent []model.Appointment, _ time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, sent)
	for _, s := range sent {
		for i := range f.appts {
			if f.appts[i].ID == s.ID {
				f.appts[i].OneHourReminderSent = true
			}
		}
	}
	return nil
}

func testScanner(store DirectStore, sender push.Sender, now time.Time) *DirectScanner {
	s := NewDirectScanner(store, sender, discardLogger(), time.FixedZone("UTC+02:00", 2*3600), DirectScannerConfig{})
	s.now = func() time.Time { return now }
	return s
}

func TestDirectScanner_WindowBoundaries(t *testing.T) {
	appt := func(id, clock string) model.Appointment {
		return model.Appointment{
			ID:         id,
			CustomerID: "cust-" + id,
			Status:     model.StatusApproved,
			Date:       "2026-03-05",
			Time:       clock,
		}
	}
	cases := []struct {
		name     string
		appt     model.Appointment
		now      time.Time
		eligible bool
	}{
		{
			name:     "exactly sixty minutes out",
			appt:     appt("a", "13:00"), // 11:00 UTC
			now:      time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
			eligible: true,
		},
		{
			name:     "sixty one minutes out",
			appt:     appt("b", "13:01"),
			now:      time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
			eligible: false,
		},
		{
			name:     "start time reached",
			appt:     appt("c", "13:00"),
			now:      time.Date(2026, 3, 5, 11, 0, 0, 0, time.UTC),
			eligible: false,
		},
		{
			name:     "moments before start",
			appt:     appt("d", "13:00"),
			now:      time.Date(2026, 3, 5, 11, 0, 0, 0, time.UTC).Add(-600 * time.Millisecond),
			eligible: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeDirectStore{appts: []model.Appointment{tc.appt}}
			sender := &fakeSender{}
			s := testScanner(store, sender, tc.now)

			if err := s.scanBatch(context.Background()); err != nil {
				t.Fatalf("scanBatch failed: %v", err)
			}
			if got := len(sender.sent) == 1; got != tc.eligible {
				t.Fatalf("pushed = %v, want %v", got, tc.eligible)
			}
			if tc.eligible && sender.sent[0].UserID != tc.appt.CustomerID {
				t.Fatalf("expected push to %s, got %s", tc.appt.CustomerID, sender.sent[0].UserID)
			}
			if latched := store.appts[0].OneHourReminderSent; latched != tc.eligible {
				t.Fatalf("latched = %v, want %v", latched, tc.eligible)
			}
		})
	}
}

func TestDirectScanner_SkipsUnapproved(t *testing.T) {
	store := &fakeDirectStore{appts: []model.Appointment{{
		ID:         "appt-1",
		CustomerID: "cust-1",
		Status:     model.StatusPending,
		Date:       "2026-03-05",
		Time:       "13:00",
	}}}
	sender := &fakeSender{}
	s := testScanner(store, sender, time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC))

	if err := s.scanBatch(context.Background()); err != nil {
		t.Fatalf("scanBatch failed: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no push for pending appointment, got %d", len(sender.sent))
	}
	if store.appts[0].OneHourReminderSent {
		t.Fatal("pending appointment must not latch")
	}
}

func TestDirectScanner_FailedPushRetriesNextSweep(t *testing.T) {
	store := &fakeDirectStore{appts: []model.Appointment{
		{ID: "a", CustomerID: "cust-a", Status: model.StatusApproved, Date: "2026-03-05", Time: "13:00"},
		{ID: "b", CustomerID: "cust-b", Status: model.StatusApproved, Date: "2026-03-05", Time: "13:10"},
	}}
	sender := &fakeSender{errFor: map[string]error{"cust-b": errors.New("gateway down")}}
	s := testScanner(store, sender, time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC))

	if err := s.scanBatch(context.Background()); err != nil {
		t.Fatalf("scanBatch failed: %v", err)
	}
	if len(store.marked) != 1 || len(store.marked[0]) != 1 || store.marked[0][0].ID != "a" {
		t.Fatalf("expected only appt a latched, got %+v", store.marked)
	}
	if store.appts[1].OneHourReminderSent {
		t.Fatal("failed push must leave the latch unset")
	}

	delete(sender.errFor, "cust-b")
	if err := s.scanBatch(context.Background()); err != nil {
		t.Fatalf("second scanBatch failed: %v", err)
	}
	if !store.appts[1].OneHourReminderSent {
		t.Fatal("expected retry to latch appt b")
	}
	sends := 0
	for _, n := range sender.sent {
		if n.UserID == "cust-a" {
			sends++
		}
	}
	if sends != 1 {
		t.Fatalf("expected a single push for appt a, got %d", sends)
	}
}

func TestDirectScanner_CycleSummaryCounts(t *testing.T) {
	store := &fakeDirectStore{appts: []model.Appointment{
		{ID: "a", CustomerID: "cust-a", Status: model.StatusApproved, Date: "2026-03-05", Time: "13:00"},
		{ID: "b", CustomerID: "cust-b", Status: model.StatusApproved, Date: "2026-03-05", Time: "13:10"},
		{ID: "c", CustomerID: "cust-c", Status: model.StatusPending, Date: "2026-03-05", Time: "13:20"},
		{ID: "d", CustomerID: "cust-d", Status: model.StatusApproved, Date: "2026-03-05", Time: "18:00"},
	}}
	sender := &fakeSender{errFor: map[string]error{"cust-b": errors.New("gateway down")}}
	capture := &captureHandler{}
	s := NewDirectScanner(store, sender, slog.New(capture), time.FixedZone("UTC+02:00", 2*3600), DirectScannerConfig{})
	s.now = func() time.Time { return time.Date(2026, 3, 5, 10, 30, 0, 0, time.UTC) }

	if err := s.scanBatch(context.Background()); err != nil {
		t.Fatalf("scanBatch failed: %v", err)
	}

	var summary map[string]int64
	for _, rec := range capture.records {
		if rec.Message != "one hour reminder cycle" {
			continue
		}
		summary = map[string]int64{}
		rec.Attrs(func(a slog.Attr) bool {
			if a.Value.Kind() == slog.KindInt64 {
				summary[a.Key] = a.Value.Int64()
			}
			return true
		})
	}
	if summary == nil {
		t.Fatal("expected a cycle summary record")
	}
	// One in-window success, one in-window gateway failure, one pending,
	// one hours away.
	want := map[string]int64{"checked": 4, "sent": 1, "skipped": 2, "failed": 1}
	for key, n := range want {
		if summary[key] != n {
			t.Fatalf("expected %s=%d, got %d", key, n, summary[key])
		}
	}
}

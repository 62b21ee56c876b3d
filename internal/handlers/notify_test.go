package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cuttime/reminder-service/internal/push"
)

type fakeSender struct {
	sent []push.Notification
	err  error
}

func (f *fakeSender) Send(_ context.Context, n push.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func TestNotify_ForwardsPush(t *testing.T) {
	sender := &fakeSender{}
	h := NewNotifyHandler(sender, discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notify",
		strings.NewReader(`{"user_id":"cust-1","title":"Heads up","message":"See you at 3."}`))
	h.Notify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 push, got %d", len(sender.sent))
	}
	got := sender.sent[0]
	if got.UserID != "cust-1" || got.Title != "Heads up" || got.Message != "See you at 3." {
		t.Fatalf("unexpected notification: %+v", got)
	}
	if !strings.Contains(rec.Body.String(), `"sent"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestNotify_GatewayFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("gateway down")}
	h := NewNotifyHandler(sender, discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notify",
		strings.NewReader(`{"user_id":"cust-1","message":"hello"}`))
	h.Notify(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestNotify_Validation(t *testing.T) {
	// Rejected requests never reach the gateway, so a drop-everything
	// sender is all these cases need.
	h := NewNotifyHandler(push.NewNoop(), discardLogger())

	rec := httptest.NewRecorder()
	h.Notify(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notify", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Notify(rec, httptest.NewRequest(http.MethodPost, "/api/v1/notify",
		strings.NewReader(`{"title":"no target"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

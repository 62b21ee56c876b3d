package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_SendPayload(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"n-1"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{
		URL:         srv.URL,
		AppID:       "app-1",
		APIKey:      "key-1",
		AccentColor: "FF8A3C",
	})

	err := client.Send(context.Background(), Notification{
		UserID:  "user-1",
		Title:   "Appointment Reminder",
		Message: "See you at 3:30 PM",
		Buttons: []Button{{ID: "confirm", Text: "I'll be there"}},
		Data:    map[string]any{"appointment_id": "appt-1"},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotAuth != "Basic key-1" {
		t.Fatalf("expected Basic credential header, got %q", gotAuth)
	}
	if gotBody["app_id"] != "app-1" {
		t.Fatalf("expected app_id app-1, got %v", gotBody["app_id"])
	}
	ids, ok := gotBody["include_external_user_ids"].([]any)
	if !ok || len(ids) != 1 || ids[0] != "user-1" {
		t.Fatalf("expected one external user id, got %v", gotBody["include_external_user_ids"])
	}
	if gotBody["channel_for_external_user_ids"] != "push" {
		t.Fatalf("expected push channel, got %v", gotBody["channel_for_external_user_ids"])
	}
	headings, _ := gotBody["headings"].(map[string]any)
	if headings["en"] != "Appointment Reminder" {
		t.Fatalf("unexpected headings: %v", gotBody["headings"])
	}
	contents, _ := gotBody["contents"].(map[string]any)
	if contents["en"] != "See you at 3:30 PM" {
		t.Fatalf("unexpected contents: %v", gotBody["contents"])
	}
	if gotBody["android_accent_color"] != "FF8A3C" {
		t.Fatalf("expected accent color, got %v", gotBody["android_accent_color"])
	}
	buttons, ok := gotBody["buttons"].([]any)
	if !ok || len(buttons) != 1 {
		t.Fatalf("expected one button, got %v", gotBody["buttons"])
	}
	data, _ := gotBody["data"].(map[string]any)
	if data["appointment_id"] != "appt-1" {
		t.Fatalf("expected data payload, got %v", gotBody["data"])
	}
}

func TestClient_OmitsOptionalFields(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, AppID: "app-1", APIKey: "key-1"})
	if err := client.Send(context.Background(), Notification{UserID: "u", Title: "t", Message: "m"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, ok := gotBody["buttons"]; ok {
		t.Fatal("buttons should be omitted when empty")
	}
	if _, ok := gotBody["data"]; ok {
		t.Fatal("data should be omitted when empty")
	}
	if _, ok := gotBody["android_accent_color"]; ok {
		t.Fatal("accent color should be omitted when unset")
	}
}

// A gateway that is slow to accept must still count as a success, so the
// client carries no deadline of its own. Shaving the window client-side
// would report delivered pushes as transport failures and trigger resends.
func TestClient_NoTimeoutOverride(t *testing.T) {
	client := NewClient(Config{URL: "http://gateway.local", AppID: "app-1", APIKey: "key-1"})
	if client.http.Timeout != 0 {
		t.Fatalf("expected zero client timeout, got %v", client.http.Timeout)
	}
}

func TestClient_CallerContextGovernsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(Config{URL: srv.URL, AppID: "app-1", APIKey: "key-1"})
	err := client.Send(ctx, Notification{UserID: "u", Title: "t", Message: "m"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline to cancel the send, got %v", err)
	}
}

func TestClient_NonSuccessCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":["invalid player id"]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, AppID: "app-1", APIKey: "key-1"})
	err := client.Send(context.Background(), Notification{UserID: "u", Title: "t", Message: "m"})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "invalid player id") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}

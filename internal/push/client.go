package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Button is an interactive action rendered on the notification.
type Button struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Notification is one push to one external user identity.
type Notification struct {
	UserID  string
	Title   string
	Message string
	Buttons []Button
	Data    map[string]any
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Client issues a single authenticated POST per notification to the push
// gateway. Any 2xx is success; everything else, including transport errors,
// is a failure. It never retries and sets no deadline of its own; retry
// policy and cancellation belong to the caller's context.
type Client struct {
	url         string
	appID       string
	apiKey      string
	accentColor string
	http        *http.Client
}

type Config struct {
	URL         string
	AppID       string
	APIKey      string
	AccentColor string
}

func NewClient(cfg Config) *Client {
	return &Client{
		url:         strings.TrimSpace(cfg.URL),
		appID:       strings.TrimSpace(cfg.AppID),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		accentColor: strings.TrimSpace(cfg.AccentColor),
		http:        &http.Client{},
	}
}

func (c *Client) Send(ctx context.Context, n Notification) error {
	if c.url == "" {
		return errors.New("push gateway url not configured")
	}
	payload := map[string]any{
		"app_id":                        c.appID,
		"include_external_user_ids":     []string{n.UserID},
		"channel_for_external_user_ids": "push",
		"headings":                      map[string]string{"en": n.Title},
		"contents":                      map[string]string{"en": n.Message},
	}
	if c.accentColor != "" {
		payload["android_accent_color"] = c.accentColor
	}
	if len(n.Buttons) > 0 {
		payload["buttons"] = n.Buttons
	}
	if len(n.Data) > 0 {
		payload["data"] = n.Data
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Keep the gateway's response body; callers log it for diagnosis.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Noop swallows every notification. It stands in for the gateway in tests
// that never reach the send path.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (s *Noop) Send(_ context.Context, _ Notification) error {
	return nil
}

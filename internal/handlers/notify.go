package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuttime/reminder-service/internal/push"
)

// NotifyHandler forwards an ad hoc push straight through the gateway. The
// send is synchronous so the caller learns immediately whether the gateway
// took it; nothing is persisted or retried.
type NotifyHandler struct {
	sender push.Sender
	logger *slog.Logger
}

func NewNotifyHandler(sender push.Sender, logger *slog.Logger) *NotifyHandler {
	return &NotifyHandler{sender: sender, logger: logger}
}

type notifyRequest struct {
	UserID  string         `json:"user_id"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Buttons []push.Button  `json:"buttons"`
	Data    map[string]any `json:"data"`
}

type notifyResponse struct {
	Status string `json:"status"`
}

func (h *NotifyHandler) Notify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	if req.UserID == "" || req.Message == "" {
		http.Error(w, "user_id and message required", http.StatusBadRequest)
		return
	}

	err := h.sender.Send(r.Context(), push.Notification{
		UserID:  req.UserID,
		Title:   req.Title,
		Message: req.Message,
		Buttons: req.Buttons,
		Data:    req.Data,
	})
	if err != nil {
		h.logger.Error("manual push failed", "user_id", req.UserID, "err", err)
		http.Error(w, "push gateway error", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, notifyResponse{Status: "sent"})
}

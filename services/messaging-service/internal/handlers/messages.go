package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wellnest-app/wellnest/libs/auth"
	"github.com/wellnest-app/wellnest/services/messaging-service/internal/messaging"
)

const maxMessageLength = 4000

type MessageHandler struct {
	store  messaging.Store
	logger *slog.Logger
}

func NewMessageHandler(store messaging.Store, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{store: store, logger: logger}
}

type postMessageRequest struct {
	Body string `json:"body"`
}

type messageResponse struct {
	ID         string `json:"id"`
	GroupID    string `json:"group_id"`
	SenderID   string `json:"sender_id,omitempty"`
	SenderRole string `json:"sender_role"`
	Kind       string `json:"kind"`
	Body       string `json:"body"`
	CreatedAt  string `json:"created_at"`
}

func toResponse(m messaging.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		GroupID:    m.GroupID,
		SenderID:   m.SenderID,
		SenderRole: m.SenderRole,
		Kind:       m.Kind,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *MessageHandler) Post(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	senderID := strings.TrimSpace(r.Header.Get(auth.HeaderUserID))
	role := strings.TrimSpace(r.Header.Get(auth.HeaderRole))
	if senderID == "" {
		http.Error(w, "missing user context", http.StatusBadRequest)
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		http.Error(w, "message body is required", http.StatusBadRequest)
		return
	}
	if len(body) > maxMessageLength {
		http.Error(w, "message body too long", http.StatusBadRequest)
		return
	}

	msg := messaging.Message{
		GroupID:    groupID,
		SenderID:   senderID,
		SenderRole: role,
		Kind:       messaging.KindUser,
		Body:       body,
	}
	if err := h.store.Insert(r.Context(), &msg); err != nil {
		h.logger.Error("message insert failed", "err", err, "group_id", groupID)
		http.Error(w, "failed to post message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(msg))
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	msgs, err := h.store.List(r.Context(), groupID, limit)
	if err != nil {
		h.logger.Error("message list failed", "err", err, "group_id", groupID)
		http.Error(w, "failed to list messages", http.StatusInternalServerError)
		return
	}

	items := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toResponse(m))
	}
	writeJSON(w, http.StatusOK, items)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

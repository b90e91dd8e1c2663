package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/wellnest-app/wellnest/libs/auth"
	"github.com/wellnest-app/wellnest/services/messaging-service/internal/messaging"
)

type memMessages struct {
	byGroup map[string][]messaging.Message
	nextID  int
}

func newMemMessages() *memMessages {
	return &memMessages{byGroup: map[string][]messaging.Message{}}
}

func (m *memMessages) Insert(_ context.Context, msg *messaging.Message) error {
	m.nextID++
	msg.ID = strconv.Itoa(m.nextID)
	msg.CreatedAt = time.Now()
	m.byGroup[msg.GroupID] = append(m.byGroup[msg.GroupID], *msg)
	return nil
}

func (m *memMessages) List(_ context.Context, groupID string, limit int) ([]messaging.Message, error) {
	msgs := m.byGroup[groupID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func newMessagesServer(store messaging.Store) *httptest.Server {
	h := NewMessageHandler(store, slog.Default())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/groups/{id}/messages", h.Post)
	mux.HandleFunc("GET /api/v1/groups/{id}/messages", h.List)
	return httptest.NewServer(mux)
}

func TestPostAndListMessages(t *testing.T) {
	store := newMemMessages()
	srv := newMessagesServer(store)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/groups/appt-1/messages",
		strings.NewReader(`{"body":"See you at the gym"}`))
	req.Header.Set(auth.HeaderUserID, "u1")
	req.Header.Set(auth.HeaderRole, "client")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	var posted messageResponse
	if err := json.NewDecoder(res.Body).Decode(&posted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	res.Body.Close()
	if posted.Kind != messaging.KindUser || posted.SenderID != "u1" {
		t.Fatalf("unexpected message %+v", posted)
	}

	listRes, err := http.Get(srv.URL + "/api/v1/groups/appt-1/messages")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	defer listRes.Body.Close()
	var items []messageResponse
	if err := json.NewDecoder(listRes.Body).Decode(&items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != 1 || items[0].Body != "See you at the gym" {
		t.Fatalf("unexpected list %+v", items)
	}
}

func TestPostMessage_Validation(t *testing.T) {
	srv := newMessagesServer(newMemMessages())
	defer srv.Close()

	// No user context.
	res, _ := http.Post(srv.URL+"/api/v1/groups/appt-1/messages", "application/json",
		strings.NewReader(`{"body":"hi"}`))
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without user context, got %d", res.StatusCode)
	}

	// Blank body.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/groups/appt-1/messages",
		strings.NewReader(`{"body":"   "}`))
	req.Header.Set(auth.HeaderUserID, "u1")
	res2, _ := http.DefaultClient.Do(req)
	res2.Body.Close()
	if res2.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank body, got %d", res2.StatusCode)
	}
}

func TestListMessages_EmptyGroup(t *testing.T) {
	srv := newMessagesServer(newMemMessages())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/api/v1/groups/none/messages")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var items []messageResponse
	if err := json.NewDecoder(res.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty list, got %d items", len(items))
	}
}

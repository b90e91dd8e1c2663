package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wellnest-app/wellnest/libs/auth"
	"github.com/wellnest-app/wellnest/services/identity-service/internal/identity"
	"github.com/wellnest-app/wellnest/services/identity-service/internal/sessions"
)

const testSecret = "test-secret"

type memUsers struct {
	byEmail map[string]identity.User
	byID    map[string]identity.User
}

func newMemUsers() *memUsers {
	return &memUsers{byEmail: map[string]identity.User{}, byID: map[string]identity.User{}}
}

func (m *memUsers) Create(_ context.Context, user identity.User) error {
	if _, exists := m.byEmail[user.Email]; exists {
		return identity.ErrEmailTaken
	}
	m.byEmail[user.Email] = user
	m.byID[user.ID] = user
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (identity.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (identity.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

type memSessions struct {
	byHash map[string]identity.RefreshToken
	nextID int
}

func newMemSessions() *memSessions {
	return &memSessions{byHash: map[string]identity.RefreshToken{}}
}

func (m *memSessions) Create(_ context.Context, userID string, rawToken string, expiresAt time.Time) (string, error) {
	m.nextID++
	id := string(rune('a' + m.nextID))
	hash := sessions.HashToken(rawToken)
	m.byHash[hash] = identity.RefreshToken{ID: id, UserID: userID, Hash: hash, ExpiresAt: expiresAt}
	return id, nil
}

func (m *memSessions) GetByHash(_ context.Context, hash string) (identity.RefreshToken, error) {
	tok, ok := m.byHash[hash]
	if !ok {
		return identity.RefreshToken{}, identity.ErrNotFound
	}
	return tok, nil
}

func (m *memSessions) Revoke(_ context.Context, id string) error {
	now := time.Now()
	for hash, tok := range m.byHash {
		if tok.ID == id {
			tok.RevokedAt = &now
			m.byHash[hash] = tok
		}
	}
	return nil
}

func newIdentityServer(users identity.Users, sess identity.Sessions) *httptest.Server {
	h := NewIdentityHandler(users, sess, testSecret, 24*time.Hour, slog.Default())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	return httptest.NewServer(mux)
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return res
}

func decodeTokens(t *testing.T, res *http.Response) tokenResponse {
	t.Helper()
	defer res.Body.Close()
	var out tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}
	return out
}

func TestRegisterLoginMe(t *testing.T) {
	users := newMemUsers()
	srv := newIdentityServer(users, newMemSessions())
	defer srv.Close()

	res := postJSON(t, srv.URL+"/api/v1/auth/register",
		`{"first_name":"Jane","last_name":"Doe","email":"Jane@Example.com","password":"hunter22","role":"trainer"}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	tokens := decodeTokens(t, res)
	if tokens.AccessToken == "" || tokens.RefreshToken == "" || tokens.TokenType != "Bearer" {
		t.Fatalf("incomplete token response: %+v", tokens)
	}

	claims, err := auth.ParseAndVerifyHS256(tokens.AccessToken, testSecret)
	if err != nil {
		t.Fatalf("issued token did not verify: %v", err)
	}
	if claims.Role != "trainer" || claims.Email != "jane@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	loginRes := postJSON(t, srv.URL+"/api/v1/auth/login",
		`{"email":"jane@example.com","password":"hunter22"}`)
	if loginRes.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on login, got %d", loginRes.StatusCode)
	}
	loginTokens := decodeTokens(t, loginRes)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+loginTokens.AccessToken)
	meRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me request failed: %v", err)
	}
	defer meRes.Body.Close()
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on me, got %d", meRes.StatusCode)
	}
	var me meResponse
	if err := json.NewDecoder(meRes.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.FirstName != "Jane" || me.Role != "trainer" {
		t.Fatalf("unexpected me response %+v", me)
	}
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	srv := newIdentityServer(newMemUsers(), newMemSessions())
	defer srv.Close()

	body := `{"email":"a@example.com","password":"hunter22"}`
	first := postJSON(t, srv.URL+"/api/v1/auth/register", body)
	first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.StatusCode)
	}

	second := postJSON(t, srv.URL+"/api/v1/auth/register", body)
	second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate email, got %d", second.StatusCode)
	}
}

func TestRegister_AdminRoleRejected(t *testing.T) {
	srv := newIdentityServer(newMemUsers(), newMemSessions())
	defer srv.Close()

	res := postJSON(t, srv.URL+"/api/v1/auth/register",
		`{"email":"a@example.com","password":"hunter22","role":"admin"}`)
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for admin self-registration, got %d", res.StatusCode)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	srv := newIdentityServer(newMemUsers(), newMemSessions())
	defer srv.Close()

	res := postJSON(t, srv.URL+"/api/v1/auth/register",
		`{"email":"a@example.com","password":"hunter22"}`)
	res.Body.Close()

	bad := postJSON(t, srv.URL+"/api/v1/auth/login",
		`{"email":"a@example.com","password":"wrong"}`)
	bad.Body.Close()
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", bad.StatusCode)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	srv := newIdentityServer(newMemUsers(), newMemSessions())
	defer srv.Close()

	reg := postJSON(t, srv.URL+"/api/v1/auth/register",
		`{"email":"a@example.com","password":"hunter22"}`)
	tokens := decodeTokens(t, reg)

	refreshBody := `{"refresh_token":"` + tokens.RefreshToken + `"}`
	res := postJSON(t, srv.URL+"/api/v1/auth/refresh", refreshBody)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on refresh, got %d", res.StatusCode)
	}
	fresh := decodeTokens(t, res)
	if fresh.RefreshToken == tokens.RefreshToken {
		t.Fatal("refresh must rotate the token")
	}

	replay := postJSON(t, srv.URL+"/api/v1/auth/refresh", refreshBody)
	replay.Body.Close()
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on replayed refresh token, got %d", replay.StatusCode)
	}
}

func TestLogout_RevokesToken(t *testing.T) {
	srv := newIdentityServer(newMemUsers(), newMemSessions())
	defer srv.Close()

	reg := postJSON(t, srv.URL+"/api/v1/auth/register",
		`{"email":"a@example.com","password":"hunter22"}`)
	tokens := decodeTokens(t, reg)

	body := `{"refresh_token":"` + tokens.RefreshToken + `"}`
	out := postJSON(t, srv.URL+"/api/v1/auth/logout", body)
	out.Body.Close()
	if out.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on logout, got %d", out.StatusCode)
	}

	res := postJSON(t, srv.URL+"/api/v1/auth/refresh", body)
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", res.StatusCode)
	}
}

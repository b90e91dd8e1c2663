package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wellnest-app/wellnest/services/appointment-service/internal/appointment"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/model"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/notify"
)

type memStore struct {
	appts   map[string]model.Appointment
	details map[string]model.Detail
	patches []model.Patch
}

func newMemStore() *memStore {
	return &memStore{
		appts:   map[string]model.Appointment{},
		details: map[string]model.Detail{},
	}
}

func (s *memStore) List(_ context.Context, f appointment.Filter) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range s.appts {
		if f.UserID != "" && a.UserID != f.UserID {
			continue
		}
		if f.SpecialistID != "" && a.SpecialistID != f.SpecialistID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, id string) (model.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, appointment.ErrNotFound
	}
	return a, nil
}

func (s *memStore) GetDetail(_ context.Context, id string) (model.Detail, error) {
	d, ok := s.details[id]
	if !ok {
		return model.Detail{}, appointment.ErrNotFound
	}
	return d, nil
}

func (s *memStore) Create(_ context.Context, appt *model.Appointment) (string, error) {
	if appt.ID == "" {
		appt.ID = "generated"
	}
	s.appts[appt.ID] = *appt
	return appt.ID, nil
}

func (s *memStore) Update(_ context.Context, id string, patch model.Patch) (model.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, appointment.ErrNotFound
	}
	s.patches = append(s.patches, patch)
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.Notes != nil {
		a.Notes = *patch.Notes
	}
	if patch.AppointmentDate != nil {
		a.AppointmentDate = *patch.AppointmentDate
	}
	a.UpdatedAt = time.Now()
	s.appts[id] = a
	if d, ok := s.details[id]; ok {
		d.Appointment = a
		s.details[id] = d
	}
	return a, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	if _, ok := s.appts[id]; !ok {
		return appointment.ErrNotFound
	}
	delete(s.appts, id)
	return nil
}

type capturingSender struct {
	sends []capturedMail
	err   error
}

type capturedMail struct {
	to, subject, body string
}

func (c *capturingSender) Send(to, subject, body string) error {
	if c.err != nil {
		return c.err
	}
	c.sends = append(c.sends, capturedMail{to: to, subject: subject, body: body})
	return nil
}

func newTestServer(store *memStore, sender *capturingSender) *httptest.Server {
	logger := slog.Default()
	svc := appointment.NewService(store)
	dispatcher := notify.NewDispatcher(sender, nil, logger)
	h := NewAppointmentHandler(svc, dispatcher, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/appointments", h.List)
	mux.HandleFunc("POST /api/v1/appointments", h.Create)
	mux.HandleFunc("GET /api/v1/appointments/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/appointments/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", h.Delete)
	return httptest.NewServer(mux)
}

func seedAppointment(store *memStore, id string, status model.Status) {
	appt := model.Appointment{
		ID:              id,
		UserID:          "u1",
		SpecialistID:    "s1",
		AppointmentDate: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Status:          status,
		Type:            model.TypeTraining,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	store.appts[id] = appt
	store.details[id] = model.Detail{
		Appointment:         appt,
		ClientFirstName:     "Alex",
		ClientLastName:      "Smith",
		ClientEmail:         "a@example.com",
		SpecialistFirstName: "Jane",
		SpecialistLastName:  "Doe",
		SpecialistEmail:     "jane@wellnest.local",
		SpecialistRole:      "trainer",
	}
}

func doPut(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return res
}

func decodeBody(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	defer res.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestUpdate_ConfirmSendsOneEmail(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "42", model.StatusPending)
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res := doPut(t, srv.URL+"/api/v1/appointments/42", `{"status":"confirmed"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	body := decodeBody(t, res)
	if body["status"] != "confirmed" {
		t.Fatalf("expected confirmed status in response, got %v", body["status"])
	}

	if len(sender.sends) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sends))
	}
	mail := sender.sends[0]
	if mail.to != "a@example.com" {
		t.Fatalf("unexpected recipient %q", mail.to)
	}
	if mail.subject != notify.SubjectConfirmation {
		t.Fatalf("unexpected subject %q", mail.subject)
	}
	wantDate := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC).Format(notify.DateLayout)
	for _, want := range []string{"Jane Doe", "training", wantDate} {
		if !strings.Contains(mail.body, want) {
			t.Fatalf("body missing %q:\n%s", want, mail.body)
		}
	}
}

func TestUpdate_UnknownFieldsDropped(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "a1", model.StatusPending)
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res := doPut(t, srv.URL+"/api/v1/appointments/a1",
		`{"notes":"bring shoes","id":"evil","user_id":"evil","created_at":"1999-01-01T00:00:00Z"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	res.Body.Close()

	if len(store.patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(store.patches))
	}
	p := store.patches[0]
	if p.Notes == nil || *p.Notes != "bring shoes" {
		t.Fatalf("expected notes patch, got %+v", p)
	}
	if p.Status != nil || p.AppointmentDate != nil {
		t.Fatalf("expected only notes to change, got %+v", p)
	}
	if got := store.appts["a1"]; got.UserID != "u1" || got.ID != "a1" {
		t.Fatalf("immutable fields changed: %+v", got)
	}
	if len(sender.sends) != 0 {
		t.Fatalf("expected no emails on notes-only update, got %d", len(sender.sends))
	}
}

func TestUpdate_NotFound(t *testing.T) {
	store := newMemStore()
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res := doPut(t, srv.URL+"/api/v1/appointments/missing", `{"status":"confirmed"}`)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
	res.Body.Close()
	if len(sender.sends) != 0 {
		t.Fatalf("expected no emails for missing appointment, got %d", len(sender.sends))
	}
	if len(store.patches) != 0 {
		t.Fatalf("expected no writes for missing appointment, got %d", len(store.patches))
	}
}

func TestUpdate_CancelReasonInEmailNotPersisted(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "a1", model.StatusConfirmed)
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res := doPut(t, srv.URL+"/api/v1/appointments/a1",
		`{"status":"canceled","cancel_reason":"travel conflict"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	res.Body.Close()

	if len(sender.sends) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sends))
	}
	if !strings.Contains(sender.sends[0].body, "Reason: travel conflict") {
		t.Fatalf("body missing supplied reason:\n%s", sender.sends[0].body)
	}
	if sender.sends[0].subject != notify.SubjectCancellation {
		t.Fatalf("unexpected subject %q", sender.sends[0].subject)
	}
	p := store.patches[0]
	if p.Notes != nil {
		t.Fatalf("cancel reason must not leak into the patch: %+v", p)
	}
}

func TestUpdate_CancelWithoutReasonUsesDefault(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "a1", model.StatusConfirmed)
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res := doPut(t, srv.URL+"/api/v1/appointments/a1", `{"status":"canceled"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	res.Body.Close()

	if len(sender.sends) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sends))
	}
	if !strings.Contains(sender.sends[0].body, notify.DefaultCancelReason) {
		t.Fatalf("body missing default reason:\n%s", sender.sends[0].body)
	}
}

func TestUpdate_NonTriggeringStatusSendsNothing(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "a1", model.StatusConfirmed)
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res := doPut(t, srv.URL+"/api/v1/appointments/a1", `{"status":"completed"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	res.Body.Close()

	if len(sender.sends) != 0 {
		t.Fatalf("expected no emails for completed, got %d", len(sender.sends))
	}
}

func TestUpdate_RepeatedStatusSendsAgain(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "a1", model.StatusPending)
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	for i := 0; i < 2; i++ {
		res := doPut(t, srv.URL+"/api/v1/appointments/a1", `{"status":"confirmed"}`)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("round %d: expected 200, got %d", i, res.StatusCode)
		}
		res.Body.Close()
	}

	if len(sender.sends) != 2 {
		t.Fatalf("expected 2 emails on repeated confirmation, got %d", len(sender.sends))
	}
}

func TestUpdate_MissingClientEmailSkipsSend(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "a1", model.StatusPending)
	d := store.details["a1"]
	d.ClientEmail = ""
	store.details["a1"] = d
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res := doPut(t, srv.URL+"/api/v1/appointments/a1", `{"status":"confirmed"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	res.Body.Close()

	if len(sender.sends) != 0 {
		t.Fatalf("expected no emails without a recipient, got %d", len(sender.sends))
	}
	if store.appts["a1"].Status != model.StatusConfirmed {
		t.Fatal("update must still persist when the notification is skipped")
	}
}

func TestUpdate_SenderFailureStillReturns200(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "a1", model.StatusPending)
	sender := &capturingSender{err: errors.New("smtp unreachable")}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res := doPut(t, srv.URL+"/api/v1/appointments/a1", `{"status":"confirmed"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 despite send failure, got %d", res.StatusCode)
	}
	res.Body.Close()

	if store.appts["a1"].Status != model.StatusConfirmed {
		t.Fatal("update must persist even when the send fails")
	}
}

func TestUpdate_InvalidTransitionConflicts(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "a1", model.StatusCanceled)
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res := doPut(t, srv.URL+"/api/v1/appointments/a1", `{"status":"confirmed"}`)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.StatusCode)
	}
	res.Body.Close()

	if len(store.patches) != 0 {
		t.Fatalf("expected no write on rejected transition, got %d", len(store.patches))
	}
	if len(sender.sends) != 0 {
		t.Fatalf("expected no emails on rejected transition, got %d", len(sender.sends))
	}
}

func TestUpdate_InvalidStatusValue(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "a1", model.StatusPending)
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res := doPut(t, srv.URL+"/api/v1/appointments/a1", `{"status":"archived"}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
	res.Body.Close()
}

func TestCreate_And_Get(t *testing.T) {
	store := newMemStore()
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	res, err := http.Post(srv.URL+"/api/v1/appointments", "application/json",
		strings.NewReader(`{"user_id":"u1","specialist_id":"s1","appointment_date":"2024-06-01T09:00:00Z","type":"nutrition","status":"completed"}`))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.StatusCode)
	}
	created := decodeBody(t, res)
	if created["status"] != "pending" {
		t.Fatalf("new bookings must start pending, got %v", created["status"])
	}

	id, _ := created["id"].(string)
	getRes, err := http.Get(srv.URL + "/api/v1/appointments/" + id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if getRes.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getRes.StatusCode)
	}
	fetched := decodeBody(t, getRes)
	if fetched["type"] != "nutrition" {
		t.Fatalf("unexpected type %v", fetched["type"])
	}
}

func TestDelete(t *testing.T) {
	store := newMemStore()
	seedAppointment(store, "a1", model.StatusPending)
	sender := &capturingSender{}
	srv := newTestServer(store, sender)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/appointments/a1", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	res.Body.Close()

	res2, _ := http.DefaultClient.Do(req)
	if res2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", res2.StatusCode)
	}
	res2.Body.Close()
}

package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StatusChangedEvent mirrors appointment.status.changed.v1.
type StatusChangedEvent struct {
	AppointmentID   string `json:"appointment_id"`
	UserID          string `json:"user_id"`
	SpecialistID    string `json:"specialist_id"`
	Status          string `json:"status"`
	Type            string `json:"type"`
	AppointmentDate string `json:"appointment_date"`
}

// SystemMessageFromStatusEvent turns a status-change event into the system
// message posted into the appointment's thread. Returns nil for statuses that
// don't warrant a thread entry.
func SystemMessageFromStatusEvent(raw []byte) (*Message, error) {
	var evt StatusChangedEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("decode status event: %w", err)
	}
	if evt.AppointmentID == "" || evt.Status == "" {
		return nil, fmt.Errorf("status event missing appointment_id or status")
	}

	var body string
	switch evt.Status {
	case "confirmed":
		body = "Your appointment has been confirmed."
	case "canceled":
		body = "This appointment has been canceled."
	case "completed":
		body = "This appointment is complete. Thanks for coming in!"
	default:
		return nil, nil
	}

	if when := formatEventDate(evt.AppointmentDate); when != "" && evt.Status == "confirmed" {
		body = fmt.Sprintf("Your appointment on %s has been confirmed.", when)
	}

	return &Message{
		GroupID:    evt.AppointmentID,
		SenderRole: "system",
		Kind:       KindSystem,
		Body:       body,
	}, nil
}

func formatEventDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return ""
	}
	return t.Format("Monday, 02 Jan 2006 at 15:04 MST")
}

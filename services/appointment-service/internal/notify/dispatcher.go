package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wellnest-app/wellnest/services/appointment-service/internal/email"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/model"
)

// DateLayout is the human-readable format used in notification bodies.
const DateLayout = "Monday, 02 Jan 2006 at 15:04 MST"

// DefaultCancelReason is used when a cancellation request carries no reason.
const DefaultCancelReason = "No reason provided."

const (
	SubjectConfirmation = "Appointment Confirmation"
	SubjectCancellation = "Appointment Cancellation"
)

// Record is the audit row written after each dispatch attempt.
type Record struct {
	AppointmentID string
	Channel       string
	Recipient     string
	Subject       string
	Status        string // sent | failed
	FailureReason string
}

type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Dispatcher formats and sends one email per triggering status change. There
// is no queueing, retry, or dedup: every triggering update sends again.
type Dispatcher struct {
	sender  email.Sender
	records Recorder
	logger  *slog.Logger
}

func NewDispatcher(sender email.Sender, records Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, records: records, logger: logger}
}

// AppointmentConfirmed sends the confirmation email to the client. The caller
// is responsible for checking that a recipient address exists.
func (d *Dispatcher) AppointmentConfirmed(ctx context.Context, detail model.Detail) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nYour %s appointment with %s on %s is confirmed.\n\nSee you soon,\nWellnest\n",
		detail.ClientFirstName,
		detail.Type,
		detail.SpecialistName(),
		detail.AppointmentDate.Format(DateLayout),
	)
	return d.dispatch(ctx, detail, SubjectConfirmation, body)
}

// AppointmentCanceled sends the cancellation email. The reason comes from the
// request body, not from storage; it is never persisted on the appointment.
func (d *Dispatcher) AppointmentCanceled(ctx context.Context, detail model.Detail, reason string) error {
	if reason == "" {
		reason = DefaultCancelReason
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nYour %s appointment with %s on %s has been canceled.\nReason: %s\n\nWellnest\n",
		detail.ClientFirstName,
		detail.Type,
		detail.SpecialistName(),
		detail.AppointmentDate.Format(DateLayout),
		reason,
	)
	return d.dispatch(ctx, detail, SubjectCancellation, body)
}

func (d *Dispatcher) dispatch(ctx context.Context, detail model.Detail, subject, body string) error {
	rec := Record{
		AppointmentID: detail.ID,
		Channel:       "email",
		Recipient:     detail.ClientEmail,
		Subject:       subject,
		Status:        "sent",
	}

	sendErr := d.sender.Send(detail.ClientEmail, subject, body)
	if sendErr != nil {
		rec.Status = "failed"
		rec.FailureReason = sendErr.Error()
	}

	if d.records != nil {
		if err := d.records.Record(ctx, rec); err != nil {
			d.logger.Error("failed to persist notification record", "err", err, "appointment_id", detail.ID)
		}
	}
	return sendErr
}

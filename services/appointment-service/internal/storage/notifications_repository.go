package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wellnest-app/wellnest/libs/db"
	"github.com/wellnest-app/wellnest/libs/outbox"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/notify"
)

// NotificationsRepository keeps a per-dispatch audit row so failed sends are
// visible even though they no longer fail the originating request. Failures
// additionally go to the outbox for downstream alerting.
type NotificationsRepository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewNotificationsRepository(pool *db.Pool, outboxRepo *outbox.Repository) *NotificationsRepository {
	return &NotificationsRepository{pool: pool, outboxRepo: outboxRepo}
}

var _ notify.Recorder = (*NotificationsRepository)(nil)

func (r *NotificationsRepository) Record(ctx context.Context, rec notify.Record) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO notifications (appointment_id, channel, recipient, subject, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.AppointmentID, rec.Channel, rec.Recipient, rec.Subject, rec.Status, rec.FailureReason)
	if err != nil {
		return err
	}

	if rec.Status == "failed" {
		payload, err := json.Marshal(map[string]any{
			"appointment_id": rec.AppointmentID,
			"channel":        rec.Channel,
			"recipient":      rec.Recipient,
			"subject":        rec.Subject,
			"failure_reason": rec.FailureReason,
			"failed_at":      time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := r.outboxRepo.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   rec.AppointmentID,
			EventType:     "appointment.notification.failed.v1",
			Payload:       payload,
		}); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

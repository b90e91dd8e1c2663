package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wellnest-app/wellnest/libs/db"
	"github.com/wellnest-app/wellnest/libs/outbox"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/appointment"
	"github.com/wellnest-app/wellnest/services/appointment-service/internal/model"
)

const apptColumns = `id, user_id, specialist_id, appointment_date, status, type, COALESCE(notes, ''), created_at, updated_at`

// AppointmentRepository persists appointments in Postgres and writes lifecycle
// events to the outbox in the same transaction as the mutation.
type AppointmentRepository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outboxRepo: outboxRepo}
}

var _ appointment.Store = (*AppointmentRepository)(nil)

func (r *AppointmentRepository) List(ctx context.Context, f appointment.Filter) ([]model.Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments`
	var clauses []string
	var params []any
	if f.UserID != "" {
		params = append(params, f.UserID)
		clauses = append(clauses, "user_id = $"+strconv.Itoa(len(params)))
	}
	if f.SpecialistID != "" {
		params = append(params, f.SpecialistID)
		clauses = append(clauses, "specialist_id = $"+strconv.Itoa(len(params)))
	}
	if f.Status != "" {
		params = append(params, string(f.Status))
		clauses = append(clauses, "status = $"+strconv.Itoa(len(params)))
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY appointment_date DESC LIMIT 200"

	rows, err := r.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+apptColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, appointment.ErrNotFound
	}
	return appt, err
}

func (r *AppointmentRepository) GetDetail(ctx context.Context, id string) (model.Detail, error) {
	var d model.Detail
	err := r.pool.QueryRow(ctx, `
		SELECT a.id, a.user_id, a.specialist_id, a.appointment_date, a.status, a.type, COALESCE(a.notes, ''),
			a.created_at, a.updated_at,
			c.first_name, c.last_name, COALESCE(c.email, ''),
			s.first_name, s.last_name, COALESCE(s.email, ''), s.role
		FROM appointments a
		JOIN users c ON a.user_id = c.id
		JOIN users s ON a.specialist_id = s.id
		WHERE a.id = $1
	`, id).Scan(
		&d.ID,
		&d.UserID,
		&d.SpecialistID,
		&d.AppointmentDate,
		&d.Status,
		&d.Type,
		&d.Notes,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.ClientFirstName,
		&d.ClientLastName,
		&d.ClientEmail,
		&d.SpecialistFirstName,
		&d.SpecialistLastName,
		&d.SpecialistEmail,
		&d.SpecialistRole,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Detail{}, appointment.ErrNotFound
	}
	if err != nil {
		return model.Detail{}, err
	}
	return d, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, appt *model.Appointment) (string, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, user_id, specialist_id, appointment_date, status, type, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, appt.ID, appt.UserID, appt.SpecialistID, appt.AppointmentDate, string(appt.Status), string(appt.Type), appt.Notes).
		Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return "", err
	}
	return appt.ID, nil
}

// Update applies the allow-listed patch and, when the status changed, records
// an appointment.status.changed.v1 outbox event in the same transaction.
func (r *AppointmentRepository) Update(ctx context.Context, id string, patch model.Patch) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sets := []string{"updated_at = now()"}
	params := []any{id}
	if patch.Status != nil {
		params = append(params, string(*patch.Status))
		sets = append(sets, "status = $"+strconv.Itoa(len(params)))
	}
	if patch.Notes != nil {
		params = append(params, *patch.Notes)
		sets = append(sets, "notes = $"+strconv.Itoa(len(params)))
	}
	if patch.AppointmentDate != nil {
		params = append(params, *patch.AppointmentDate)
		sets = append(sets, "appointment_date = $"+strconv.Itoa(len(params)))
	}

	query := "UPDATE appointments SET " + sets[0]
	for _, s := range sets[1:] {
		query += ", " + s
	}
	query += " WHERE id = $1 RETURNING " + apptColumns

	appt, err := scanAppointment(tx.QueryRow(ctx, query, params...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, appointment.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}

	if patch.Status != nil {
		payload, err := json.Marshal(map[string]any{
			"appointment_id":   appt.ID,
			"user_id":          appt.UserID,
			"specialist_id":    appt.SpecialistID,
			"status":           string(appt.Status),
			"type":             string(appt.Type),
			"appointment_date": appt.AppointmentDate.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return model.Appointment{}, fmt.Errorf("build status event: %w", err)
		}
		if err := r.outboxRepo.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     "appointment.status.changed.v1",
			Payload:       payload,
		}); err != nil {
			return model.Appointment{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return appointment.ErrNotFound
	}
	return nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.UserID,
		&appt.SpecialistID,
		&appt.AppointmentDate,
		&appt.Status,
		&appt.Type,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

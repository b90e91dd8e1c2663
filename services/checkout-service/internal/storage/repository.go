package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wellnest-app/wellnest/libs/db"
)

var ErrNotFound = errors.New("order not found")

// ErrDuplicateProviderEvent marks a replayed provider webhook delivery.
var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

type Order struct {
	ID              string
	UserID          string
	AppointmentID   string
	PackageCode     string
	AmountCents     int64
	Currency        string
	Status          string // created | paid | expired | canceled
	StripeSessionID string
	URL             string
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) CreateOrder(ctx context.Context, tx pgx.Tx, o Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, appointment_id, package_code, amount_cents, currency, status, stripe_session_id, url)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
	`, o.ID, o.UserID, o.AppointmentID, o.PackageCode, o.AmountCents, o.Currency, o.Status, o.StripeSessionID, o.URL)
	return err
}

func (r *Repository) GetOrder(ctx context.Context, id string) (Order, error) {
	return r.scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE id = $1`, id))
}

func (r *Repository) GetOrderBySession(ctx context.Context, sessionID string) (Order, error) {
	return r.scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE stripe_session_id = $1`, sessionID))
}

const orderSelect = `
	SELECT id::text, user_id::text, COALESCE(appointment_id::text, ''), package_code,
	       amount_cents, currency, status, COALESCE(stripe_session_id, ''), COALESCE(url, ''),
	       paid_at, created_at, updated_at
	FROM orders`

func (r *Repository) scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.AppointmentID, &o.PackageCode,
		&o.AmountCents, &o.Currency, &o.Status, &o.StripeSessionID, &o.URL,
		&o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// MarkOrderPaid transitions the order by Stripe session id and returns it for
// event publication. Already-paid orders are returned unchanged.
func (r *Repository) MarkOrderPaid(ctx context.Context, tx pgx.Tx, sessionID string, occurredAt time.Time) (Order, error) {
	row := tx.QueryRow(ctx, `
		UPDATE orders
		SET status = 'paid', paid_at = $2, updated_at = now()
		WHERE stripe_session_id = $1
		RETURNING id::text, user_id::text, COALESCE(appointment_id::text, ''), package_code,
		          amount_cents, currency, status, COALESCE(stripe_session_id, ''), COALESCE(url, ''),
		          paid_at, created_at, updated_at
	`, sessionID, occurredAt)
	return r.scanOrder(row)
}

func (r *Repository) MarkOrderExpired(ctx context.Context, tx pgx.Tx, sessionID string, occurredAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = 'expired', updated_at = $2
		WHERE stripe_session_id = $1 AND status = 'created'
	`, sessionID, occurredAt)
	return err
}

func (r *Repository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, evt.Provider, evt.ProviderEventID, evt.EventType, evt.Payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateProviderEvent
		}
		return err
	}
	return nil
}
